package llm

import (
	"regexp"
	"strings"
)

var (
	mlcSuffix     = regexp.MustCompile(`-MLC$`)
	quantization  = regexp.MustCompile(`(?i)-q[0-4]f(16|32)_?\d?`)
	instructTag   = regexp.MustCompile(`(?i)-instruct`)
	chatTag       = regexp.MustCompile(`(?i)-chat`)
	itTag         = regexp.MustCompile(`(?i)-it\b`)
	versionTag    = regexp.MustCompile(`(?i)-v\d+\.?\d*`)
	separators    = regexp.MustCompile(`[-_]`)
	repeatedSpace = regexp.MustCompile(`\s+`)
)

// DisplayName turns a local model id into a readable name, for example
// "Llama-3.2-1B-Instruct-q4f16_1-MLC" becomes "Llama 3.2 1B".
func DisplayName(modelID string) string {
	name := mlcSuffix.ReplaceAllString(modelID, "")
	name = quantization.ReplaceAllString(name, "")
	name = instructTag.ReplaceAllString(name, "")
	name = chatTag.ReplaceAllString(name, "")
	name = itTag.ReplaceAllString(name, "")
	name = versionTag.ReplaceAllStringFunc(name, func(m string) string { return " " + m[1:] })
	name = separators.ReplaceAllString(name, " ")
	name = repeatedSpace.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}
