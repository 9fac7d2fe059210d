package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chatline/internal/app"
)

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API and serve the browser client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, opts.cfg)
		},
	}

	flags := cmd.Flags()
	flags.Int("port", 0, "HTTP port")
	flags.String("static", "", "directory with the browser client")
	flags.Bool("local", false, "enable local inference through Ollama")
	bindFlags(opts.v, flags, map[string]string{
		"APP_PORT":          "port",
		"STATIC_DIR":        "static",
		"ENABLE_LOCAL_MODE": "local",
	})
	return cmd
}
