package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"chatline/internal/config"
	"chatline/internal/llm"
)

const modelsTimeout = 15 * time.Second

func newModelsCmd(opts *options) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models offered by the completion API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), modelsTimeout)
			defer cancel()
			if local {
				return listLocalModels(ctx, cmd.OutOrStdout(), opts.cfg)
			}
			return listCatalog(ctx, cmd.OutOrStdout(), opts.cfg)
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "list models installed on the Ollama server instead")
	return cmd
}

func listCatalog(ctx context.Context, w io.Writer, cfg *config.Config) error {
	client := llm.NewCatalogClient(llm.CatalogOptions{
		BaseURL:                cfg.APIBaseURL,
		ModelsEndpoint:         cfg.ModelsEndpoint,
		FrontierModelsEndpoint: cfg.FrontierModelsEndpoint,
		DefaultFreeModel:       cfg.DefaultFreeModel,
		DefaultPaidModel:       cfg.DefaultPaidModel,
	})
	catalog, err := client.Fetch(ctx, cfg.FrontierAccess)
	if err != nil {
		return fmt.Errorf("could not fetch model catalog: %w", err)
	}
	if len(catalog.Models) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No models available."))
		return nil
	}

	fmt.Fprintln(w, headerStyle.Render(column("  ID", 50)+column("NAME", 30)+"TIER"))
	for _, m := range catalog.Models {
		tier := "free"
		if m.Paid() {
			tier = "paid"
		}
		marker := "  "
		if m.ID == catalog.Default {
			marker = "* "
		}
		line := column(marker+m.ID, 50) + column(llm.DisplayName(m.ID), 30) + tier
		if m.ID == catalog.Default {
			line = currentStyle.Render(line)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func listLocalModels(ctx context.Context, w io.Writer, cfg *config.Config) error {
	models, err := llm.NewOllamaClient(cfg.OllamaURL).List(ctx)
	if err != nil {
		return fmt.Errorf("could not list local models at %s: %w", cfg.OllamaURL, err)
	}
	if len(models) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No local models installed."))
		return nil
	}

	fmt.Fprintln(w, headerStyle.Render(column("NAME", 50)+column("SIZE", 12)+"MODIFIED"))
	for _, m := range models {
		fmt.Fprintln(w, column(m.Name, 50)+column(humanSize(m.Size), 12)+m.ModifiedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
