package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"chatline/internal/app"
	"chatline/internal/config"
)

const version = "0.1.0"

// options is shared by every command. cfg is loaded before a command runs.
type options struct {
	v   *viper.Viper
	cfg *config.Config
}

// NewRootCmd builds the chatline command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{v: viper.New()}

	root := &cobra.Command{
		Use:     "chatline",
		Short:   "Streaming chat client for remote and local models",
		Version: version,
		Long: `chatline serves a browser chat client backed by a remote completion API or
a local Ollama engine, and keeps conversation history in a local store.`,
		Example: `  # Serve the chat client on port 8000
  $ chatline serve

  # List stored conversations
  $ chatline conversations list

  # Print a conversation as a transcript
  $ chatline conversations show conv-1234`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.v)
			if err != nil {
				return err
			}
			opts.cfg = cfg

			level := cfg.LogLevel
			if f := cmd.Flag("log-level"); cmd.Name() != "serve" && (f == nil || !f.Changed) {
				level = "WARN"
			}
			app.SetupLogger(level)
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.String("log-level", "", "log level: DEBUG, INFO, WARN or ERROR")
	flags.String("store", "", "conversation store: sqlite, redis or memory")
	flags.String("db", "", "SQLite database path")
	flags.String("redis", "", "Redis address")
	bindFlags(opts.v, flags, map[string]string{
		"LOG_LEVEL":     "log-level",
		"STORE_DRIVER":  "store",
		"DATABASE_PATH": "db",
		"REDIS_ADDR":    "redis",
	})

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newConversationsCmd(opts))
	root.AddCommand(newModelsCmd(opts))
	return root
}

// Execute runs the command tree.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// bindFlags binds config keys to flags. A flag only wins when it is set.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			slog.Warn("Could not bind flag", "flag", name, "error", err)
		}
	}
}

// withStore opens the configured conversation store for the duration of fn.
func (o *options) withStore(ctx context.Context, fn func(*app.Store) error) error {
	store, err := app.OpenStore(ctx, o.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close store", "error", err)
		}
	}()
	return fn(store)
}
