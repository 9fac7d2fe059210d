package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"chatline/internal/api"
	"chatline/internal/config"
	"chatline/internal/llm"
	"chatline/internal/render"
	"chatline/internal/service"
)

// App holds the wired components of a running chat client.
type App struct {
	Store     *Store
	Publisher *render.Publisher
	Manager   *service.Manager
	Models    *service.ModelService
	Local     *service.LocalModels
	Server    *http.Server

	cfg *config.Config
}

// NewApp opens the store and wires every component.
func NewApp(cfg *config.Config) (*App, error) {
	store, err := OpenStore(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	caps := cfg.Capabilities()
	httpClient := &http.Client{}

	var registry *llm.EngineRegistry
	if cfg.EnableLocalMode {
		registry = llm.NewEngineRegistry(llm.NewOllamaClient(cfg.OllamaURL))
	}

	catalog := llm.NewCatalogClient(llm.CatalogOptions{
		BaseURL:                cfg.APIBaseURL,
		ModelsEndpoint:         cfg.ModelsEndpoint,
		FrontierModelsEndpoint: cfg.FrontierModelsEndpoint,
		DefaultFreeModel:       cfg.DefaultFreeModel,
		DefaultPaidModel:       cfg.DefaultPaidModel,
		HTTPClient:             httpClient,
	})
	backends := service.DefaultBackends(llm.RemoteOptions{
		BaseURL:          cfg.APIBaseURL,
		ChatEndpoint:     cfg.ChatEndpoint,
		AnonChatEndpoint: cfg.AnonChatEndpoint,
		APIKey:           cfg.APIKey,
		HTTPClient:       httpClient,
	}, registry, caps)

	publisher := render.NewPublisher(render.NewView())
	markdown := render.NewMarkdown()
	session := service.NewSession()

	coordinator := service.NewCoordinator(publisher, markdown, backends, caps, cfg.RenderInterval)
	models := service.NewModelService(catalog, session, caps)
	manager := service.NewManager(store.ConversationStore, session, coordinator, publisher, markdown, models, cfg.SaveDelay)
	local := service.NewLocalModels(store.ConversationStore, registry, session, manager, caps)

	chatHandler := api.NewChatHandler(manager, publisher)
	modelHandler := api.NewModelHandler(models, local)
	router := api.NewRouter(chatHandler, modelHandler, cfg.StaticDir)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		WriteTimeout:      0, // Disabled for streaming endpoints
		IdleTimeout:       120 * time.Second,
	}

	return &App{
		Store:     store,
		Publisher: publisher,
		Manager:   manager,
		Models:    models,
		Local:     local,
		Server:    server,
		cfg:       cfg,
	}, nil
}

// Restore brings back the state of the previous run: local models, the model
// catalog and the current conversation. An unreachable catalog is not fatal.
func (a *App) Restore(ctx context.Context) error {
	if err := a.Local.Restore(ctx); err != nil {
		return fmt.Errorf("could not restore local models: %w", err)
	}
	if _, err := a.Models.Refresh(ctx); err != nil {
		slog.WarnContext(ctx, "Could not load model catalog", "error", err)
	}
	if err := a.Manager.Restore(ctx); err != nil {
		return fmt.Errorf("could not restore conversation: %w", err)
	}
	return nil
}

// Close stops a running generation, writes any pending save and releases the
// store.
func (a *App) Close() error {
	a.Manager.Stop()
	if err := a.Manager.Flush(context.Background()); err != nil {
		slog.Error("Failed to save conversation on shutdown", "error", err)
	}
	if err := a.Publisher.Close(); err != nil {
		slog.Warn("Failed to close render publisher", "error", err)
	}
	return a.Store.Close()
}

// Run serves the HTTP API until ctx is done.
func Run(ctx context.Context, cfg *config.Config) error {
	SetupLogger(cfg.LogLevel)
	logConfigSource()

	if cfg.EnableLocalMode {
		waitForOllama(ctx, cfg.OllamaURL)
	}

	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Error("Failed to close store", "error", err)
		}
	}()

	if err := app.Restore(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "port", cfg.AppPort)
		errCh <- app.Server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	app.Manager.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func logConfigSource() {
	configFileUsed := viper.ConfigFileUsed()
	if configFileUsed != "" {
		slog.Info("Successfully loaded configuration from file.", "file", configFileUsed)
	} else {
		slog.Info("Configuration file not found. Using environment variables and defaults.")
	}
}

// SetupLogger installs a JSON slog handler at the given level as the default
// logger.
func SetupLogger(logLevel string) {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

// waitForOllama polls the local engine a few times so the first model load
// does not race its startup. Local mode still works if it comes up later.
func waitForOllama(ctx context.Context, ollamaURL string) {
	slog.Info("Waiting for Ollama to be ready...")
	client := &http.Client{Timeout: 2 * time.Second}
	for attempt := 1; attempt <= 5; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ollamaURL, nil)
		if err != nil {
			slog.Warn("Invalid Ollama URL", "url", ollamaURL, "error", err)
			return
		}
		resp, err := client.Do(req)
		if err == nil {
			if bErr := resp.Body.Close(); bErr != nil {
				slog.Warn("Failed to close response body in ollama health check", "error", bErr)
			}
			if resp.StatusCode == http.StatusOK {
				slog.Info("Ollama is ready.")
				return
			}
		}
		slog.Debug("Ollama not ready yet, retrying...", "url", ollamaURL, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
	slog.Warn("Ollama is not reachable, local models cannot be loaded until it is.", "url", ollamaURL)
}
