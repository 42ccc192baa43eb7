package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/lnsync/internal/api"
	"github.com/kalambet/lnsync/internal/blocks"
	"github.com/kalambet/lnsync/internal/config"
	"github.com/kalambet/lnsync/internal/docstore"
	"github.com/kalambet/lnsync/internal/linear"
	"github.com/kalambet/lnsync/internal/notion"
	"github.com/kalambet/lnsync/internal/oracle"
	"github.com/kalambet/lnsync/internal/pipeline"
	"github.com/kalambet/lnsync/internal/rollup"
	"github.com/kalambet/lnsync/internal/schedule"
	"github.com/kalambet/lnsync/internal/storage"
	"github.com/kalambet/lnsync/internal/supervisor"
	"github.com/kalambet/lnsync/internal/webhook"
)

var startCmd = &cobra.Command{
	Use:     "start",
	Aliases: []string{"serve"},
	Short:   "Start the webhook server and rollup scheduler (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show lnsync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

// loadConfig loads the configuration and installs the default logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}

// openStore opens the configured document store. The returned func releases
// it.
func openStore(cfg config.Config) (docstore.Store, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening storage: %w", err)
		}
		slog.Info("using local document store", "data_dir", cfg.Storage.DataDir)
		return store, func() {
			if err := store.Close(); err != nil {
				printWarning("closing storage: %v", err)
			}
		}, nil
	default:
		client, err := notion.New(notion.Options{
			APIKey:            cfg.Notion.APIKey,
			DatabaseID:        cfg.Notion.DatabaseID,
			RollupDatabaseID:  cfg.RollupDatabase(),
			BaseURL:           cfg.Notion.APIURL,
			Version:           cfg.Notion.Version,
			RequestsPerSecond: cfg.Notion.RequestsPerSecond,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	}
}

func newAggregator(cfg config.Config, store docstore.Store) *rollup.Aggregator {
	return rollup.NewAggregator(store, cfg.Rollup.Title, cfg.Sync.Namespace)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "lnsync version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	transformer, err := oracle.New(oracle.Options{
		Provider: cfg.Oracle.Provider,
		APIKey:   cfg.Oracle.APIKey,
		Model:    cfg.Oracle.Model,
		BaseURL:  cfg.Oracle.BaseURL,
		Timeout:  cfg.Oracle.Timeout,
	})
	if err != nil {
		return fmt.Errorf("configuring oracle: %w", err)
	}
	if transformer == nil {
		slog.Info("no conversion oracle configured, using the built-in formatter")
	}

	linearClient := linear.NewClient(cfg.Linear.APIKey, cfg.Linear.APIURL)
	if !linearClient.Configured() {
		slog.Warn("linear api key not set, team names come from webhook payloads only")
	}

	converter := blocks.NewConverter(transformer, cfg.Sync.Namespace, cfg.Oracle.Timeout)
	processor := pipeline.NewProcessor(store, converter, linearClient)
	aggregator := newAggregator(cfg, store)
	worker := schedule.NewWorker(aggregator, cfg.Rollup.Interval, cfg.Rollup.MaxAttempts, cfg.Rollup.BackoffUnit)

	if cfg.API.TriggerToken == "" {
		slog.Warn("api.trigger_token not set, POST /rollup is unauthenticated")
	}
	handler := api.NewRouter(api.Deps{
		Auth:         webhook.NewAuthenticator(cfg.Linear.WebhookSecret),
		Processor:    processor,
		Rollup:       aggregator,
		TriggerToken: cfg.API.TriggerToken,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	tree := supervisor.NewTree(slog.Default(), supervisor.TreeConfig{})
	tree.AddAPIService(supervisor.NewHTTPService(srv, 10*time.Second))
	tree.AddWorkerService(supervisor.NewLoopService("rollup-scheduler", worker))

	slog.Info("lnsync listening", "addr", cfg.Addr(), "backend", cfg.Storage.Backend)
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}
	fmt.Fprintln(os.Stderr, "shutting down...")
	return nil
}

// localURL is the base URL of a locally running server.
func localURL(cfg config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, fmt.Sprint(cfg.Server.Port))
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{
		baseURL:    localURL(cfg),
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on %s", cfg.Addr())
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Backend", "%s", cfg.Storage.Backend)
	if cfg.Storage.Backend == config.BackendSQLite {
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
	} else {
		printStatus("Records DB", "%s", cfg.Notion.DatabaseID)
		printStatus("Rollup DB", "%s", cfg.RollupDatabase())
	}
	printStatus("Oracle", "%s", cfg.Oracle.Provider)
	printStatus("Linear API", "%s", setLabel(cfg.Linear.APIKey))
	printStatus("Webhook secret", "%s", setLabel(cfg.Linear.WebhookSecret))
	printStatus("Rollup", "every %s, %d attempts", cfg.Rollup.Interval, cfg.Rollup.MaxAttempts)
	return nil
}

func setLabel(secret string) string {
	if secret == "" {
		return "not set"
	}
	return "set"
}
