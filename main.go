package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"director-console/internal/api"
	"director-console/internal/app"
	"director-console/internal/config"
	"director-console/internal/logging"
	"director-console/internal/metrics"
	"director-console/internal/remote"
	"director-console/internal/settings"
)

var (
	// Global flags
	configPath  string
	flagURL     string
	flagSite    int
	flagToken   string
	verbose     bool
	metricsAddr string
	useSSH      bool

	cfg    *config.Config
	logger *zap.Logger
)

// offline marks commands that only touch local state.
const offline = "offline"

var rootCmd = &cobra.Command{
	Use:   "director",
	Short: "Console for sites hosted on Director",
	Long: `director attaches to a Director site from the terminal: browse the live
file tree, edit files, follow the process log, open a shell, run SQL and
manage the console settings shared with the browser editor.

Connection settings come from the config file, DIRECTOR_URL, DIRECTOR_SITE
and DIRECTOR_TOKEN, and the flags below, in increasing priority.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			p, err := config.DefaultPath()
			if err != nil {
				return err
			}
			path = p
		}
		c, err := config.Load(path)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("url") {
			c.URL = flagURL
		}
		if cmd.Flags().Changed("site") {
			c.Site = flagSite
		}
		if cmd.Flags().Changed("token") {
			c.Token = flagToken
		}
		if useSSH {
			c.SSH.Enabled = true
		}
		if verbose {
			c.Logging.Level = "debug"
		}
		if metricsAddr != "" {
			c.Metrics.Addr = metricsAddr
		}

		if cmd.Annotations[offline] == "true" {
			if c.Site <= 0 {
				return fmt.Errorf("site not configured (set site in the config file or DIRECTOR_SITE)")
			}
		} else if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		logger, err = logging.New(c.LoggerConfig())
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if c.Metrics.Addr != "" {
			serveMetrics(cmd.Context(), c.Metrics.Addr)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $XDG_CONFIG_HOME/director-console/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "Director base URL (or set DIRECTOR_URL)")
	rootCmd.PersistentFlags().IntVarP(&flagSite, "site", "s", 0, "Site ID (or set DIRECTOR_SITE)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "API token (or set DIRECTOR_TOKEN)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().BoolVar(&useSSH, "ssh", false, "Use the SFTP backend for file operations")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
}

func newClient() (*api.Client, error) {
	return api.New(api.Config{
		BaseURL:       cfg.URL,
		SiteID:        cfg.Site,
		Token:         cfg.Token,
		SessionCookie: cfg.SessionCookie,
		CSRFToken:     cfg.CSRFToken,
		Timeout:       cfg.GetTimeout(),
		Logger:        logger,
	})
}

// newFiles returns the file backend: the SFTP backend when enabled, the
// HTTP API otherwise. The returned func releases it.
func newFiles(ctx context.Context, client *api.Client) (api.Files, func(), error) {
	if !cfg.SSH.Enabled {
		return client, func() {}, nil
	}
	b, err := remote.Dial(ctx, remote.Config{
		Host:           cfg.SSH.Host,
		Port:           cfg.SSH.Port,
		User:           cfg.SSH.User,
		KeyFile:        cfg.SSH.KeyFile,
		Password:       cfg.SSH.Password,
		Root:           cfg.SSH.Root,
		KnownHostsPath: cfg.SSH.KnownHosts,
		Timeout:        cfg.GetTimeout(),
		Logger:         logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return b, func() { _ = b.Close() }, nil
}

func openStore() (*settings.Store, error) {
	dir, err := cfg.GetStateDir()
	if err != nil {
		return nil, err
	}
	return settings.Open(dir, cfg.Site, logger)
}

// newApp builds the application state. The returned func stops every
// session and releases the file backend.
func newApp(ctx context.Context) (*app.App, func(), error) {
	client, err := newClient()
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	files, release, err := newFiles(ctx, client)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(app.Config{Client: client, Files: files, Store: store, Logger: logger})
	if err != nil {
		release()
		return nil, nil, err
	}
	return a, func() {
		a.Stop()
		release()
	}, nil
}
