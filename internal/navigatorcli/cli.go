package navigatorcli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/phillip-england/navigator/internal/apiapp"
	"github.com/phillip-england/navigator/internal/clientapp"
	"github.com/phillip-england/navigator/internal/config"
	"github.com/phillip-england/navigator/internal/envutil"
	"github.com/phillip-england/navigator/internal/logging"
	"github.com/phillip-england/navigator/internal/store"
)

var ErrUsage = errors.New("usage")

type app struct {
	envFile string
}

func Execute(args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "navigator",
		Short:         "Immigration navigator servers and tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageError()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return usageError()
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "path to .env file")
	root.AddCommand(
		a.setupCommand(),
		a.runCommand(),
		a.bridgeCommand(),
		a.timelineCommand(),
		a.smokeCommand(),
	)
	return root
}

func usageError() error {
	return fmt.Errorf("%w: navigator <setup|run|bridge|timeline|smoke> [...]", ErrUsage)
}

func exactArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%w: %s", ErrUsage, usage)
		}
		return nil
	}
}

func (a *app) loadConfig() (config.Config, error) {
	return config.Load(viper.New(), a.envFile)
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	return logging.New(w, cfg.LogLevel, cfg.LogFormat)
}

func (a *app) setupCommand() *cobra.Command {
	var (
		force       bool
		dsn         string
		apiBaseURL  string
		redisURL    string
		pdfTemplate string
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write a .env file with the navigator settings",
		Args:  exactArgs(0, "navigator setup [--force] [--db-dsn dsn] [--api-base-url url] [--redis-url url] [--pdf-template path]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("db-dsn") {
				cfg.DBDSN = dsn
			}
			if flags.Changed("api-base-url") {
				cfg.APIBaseURL = apiBaseURL
			}
			if flags.Changed("redis-url") {
				cfg.RedisURL = redisURL
			}
			if flags.Changed("pdf-template") {
				cfg.PDFTemplate = pdfTemplate
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := envutil.WriteDotEnv(a.envFile, cfg.EnvValues(), force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", a.envFile)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing env file")
	cmd.Flags().StringVar(&dsn, "db-dsn", "", "sqlite path or postgres DSN")
	cmd.Flags().StringVar(&apiBaseURL, "api-base-url", "", "API URL used by the client server")
	cmd.Flags().StringVar(&redisURL, "redis-url", "", "redis URL for the shared rate limiter")
	cmd.Flags().StringVar(&pdfTemplate, "pdf-template", "", "fillable I-130 template")
	return cmd
}

func (a *app) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "run api|client|all",
		Short:     "Run the API server, the client server, or both",
		Args:      exactArgs(1, "navigator run api|client|all"),
		ValidArgs: []string{"api", "client", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			switch args[0] {
			case "api":
				return runAPI(ctx, cfg, logger)
			case "client":
				return runClient(ctx, cfg, logger)
			case "all":
				return runAll(ctx, cfg, logger)
			default:
				return fmt.Errorf("%w: unknown run target %q", ErrUsage, args[0])
			}
		},
	}
}

func runAPI(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := ensureDBDir(cfg.DBDSN); err != nil {
		return err
	}
	err := apiapp.Run(ctx, apiapp.Config{
		Addr:            cfg.APIAddr,
		DSN:             cfg.DBDSN,
		PDFTemplatePath: cfg.PDFTemplate,
		RateLimitRPS:    cfg.RateLimitRPS,
		RateLimitBurst:  cfg.RateLimitBurst,
		RedisURL:        cfg.RedisURL,
		TrustedProxies:  cfg.TrustedProxyList(),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
	}, logger.With("server", "api"))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runClient(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	err := clientapp.Run(ctx, clientapp.Config{
		Addr:         cfg.ClientAddr,
		APIBaseURL:   cfg.APIBaseURL,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, logger.With("server", "client"))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runAll(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	errCh := make(chan error, 2)

	go func() { errCh <- runAPI(ctx, cfg, logger) }()
	go func() {
		time.Sleep(500 * time.Millisecond)
		errCh <- runClient(ctx, cfg, logger)
	}()

	for i := 0; i < 2; i++ {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

// ensureDBDir creates the parent directory of a SQLite database file.
func ensureDBDir(dsn string) error {
	if _, dialect := store.DriverFor(dsn); dialect != store.SQLite {
		return nil
	}
	if strings.HasPrefix(dsn, "file:") || dsn == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}
