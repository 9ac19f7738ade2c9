package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"google.golang.org/genai"
	"gopkg.in/yaml.v3"

	"github.com/vango-go/vai-duet/pkg/core/media"
	"github.com/vango-go/vai-duet/pkg/core/tools"
	"github.com/vango-go/vai-duet/pkg/gateway/config"
	"github.com/vango-go/vai-duet/pkg/gateway/journal"
	"github.com/vango-go/vai-duet/pkg/gateway/live/session"
	"github.com/vango-go/vai-duet/pkg/gateway/mediastore"
	gatewayserver "github.com/vango-go/vai-duet/pkg/gateway/server"
)

const httpShutdownTimeout = 5 * time.Second

type serveDeps struct {
	loadConfig   func() (config.Config, error)
	newServer    func(context.Context, config.Config, *slog.Logger) (*gatewayserver.Server, func(), error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultServeDeps() serveDeps {
	return serveDeps{
		loadConfig: config.LoadFromEnv,
		newServer:  newGeminiServer,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

// newGeminiServer wires the production stack: one genai client shared by
// the live transports and the media backend, plus the optional journal.
func newGeminiServer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*gatewayserver.Server, func(), error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create genai client: %w", err)
	}

	mediaClient := media.NewClient(
		media.NewGenAIBackend(client, media.GenAIConfig{
			APIKey:        cfg.GeminiAPIKey,
			VideoModel:    cfg.VideoModel,
			ImageModel:    cfg.ImageModel,
			SpeechModel:   cfg.SpeechModel,
			SpeechVoice:   cfg.SpeechVoice,
			MaxVideoBytes: cfg.MediaMaxBytes,
		}),
		media.WithPollInterval(cfg.VideoPollInterval),
		media.WithLogger(logger.With("component", "media")),
	)

	deps := gatewayserver.Deps{
		NewTransport: session.GenAITransports(client, logger),
		Media:        mediaClient,
		Store:        mediastore.New(mediaClient, cfg.MediaMaxBytes, logger),
	}
	cleanup := func() {}
	if cfg.DatabaseURL != "" {
		j, err := journal.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		deps.Journal = j
		cleanup = j.Close
	}
	return gatewayserver.New(cfg, logger, deps), cleanup, nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runServe(ctx context.Context, logger *slog.Logger, deps serveDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.newServer == nil {
		return errors.New("missing newServer dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	srv, cleanup, err := deps.newServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	defer cleanup()
	httpSrv := buildHTTPServer(cfg, srv.Handler())

	logger.Info("starting studio server",
		"addr", cfg.Addr,
		"speaking_model", cfg.SpeakingModel,
		"function_model", cfg.FunctionModel,
		"journal", cfg.DatabaseURL != "",
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer drainCancel()
	// Hijacked studio sockets are not tracked by http.Server.Shutdown.
	if !srv.Drain(drainCtx) {
		logger.Warn("drain timed out; remaining studio sessions were canceled")
	}
	// The drain may have used the whole grace period.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("studio server stopped")
	return nil
}

func writeTools(w io.Writer, format string) error {
	decls := tools.Declarations()
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(decls)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(decls); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q (want json or yaml)", format)
	}
}

func newRootCmd(stderr io.Writer, deps serveDeps) *cobra.Command {
	root := &cobra.Command{
		Use:           "vai-duet",
		Short:         "Dual-session Gemini Live studio server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var envFile string
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading configuration")
	root.PersistentPreRunE = func(*cobra.Command, []string) error {
		if envFile == "" {
			return nil
		}
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %q: %w", envFile, err)
		}
		return nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the studio HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.New(slog.NewTextHandler(stderr, nil))
			return runServe(cmd.Context(), logger, deps)
		},
	})

	var format string
	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the function-session tool declarations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeTools(cmd.OutOrStdout(), format)
		},
	}
	toolsCmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	root.AddCommand(toolsCmd)

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply request journal migrations to VAI_DUET_DATABASE_URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url := os.Getenv("VAI_DUET_DATABASE_URL")
			if url == "" {
				return errors.New("VAI_DUET_DATABASE_URL must be set")
			}
			j, err := journal.Open(cmd.Context(), url)
			if err != nil {
				return err
			}
			j.Close()
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "journal migrations applied")
			return err
		},
	})

	return root
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps serveDeps) int {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	root := newRootCmd(stderr, deps)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "vai-duet: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr, defaultServeDeps()))
}
