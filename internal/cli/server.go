package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"skillyhead-service/internal/app"
	"skillyhead-service/internal/config"
	redisinfra "skillyhead-service/internal/infra/redis"
	"skillyhead-service/internal/jobs"
	"skillyhead-service/internal/logging"
	"skillyhead-service/internal/observability"
	transport "skillyhead-service/internal/transport/http"
)

var release = "dev"

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the assessment server",
		RunE: func(cmd *cobra.Command, args []string) error {
			banner()
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	lg, err := logging.Init(cfg.Log.Level, cfg.Log.Env, cfg.Log.File)
	if err != nil {
		return err
	}
	defer lg.Closer()
	log := lg.Base

	flush, err := observability.InitSentry(cfg.Sentry.DSN, cfg.Sentry.Environment, release)
	if err != nil {
		log.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.Close()

	core := app.New(be.repos, log, app.WithGradingWorkers(cfg.Grading.Workers))
	if be.redis != nil {
		if err := redisinfra.NewGradingRelay(be.redis, core.Feed, log).Start(ctx); err != nil {
			return err
		}
	}
	if err := bootstrapAdmin(ctx, core, cfg, log); err != nil {
		return err
	}

	runner := jobs.New(ctx, log)
	runner.Every(config.TTLDuration(cfg.Jobs.ExpireInterval, time.Hour), "expire_contracts",
		jobs.ExpireContracts(core.Tenants, time.Now, log))

	api := transport.NewServer(core, transport.Options{
		Secret:     jwtSecret(cfg, log),
		TokenTTL:   config.TTLDuration(cfg.Auth.TokenTTL, 12*time.Hour),
		LoginRate:  cfg.Auth.LoginRate,
		LoginBurst: cfg.Auth.LoginBurst,
		Log:        log,
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting skillyhead service", zap.String("addr", server.Addr), zap.String("storage", cfg.Storage.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	case err := <-serveErr:
		log.Error("server failed", zap.Error(err))
		cancel()
		runner.Wait()
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	err = server.Shutdown(shutdownCtx)
	cancel()
	runner.Wait()
	return err
}

// jwtSecret returns the configured signing key, or a random one that only
// lives as long as the process.
func jwtSecret(cfg config.Config, log *zap.Logger) []byte {
	if cfg.Auth.JWTSecret != "" {
		return []byte(cfg.Auth.JWTSecret)
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	log.Warn("JWT_SECRET not set; using an ephemeral key, tokens will not survive a restart")
	return []byte(hex.EncodeToString(buf))
}
