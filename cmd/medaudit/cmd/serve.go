package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/solatis/medaudit/internal/core/admin"
	"github.com/solatis/medaudit/internal/core/api"
	"github.com/solatis/medaudit/internal/core/compliance"
	"github.com/solatis/medaudit/internal/core/db"
	"github.com/solatis/medaudit/internal/core/server"
	"github.com/solatis/medaudit/internal/events"
	"github.com/solatis/medaudit/internal/metrics"
	"github.com/solatis/medaudit/internal/validators"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC scoring service and the admin HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("grpc-host", "", "gRPC server host")
	serveCmd.Flags().Int("grpc-port", 0, "gRPC server port")
	serveCmd.Flags().String("admin-host", "", "admin HTTP server host")
	serveCmd.Flags().Int("admin-port", 0, "admin HTTP server port")
	serveCmd.Flags().Bool("migrate", true, "apply pending migrations before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log, conn, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer log.Sync()

	flags := cmd.Flags()
	if flags.Changed("grpc-host") {
		cfg.GRPC.Host, _ = flags.GetString("grpc-host")
	}
	if flags.Changed("grpc-port") {
		cfg.GRPC.Port, _ = flags.GetInt("grpc-port")
	}
	if flags.Changed("admin-host") {
		cfg.Admin.Host, _ = flags.GetString("admin-host")
	}
	if flags.Changed("admin-port") {
		cfg.Admin.Port, _ = flags.GetInt("admin-port")
	}

	if migrate, _ := flags.GetBool("migrate"); migrate {
		if err := db.MigrateUp(ctx, conn, log); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	queries, err := db.LoadQueries(conn)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	metrics.Register(prometheus.DefaultRegisterer)

	opts := compliance.Options{
		Cache:      cfg.Rules.CacheConfig(),
		Validators: validators.Default(),
	}
	if cfg.Events.Enabled() {
		publisher, err := events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic, log.With("component", "events"))
		if err != nil {
			return fmt.Errorf("failed to create event publisher: %w", err)
		}
		defer publisher.Close()
		opts.Notifier = publisher
	}

	svc, current, err := compliance.New(ctx, queries, opts, log)
	if err != nil {
		return err
	}
	log.Infow("Rule set loaded", "version", current.VersionNumber, "content_hash", current.ContentHash)

	scoring, err := api.NewScoringService(svc.Scorer)
	if err != nil {
		return fmt.Errorf("failed to create scoring service: %w", err)
	}
	grpcServer, err := server.NewGRPCServer(cfg.GRPC, scoring, log.With("component", "grpc"))
	if err != nil {
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}

	limiter := admin.NewRateLimiter(cfg.Admin.RateLimitRPS, cfg.Admin.RateLimitBurst)
	adminAPI := admin.NewAPI(svc.Rules, svc.Scorer, svc.Tracker, limiter, log.With("component", "admin"))
	httpServer, err := server.NewHTTPServer(cfg.Admin, adminAPI.Router, log.With("component", "admin"))
	if err != nil {
		return fmt.Errorf("failed to create admin server: %w", err)
	}

	log.Infow("Starting medaudit", "version", Version)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return grpcServer.Start(gctx) })
	g.Go(func() error { return httpServer.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Infow("Shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		httpErr := httpServer.Shutdown(shutdownCtx)
		grpcErr := grpcServer.Shutdown(shutdownCtx)
		if httpErr != nil {
			return httpErr
		}
		return grpcErr
	})

	if err := g.Wait(); err != nil {
		log.Errorw("Server stopped with error", "error", err)
		return err
	}
	return nil
}
