package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zapflowhq/zapflow/internal/adapters/gateway"
	httpAdapter "github.com/zapflowhq/zapflow/internal/adapters/http"
	"github.com/zapflowhq/zapflow/internal/ai"
	"github.com/zapflowhq/zapflow/internal/config"
	"github.com/zapflowhq/zapflow/internal/engine"
	"github.com/zapflowhq/zapflow/internal/flow"
	"github.com/zapflowhq/zapflow/internal/guard"
	"github.com/zapflowhq/zapflow/internal/logging"
	"github.com/zapflowhq/zapflow/internal/media"
	"github.com/zapflowhq/zapflow/internal/receipts"
	"github.com/zapflowhq/zapflow/internal/remarketing"
	"github.com/zapflowhq/zapflow/internal/session"
	"github.com/zapflowhq/zapflow/pkg/adapters/memory"
	"github.com/zapflowhq/zapflow/pkg/adapters/redis"
	"github.com/zapflowhq/zapflow/pkg/domain"
	"github.com/zapflowhq/zapflow/pkg/ports"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the conversation engine and admin API",
	Long:  `Connects to the messaging gateway, loads the active flow, and serves the operator HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cfg *config.Config) error {
	logger := logging.New(logging.ParseLevel(cfg.LogLevel))

	var (
		graphs     ports.GraphStore
		leads      ports.LeadStore
		financials ports.FinancialStore
	)
	if cfg.Redis.Addr != "" {
		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer store.Close()
		graphs, leads, financials = store, store, store
		logger.Info("using redis stores", "addr", cfg.Redis.Addr)
	} else {
		graphs = memory.NewGraphStore()
		leads = memory.NewLeadStore()
		financials = memory.NewFinancialStore()
		logger.Warn("no redis configured, using in-memory stores")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	host := flow.NewHost(graphs, logger)
	if err := host.Load(ctx); err != nil {
		return err
	}

	sessions := session.NewRegistry()

	// The gateway and the dispatcher reference each other; the handler
	// is filled in once the dispatcher exists, before Run starts.
	handler := &gatewayHandler{}
	transport := gateway.NewClient(cfg.Gateway.URL, handler, logger)

	pipeline := media.NewPipeline(transport, media.NewFFmpeg(cfg.Media.FFmpegPath), logger,
		media.WithTempDir(cfg.Media.TempDir))

	var processorOpts []engine.ProcessorOption
	if cfg.Engine.MaxHops > 0 {
		processorOpts = append(processorOpts, engine.WithMaxHops(cfg.Engine.MaxHops))
	}
	processor := engine.NewProcessor(host, sessions, transport, pipeline, logger, processorOpts...)

	dispatcherOpts := []engine.DispatcherOption{
		engine.WithReceiptExtractor(receipts.NewExtractor(logger)),
	}
	if cfg.Engine.Cooldown() > 0 {
		dispatcherOpts = append(dispatcherOpts, engine.WithCooldown(cfg.Engine.Cooldown()))
	}
	if len(cfg.Engine.StartKeywords) > 0 {
		dispatcherOpts = append(dispatcherOpts, engine.WithStartKeywords(cfg.Engine.StartKeywords))
	}
	if cfg.Engine.DedupSeconds > 0 || cfg.Engine.StartLockSeconds > 0 {
		dedupWindow := engine.DedupWindow
		if cfg.Engine.DedupSeconds > 0 {
			dedupWindow = time.Duration(cfg.Engine.DedupSeconds) * time.Second
		}
		lockWindow := engine.StartLockWindow
		if cfg.Engine.StartLockSeconds > 0 {
			lockWindow = time.Duration(cfg.Engine.StartLockSeconds) * time.Second
		}
		dispatcherOpts = append(dispatcherOpts,
			engine.WithGuardSets(guard.NewSet(dedupWindow), guard.NewSet(lockWindow)))
	}
	if cfg.AI.Enabled() {
		responder := ai.NewResponder(cfg.AI.APIKey, cfg.AI.BaseURL, logger, ai.WithModel(cfg.AI.Model))
		dispatcherOpts = append(dispatcherOpts, engine.WithResponder(responder))
		logger.Info("ai fallback responder enabled", "model", cfg.AI.Model)
	}
	dispatcher := engine.NewDispatcher(host, sessions, leads, processor, transport, logger, dispatcherOpts...)
	dispatcher.StartSweeping(ctx)
	handler.dispatcher = dispatcher

	go transport.Run(ctx)

	if cfg.Remarketing.Enabled {
		scheduler := remarketing.NewScheduler(leads, transport, logger)
		go scheduler.Start(ctx)
	}

	admin := httpAdapter.NewServer(host, leads, financials, transport, dispatcher, logger)
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: admin.Handler(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("admin api listening", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("shutting down", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown did not complete, forcing close", "err", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("failed to close server: %w", err)
			}
		}
		logger.Info("stopped")
	}
	return nil
}

// gatewayHandler forwards inbound gateway traffic to the dispatcher.
type gatewayHandler struct {
	dispatcher *engine.Dispatcher
}

func (h *gatewayHandler) HandleEvent(ctx context.Context, ev domain.InboundEvent) {
	if h.dispatcher != nil {
		h.dispatcher.HandleEvent(ctx, ev)
	}
}

func (h *gatewayHandler) HandleVote(ctx context.Context, vote domain.PollVote) {
	if h.dispatcher != nil {
		h.dispatcher.HandleVote(ctx, vote)
	}
}
