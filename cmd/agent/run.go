package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/biovault/document-agent/internal/alerts"
	apiserver "github.com/biovault/document-agent/internal/api_server"
	"github.com/biovault/document-agent/internal/config"
	"github.com/biovault/document-agent/internal/orchestrator"
	"github.com/biovault/document-agent/internal/pipeline"
	"github.com/biovault/document-agent/internal/store"
	"github.com/biovault/document-agent/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the document agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalw("reading configuration", "error", err)
		}

		logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
		if err != nil {
			logLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}

		logger := log.InitLog(logLvl)
		defer func() { _ = logger.Sync() }()

		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Info("Starting document agent")
		defer zap.S().Info("Document agent stopped")

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		st := store.NewStore(db)
		defer st.Close()

		if err := st.InitialMigration(); err != nil {
			zap.S().Fatalw("running initial migration", "error", err)
		}

		dispatcher := alerts.NewDispatcher(cfg.Agent.AlertWebhookURL)
		defer dispatcher.Close()

		agent := orchestrator.New(
			st,
			pipeline.NewVisionExtractor(cfg),
			pipeline.NewLLMStandardizer(cfg),
			dispatcher,
			cfg.Agent.PollInterval,
		)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		agentDone := make(chan struct{})
		go func() {
			defer cancel()
			defer close(agentDone)
			if err := agent.Run(ctx); err != nil {
				zap.S().Errorw("agent loop terminated", "error", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			server := apiserver.New(cfg, st, listener, agent)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalw("running api server", "error", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Fatalw("creating metrics listener", "error", err)
			}

			metricsServer := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener)
			if err := metricsServer.Run(ctx); err != nil {
				zap.S().Fatalw("running metrics server", "error", err)
			}
		}()

		<-ctx.Done()

		// The agent loop waits out any in-flight tick before returning; the
		// store and dispatcher must stay open until then.
		select {
		case <-agentDone:
		case <-time.After(agentStopTimeout):
			zap.S().Warn("timed out waiting for agent loop to stop")
		}
		return nil
	},
}

const agentStopTimeout = 30 * time.Second

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
