package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chronicle-network/ledger-go/internal/anchor"
	"github.com/chronicle-network/ledger-go/internal/api"
	"github.com/chronicle-network/ledger-go/internal/config"
	"github.com/chronicle-network/ledger-go/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledger, err := store.OpenLedger(cfg.DataDir, cfg.MaxAttachmentBytes, nil)
	if err != nil {
		zap.S().Fatalw("ledger open failed", "data_dir", cfg.DataDir, "error", err)
	}
	defer ledger.Close()

	var anchorWorker *anchor.Anchor
	if len(cfg.Stampers) > 0 {
		anchorWorker = anchor.New(cfg.Stampers, ledger.Proofs(), 256)
		ledger.SetAnchor(anchorWorker)
	} else {
		zap.S().Info("no stampers configured, timestamping disabled")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(ledger, cfg),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	group, ctx := errgroup.WithContext(ctx)
	if anchorWorker != nil {
		group.Go(func() error {
			return anchorWorker.Run(ctx)
		})
	}
	group.Go(func() error {
		zap.S().Infow("ledger listening",
			"addr", cfg.HTTPAddr, "base_url", cfg.BaseURL,
			"records", ledger.Count(), "public_key", ledger.Signer().PublicKeyHex())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		zap.S().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		zap.S().Fatalw("server failed", "error", err)
	}
	zap.S().Info("server stopped")
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
