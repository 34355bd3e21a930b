package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nmxmxh/dmct/internal/consensus"
	"github.com/nmxmxh/dmct/internal/feed"
	"github.com/nmxmxh/dmct/internal/field"
	"github.com/nmxmxh/dmct/internal/lifecycle"
	"github.com/nmxmxh/dmct/internal/metrics"
	"github.com/nmxmxh/dmct/internal/network"
	"github.com/nmxmxh/dmct/internal/wave"
)

const shutdownTimeout = 10 * time.Second

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Runs a networked node that records what it hears in a ledger",
		RunE:  serveFunc,
	}
	flags := c.Flags()
	AddFlags(flags)
	return c
}

func serveFunc(c *cobra.Command, args []string) error {
	config, err := ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}

	ctx := c.Context()
	logger := slog.Default()
	shutdown := lifecycle.NewShutdown(shutdownTimeout, logger)
	defer func() {
		if err := shutdown.Run(context.Background()); err != nil {
			logger.Error("shutdown incomplete", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		return err
	}

	hub := feed.NewHub(logger)
	shutdown.RegisterCloser("feed", func() error {
		hub.Close()
		return nil
	})

	ledger := consensus.NewLedger(
		consensus.WithMetrics(m),
		consensus.WithLogger(logger),
		consensus.WithObserver(hub.Publish),
	)
	if config.Snapshot != "" {
		if err := loadSnapshot(ledger, config.Snapshot); err != nil {
			return err
		}
		shutdown.RegisterCloser("snapshot", func() error {
			return writeSnapshot(ledger, config.Snapshot)
		})
	}

	node, err := field.NewNode(
		field.WithPosition(config.X, config.Y, config.Z),
		field.WithMetrics(m),
		field.WithLogger(logger),
		field.WithListener(func(e *wave.Emission) {
			if _, err := ledger.SubmitEmission(e); err != nil {
				logger.Warn("emission not recorded", "emission_id", e.ID, "error", err)
			}
		}),
	)
	if err != nil {
		return err
	}

	host, err := network.New(node, config.Network, network.WithLogger(logger), network.WithMetrics(m))
	if err != nil {
		return err
	}
	shutdown.RegisterCloser("libp2p", host.Close)
	for _, addr := range host.Addrs() {
		logger.Info("listening", "addr", addr)
	}

	for _, addr := range config.Peers {
		remote, err := host.Dial(ctx, addr)
		if err != nil {
			logger.Warn("peer unreachable", "addr", addr, "error", err)
			continue
		}
		logger.Info("peer introduced", "peer_id", remote.PeerID().String(), "position", remote.Position().String())
	}

	if _, err := node.Emit(field.JoinAmplitude, wave.Payload{wave.KeyType: "join"}); err != nil {
		return err
	}

	if config.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              config.HTTPAddr,
			Handler:           routes(hub, ledger, registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server stopped", "error", err)
			}
		}()
		shutdown.Register("http", srv.Shutdown)
		logger.Info("http ready", "addr", config.HTTPAddr)
	}

	if config.Heartbeat > 0 {
		go func() {
			_ = node.Heartbeat(ctx, config.Heartbeat)
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down", "events", ledger.Len())
	return nil
}

func routes(hub *feed.Hub, ledger *consensus.Ledger, registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/feed", hub)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/consensus", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		if key == "" {
			writeJSON(w, ledger.Keys())
			return
		}
		writeJSON(w, ledger.Consensus(key))
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func loadSnapshot(ledger *consensus.Ledger, path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := ledger.MergeSnapshot(f); err != nil {
		return fmt.Errorf("load snapshot %s: %w", path, err)
	}
	return nil
}

func writeSnapshot(ledger *consensus.Ledger, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ledger.WriteSnapshot(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
