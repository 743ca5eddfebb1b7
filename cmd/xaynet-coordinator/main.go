// xaynet-coordinator runs the PET protocol round coordinator standalone:
// open a store, build a Coordinator, and hand both to a phase machine
// until interrupted. The transport adapter that turns participant
// requests into internal/round.Coordinator calls is out of scope here
// (spec.md §1); this binary only proves the core wires together, the
// same minimal composition root shape as the teacher's cmd/relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xaynetwork/xaynet/common/log"
	"github.com/xaynetwork/xaynet/internal/chain"
	"github.com/xaynetwork/xaynet/internal/chain/boltdb"
	"github.com/xaynetwork/xaynet/internal/chain/memdb"
	"github.com/xaynetwork/xaynet/internal/config"
	netpkg "github.com/xaynetwork/xaynet/internal/net"
	"github.com/xaynetwork/xaynet/internal/phase"
	"github.com/xaynetwork/xaynet/internal/round"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "xaynet-coordinator:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "path to a TOML configuration file (spec.md §6)")
		modelLength = flag.Int("model-length", 0, "model vector length L, required unless set in -config")
		storePath   = flag.String("store", "", "bolt store path; empty selects the in-process memory store")
		metricsAddr = flag.String("metrics-addr", "", "address to serve /metrics on; empty disables it")
	)
	flag.Parse()

	l := log.DefaultLogger()

	opts := []config.ConfigOption{}
	if *configPath != "" {
		fileOpts, err := config.LoadTOML(*configPath)
		if err != nil {
			return err
		}
		opts = append(opts, fileOpts...)
	}
	if *modelLength > 0 {
		opts = append(opts, config.WithModelLength(*modelLength))
	}
	if *storePath != "" {
		opts = append(opts, config.WithBoltStore(*storePath))
	}

	cfg, err := config.NewConfig(l, opts...)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, l)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	collector := netpkg.NewPrometheusCollector(registry)
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, registry, l)
	}

	coordinator := round.New(store, cfg.Mask, cfg.ModelLength, cfg.Thresholds, l.Named("round"),
		round.WithFailOnDissent(cfg.FailOnDissent))
	machine := phase.New(store, clockwork.NewRealClock(), cfg.Phases, coordinator, l.Named("phase"),
		phase.WithMetrics(collector))
	coordinator.SetWaker(machine)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	l.Infow("coordinator starting", "model_length", cfg.ModelLength)
	if err := machine.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// openStore opens the configured chain.Store. For the durable backend,
// restore.enable (spec.md §6) decides whether a previously persisted
// database is loaded or discarded in favor of a fresh one at round 0:
// the coordinator never silently resumes state an operator didn't ask
// for.
func openStore(cfg *config.Config, l log.Logger) (chain.Store, error) {
	switch cfg.Store {
	case config.StoreBolt:
		if !cfg.RestoreEnable {
			dbPath := path.Join(cfg.StorePath, boltdb.FileName)
			if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("xaynet-coordinator: clearing store for fresh start: %w", err)
			}
		}
		return boltdb.Open(cfg.StorePath, l.Named("boltdb"), nil)
	case config.StoreMemory:
		return memdb.New(), nil
	default:
		return nil, fmt.Errorf("xaynet-coordinator: unknown store kind %v", cfg.Store)
	}
}

func serveMetrics(addr string, registry *prometheus.Registry, l log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	l.Infow("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		l.Errorw("metrics server stopped", "err", err)
	}
}
