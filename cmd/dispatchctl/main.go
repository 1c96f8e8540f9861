package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/AnatoleLucet/dispatch"
	"github.com/AnatoleLucet/dispatch/config"
	"github.com/AnatoleLucet/dispatch/persist"
)

type tally struct {
	Count   int      `json:"count"`
	History []string `json:"history"`
}

func main() {
	configPath := flag.String("config", "", "TOML config file (environment still overrides it)")
	sends := flag.Int("sends", 5, "number of increments to dispatch")
	dump := flag.Bool("dump", true, "print the lifecycle graph")
	reset := flag.Bool("reset", false, "clear the tally through the relay once done")
	serve := flag.Duration("serve", 0, "keep serving metrics for this long after the run")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	rt := dispatch.NewRuntime(dispatch.WithConfig(cfg), dispatch.WithRegisterer(reg))
	log := rt.Logger()
	defer func() { _ = log.Sync() }()

	if cfg.Metrics.Enabled {
		go serveMetrics(log, cfg.Metrics.Addr, reg)
	}

	if err := run(rt, cfg, *sends, *dump, *reset); err != nil {
		log.Error("run failed", zap.Error(err))
		os.Exit(1)
	}

	if *serve > 0 {
		time.Sleep(*serve)
	}
}

func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persistence(cfg *config.Config) (dispatch.Persistence, func(), error) {
	if cfg.Store.Path == "" {
		return persist.NewMemory(), func() {}, nil
	}

	db, err := persist.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}

	store, err := persist.NewSQLite[tally](db, "dispatchctl.tally")
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return store, func() { _ = db.Close() }, nil
}

func run(rt *dispatch.Runtime, cfg *config.Config, sends int, dump, reset bool) error {
	log := rt.Logger()

	p, closeStore, err := persistence(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	var increment *dispatch.Event[tally, int]
	service := dispatch.NewService(rt, "tally-service", tally{}, func(b *dispatch.Builder[tally]) {
		b.Persist(p, true)

		record := dispatch.NewEvent(b, "record", func(_ context.Context, s *tally, by int) {
			s.History = append(s.History, fmt.Sprintf("+%d", by))
		}, dispatch.After())

		increment = dispatch.AddEvent(b, "increment", func(_ context.Context, s *tally, by int) {
			s.Count += by
		}, dispatch.Nest(record))

		dispatch.AddNotify(b, "increment")
	})
	defer service.Close()

	baseline := rt.Graph().Capture()

	var seen int
	var refresh *dispatch.Event[int, int]
	view := dispatch.NewComponent(rt, "tally-view", 0, func(b *dispatch.Builder[int]) {
		refresh = dispatch.AddEvent(b, "refresh", func(_ context.Context, s *int, _ int) {
			seen++
			*s = service.State().Count
		})
	})

	var resetEvent *dispatch.Event[tally, dispatch.Empty]
	relay := dispatch.NewRelay(service, "tally-relay", func(b *dispatch.Builder[tally]) {
		resetEvent = dispatch.AddEvent(b, "reset", func(_ context.Context, s *tally, _ dispatch.Empty) {
			*s = tally{}
		})
	})
	view.Attach()

	notify, _ := service.Notify("increment")
	for i := 1; i <= sends; i++ {
		notify.Register(refresh)
		increment.Send(i)
	}
	relay.Wait()
	view.Wait()

	state := service.State()
	log.Info("service settled",
		zap.Int("count", state.Count),
		zap.Strings("history", state.History),
		zap.Int("refreshes", seen),
	)
	fmt.Printf("count=%d history=%v\n", state.Count, state.History)

	if dump {
		if err := rt.Graph().Dump(os.Stdout); err != nil {
			return err
		}
	}

	if reset {
		resetEvent.SendEmpty()
		relay.Wait()
		service.PersistStateChanges()
		fmt.Printf("reset count=%d\n", service.State().Count)
	}

	relay.Close()
	view.Close()

	leaks := rt.Graph().Diff(baseline)
	for _, n := range leaks {
		log.Warn("lifecycle leak", zap.String("label", n.Label), zap.Stringer("category", n.Category), zap.Stringer("id", n.ID))
	}
	fmt.Printf("nodes=%d leaks=%d\n", rt.Graph().Len(), len(leaks))

	if len(leaks) > 0 {
		return errors.New("lifecycle graph did not return to baseline")
	}
	return nil
}

func serveMetrics(log *zap.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	log.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server stopped", zap.Error(err))
	}
}
