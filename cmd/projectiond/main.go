// Command projectiond keeps the clinic read models warm: it restores
// their last persisted state from Postgres, subscribes to the JetStream
// event streams and folds every new event into the projection manager,
// persisting the result on an interval and once more on shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/clinicore/eventkit/pkg/clinic"
	"github.com/clinicore/eventkit/pkg/event"
	"github.com/clinicore/eventkit/pkg/projection"
	"github.com/clinicore/eventkit/pkg/store/natsstore/esnats"
	"github.com/clinicore/eventkit/pkg/store/pgstore"
)

type config struct {
	NATSURL         string        `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	DurableName     string        `env:"DURABLE_NAME" envDefault:"projectiond"`
	AggregateTypes  []string      `env:"AGGREGATE_TYPES" envDefault:"lead,appointment,patient"`
	PersistInterval time.Duration `env:"PERSIST_INTERVAL" envDefault:"10s"`
}

func main() {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		slog.Error("parse env", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("projectiond failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Drain()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := pgstore.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	projStore := pgstore.NewProjectionStore(pool, slog.Default())

	manager := projection.NewManager()
	clinic.RegisterProjections(manager)

	records, err := projStore.Load(ctx)
	if err != nil {
		return err
	}
	if err := manager.Restore(records); err != nil {
		return err
	}
	slog.Info("projections restored", "records", len(records))

	// The manager is single-writer: one mutex serializes the apply
	// path across all stream subscriptions and the persist ticker.
	var mu sync.Mutex
	apply := func(evt *event.Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		return manager.Apply(evt)
	}
	persist := func(ctx context.Context) error {
		mu.Lock()
		records, err := manager.Records()
		mu.Unlock()
		if err != nil {
			return err
		}
		return projStore.Save(ctx, records)
	}

	var drainers []esnats.Drainer
	for _, aggrType := range cfg.AggregateTypes {
		stream, err := esnats.NewStream(ctx, js, aggrType)
		if err != nil {
			return err
		}
		d, err := stream.Subscribe(ctx, apply,
			esnats.WithDurableName(cfg.DurableName+"-"+aggrType))
		if err != nil {
			return err
		}
		drainers = append(drainers, d)
	}
	slog.Info("projectiond started", "streams", strings.Join(cfg.AggregateTypes, ","), "persist_interval", cfg.PersistInterval)

	ticker := time.NewTicker(cfg.PersistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := persist(ctx); err != nil {
				slog.Error("persist projections", "error", err)
			}
		case <-ctx.Done():
			for _, d := range drainers {
				if err := d.Drain(); err != nil {
					slog.Warn("drain subscription", "error", err)
				}
			}
			// Final persist with a fresh deadline, the parent
			// context is already cancelled.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := persist(flushCtx); err != nil {
				return fmt.Errorf("final persist: %w", err)
			}
			slog.Info("projectiond stopped")
			return nil
		}
	}
}
