package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"vaultwatcher/internal/scheduler"
)

// Watch runs the check cycle continuously on the configured interval until
// interrupted. With a database configured every cycle records snapshots and
// alert audit rows.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; history recording disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if store != nil && a.Config.Database.AlertRetention > 0 {
		cutoff := time.Now().UTC().Add(-a.Config.Database.AlertRetention)
		if err := store.DeleteAlertsBefore(ctx, cutoff); err != nil {
			a.Logger.Error().Err(err).Msg("failed to prune old alert records")
		}
	}

	engine := a.newEngine(store)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Watch.Interval,
		AlignToStart: a.Config.Watch.AlignToBucket,
		StartupDelay: a.Config.Watch.StartupDelay,
		RunOnStart:   true,
	}, a.Logger)

	a.Logger.Info().Dur("interval", a.Config.Watch.Interval).Msg("starting continuous monitoring")
	err = sched.Run(ctx, func(ctx context.Context, at time.Time) error {
		results, failures, err := engine.CheckAll(ctx)
		if err != nil {
			return err
		}
		breaching := 0
		for _, result := range results {
			if result.BelowThreshold {
				breaching++
			}
		}
		a.Logger.Info().
			Int("checked", len(results)).
			Int("failed", len(failures)).
			Int("breaching", breaching).
			Msg("cycle complete")
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("monitoring terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring stopped")
	return nil
}
