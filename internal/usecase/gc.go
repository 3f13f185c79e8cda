package usecase

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/totegamma/jsonkeeper/internal/domain"
	"github.com/totegamma/jsonkeeper/internal/logger"
	"github.com/totegamma/jsonkeeper/internal/metrics"
)

// GarbageCollector removes unrestricted documents that have not been touched
// for longer than the configured age. Restricted documents are never removed.
type GarbageCollector struct {
	docs    *DocumentUsecase
	cfg     domain.GCConfig
	metrics *metrics.Metrics
	log     zerolog.Logger

	Now func() time.Time
}

func NewGarbageCollector(docs *DocumentUsecase, cfg domain.GCConfig, m *metrics.Metrics) *GarbageCollector {
	return &GarbageCollector{
		docs:    docs,
		cfg:     cfg,
		metrics: m,
		log:     logger.Module("gc"),
		Now:     time.Now,
	}
}

// Run sweeps on every tick until ctx is done. It returns at once when
// garbage collection is disabled.
func (gc *GarbageCollector) Run(ctx context.Context) {
	if !gc.cfg.Enabled() {
		gc.log.Info().Msg("garbage collection disabled")
		return
	}

	ticker := time.NewTicker(gc.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := gc.Sweep(ctx)
			if err != nil {
				gc.log.Error().Err(err).Int("deleted", deleted).Msg("sweep failed")
				continue
			}
			gc.log.Info().Int("deleted", deleted).Msg("sweep finished")
		}
	}
}

func (gc *GarbageCollector) expired(meta domain.Metadata, now time.Time) bool {
	return !meta.Ownership.Restricted() && now.Sub(meta.LastModified()) > gc.cfg.Age
}

// Sweep deletes every expired document once and reports how many were removed.
func (gc *GarbageCollector) Sweep(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "GarbageCollector.Sweep")
	defer span.End()

	if gc.cfg.Age <= 0 {
		return 0, nil
	}

	repo := gc.docs.repo
	candidates, err := repo.ListMetadata(ctx)
	if err != nil {
		span.RecordError(err)
		gc.metrics.RecordSweep(0, err)
		return 0, errors.Wrap(err, "list metadata")
	}

	deleted := 0
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}
		if !gc.expired(candidate, gc.Now()) {
			continue
		}

		ok, err := gc.collect(ctx, candidate.ID)
		if err != nil {
			span.RecordError(err)
			gc.metrics.RecordSweep(deleted, err)
			return deleted, err
		}
		if ok {
			deleted++
		}
	}

	gc.metrics.RecordSweep(deleted, nil)
	return deleted, nil
}

// collect deletes a candidate only if it is still unrestricted and stale at
// the moment of deletion. The repository checks both in the delete statement,
// so an update committed by another process after the listing wins.
func (gc *GarbageCollector) collect(ctx context.Context, id string) (bool, error) {
	unlock := gc.docs.locks.Lock(id)
	defer unlock()

	cutoff := gc.Now().Add(-gc.cfg.Age)
	deleted, err := gc.docs.repo.DeleteIfStale(ctx, id, cutoff)
	if err != nil {
		return false, errors.Wrapf(err, "delete %s", id)
	}
	if !deleted {
		return false, nil
	}
	gc.docs.cache.Invalidate(ctx, id)
	gc.log.Debug().Str("id", id).Msg("collected document")
	return true, nil
}
