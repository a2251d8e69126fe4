// Package collector polls live wait times for every stop and appends them
// to the snapshot table.
package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tanpredict/internal/gtfs"
	"tanpredict/internal/storage"
	"tanpredict/internal/tan"
)

// WaitTimer fetches the live status of a stop.
type WaitTimer interface {
	WaitTimes(ctx context.Context, stopCode string) ([]tan.Status, error)
}

// Sink stores a batch of snapshots and the time of the round that produced it.
type Sink interface {
	InsertSnapshots(ctx context.Context, table string, snaps []storage.Snapshot) (bool, error)
	MarkCollected(ctx context.Context, at time.Time) error
}

// Options configure a collection run.
type Options struct {
	Interval time.Duration // pause between rounds
	Window   time.Duration // run stops once this has elapsed
	Table    string
}

// Collector runs polling rounds over a fixed stop list.
type Collector struct {
	api    WaitTimer
	sink   Sink
	stops  []gtfs.Stop
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New creates a collector.
func New(api WaitTimer, sink Sink, stops []gtfs.Stop, opts Options, logger *slog.Logger) *Collector {
	if opts.Table == "" {
		opts.Table = storage.SnapshotsTable
	}
	return &Collector{
		api:    api,
		sink:   sink,
		stops:  stops,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// RoundStats summarises one polling round.
type RoundStats struct {
	BatchID   string
	Stops     int
	Failed    int
	Rows      int
	Recreated bool // snapshot table was dropped for a schema change
}

// Round polls every stop once. A failed stop is logged and skipped; only a
// storage failure aborts the round.
func (c *Collector) Round(ctx context.Context) (RoundStats, error) {
	stats := RoundStats{BatchID: uuid.NewString(), Stops: len(c.stops)}
	requestedAt := c.now()

	var batch []storage.Snapshot
	for _, stop := range c.stops {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		lat, lon, err := stop.Coords()
		if err != nil {
			c.logger.Warn("stop has no usable coordinates", "stop", stop.StopID, "error", err)
		}

		statuses, err := c.api.WaitTimes(ctx, stop.StopID)
		if err != nil {
			stats.Failed++
			c.logger.Warn("wait times failed, skipping stop", "stop", stop.StopID, "error", err)
			continue
		}
		for _, s := range statuses {
			batch = append(batch, storage.Snapshot{
				BatchID:       stats.BatchID,
				RequestedAt:   requestedAt,
				StopCode:      stop.StopID,
				StopName:      stop.StopName,
				StopLat:       lat,
				StopLon:       lon,
				Arret:         s.Stop.Code,
				Line:          s.Line.Number,
				LineType:      string(s.Line.Type),
				Direction:     s.Direction,
				Terminus:      s.Terminus,
				WaitText:      s.WaitText,
				Incident:      bool(s.Incident),
				RealTime:      bool(s.RealTime),
				LastDeparture: bool(s.LastDeparture),
			})
		}
	}

	recreated, err := c.sink.InsertSnapshots(ctx, c.opts.Table, batch)
	if err != nil {
		return stats, err
	}
	stats.Rows = len(batch)
	stats.Recreated = recreated
	if err := c.sink.MarkCollected(ctx, requestedAt); err != nil {
		return stats, err
	}

	c.logger.Info("collection round done",
		"batch", stats.BatchID,
		"stops", stats.Stops,
		"failed", stats.Failed,
		"rows", stats.Rows,
	)
	return stats, nil
}

// Run repeats Round every Interval until Window has elapsed or ctx is
// cancelled. It returns the stats of every completed round.
func (c *Collector) Run(ctx context.Context) ([]RoundStats, error) {
	deadline := c.now().Add(c.opts.Window)
	c.logger.Info("collector started",
		"stops", len(c.stops),
		"interval", c.opts.Interval,
		"until", deadline.Format(time.RFC3339),
	)

	var rounds []RoundStats
	for {
		stats, err := c.Round(ctx)
		if err != nil {
			return rounds, err
		}
		rounds = append(rounds, stats)

		if !c.now().Add(c.opts.Interval).Before(deadline) {
			c.logger.Info("collection window closed", "rounds", len(rounds))
			return rounds, nil
		}

		timer := time.NewTimer(c.opts.Interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("collector stopped", "rounds", len(rounds))
			return rounds, nil
		}
	}
}
