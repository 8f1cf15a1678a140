// Package collector drives the wall-clock-aligned polling of all enabled
// routes against all configured providers.
package collector

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/IdoKimhi/route-analyzer/internal/provider"
	"github.com/IdoKimhi/route-analyzer/internal/store"
)

// noRoutesBackoff is the fixed sleep when no route is configured yet
const noRoutesBackoff = 60 * time.Second

// Collector polls routes on slot boundaries and appends one batch per cycle
type Collector struct {
	store       *store.DB
	providers   []provider.Client
	slotMinutes int
}

// New creates a collector. Providers are polled in the given order for
// every enabled route.
func New(db *store.DB, providers []provider.Client, slotMinutes int) *Collector {
	return &Collector{store: db, providers: providers, slotMinutes: slotMinutes}
}

// SecondsUntilNextSlot returns how long to sleep so the next poll lands on
// a wall-clock slot boundary: with slotMinutes=15, polls align to
// :00/:15/:30/:45 regardless of when the process started. A non-positive
// slot size degrades to a fixed 60 seconds, and the result is never below
// one second so exact boundary wakeups still make progress.
func SecondsUntilNextSlot(now time.Time, slotMinutes int) int {
	if slotMinutes <= 0 {
		return 60
	}

	now = now.UTC().Truncate(time.Second)
	base := now.Truncate(time.Minute)
	nextMinute := ((base.Minute() / slotMinutes) + 1) * slotMinutes

	var next time.Time
	if nextMinute >= 60 {
		next = base.Add(time.Hour).Add(-time.Duration(base.Minute()) * time.Minute)
	} else {
		next = base.Add(time.Duration(nextMinute-base.Minute()) * time.Minute)
	}

	secs := int(next.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Run loops forever until ctx is cancelled. Provider failures become error
// samples; store failures abandon the cycle and are retried naturally at
// the next slot. No failure stops the loop.
func (c *Collector) Run(ctx context.Context) {
	for {
		routes, err := c.store.ListEnabledRoutes(ctx)
		switch {
		case err != nil:
			log.Printf("collector: failed to load routes: %v", err)
			if !sleep(ctx, noRoutesBackoff) {
				return
			}
			continue
		case len(routes) == 0:
			log.Println("collector: no enabled routes, sleeping 60s")
			if !sleep(ctx, noRoutesBackoff) {
				return
			}
			continue
		}

		batch := c.collectCycle(ctx, routes)
		if err := c.store.AppendSamples(ctx, batch); err != nil {
			log.Printf("collector: failed to commit %d samples: %v", len(batch), err)
		} else {
			log.Printf("collector: committed %d samples for %d routes", len(batch), len(routes))
		}

		wait := SecondsUntilNextSlot(time.Now(), c.slotMinutes)
		log.Printf("collector: sleeping %ds until next slot", wait)
		if !sleep(ctx, time.Duration(wait)*time.Second) {
			return
		}
	}
}

// collectCycle fans out over routes x providers sequentially. Each
// (route, provider) call is isolated: a failure produces an error sample
// and never skips the remaining pairs.
func (c *Collector) collectCycle(ctx context.Context, routes []store.Route) []store.Sample {
	cycleID := uuid.New().String()
	polledAt := time.Now().UTC()

	batch := make([]store.Sample, 0, len(routes)*len(c.providers))
	for _, r := range routes {
		start := provider.Point{Lat: r.StartLat, Lng: r.StartLng}
		end := provider.Point{Lat: r.EndLat, Lng: r.EndLng}

		for _, p := range c.providers {
			eta, err := p.FetchETA(ctx, start, end, r.Region)
			if err != nil {
				log.Printf("collector: %s error route_id=%d: %v", p.Name(), r.ID, err)
				batch = append(batch, errorSample(cycleID, polledAt, r.ID, p.Name(), err))
				continue
			}
			batch = append(batch, okSample(cycleID, polledAt, r.ID, p.Name(), eta))
		}
	}
	return batch
}

func okSample(cycleID string, ts time.Time, routeID int64, providerName string, eta *provider.ETA) store.Sample {
	duration := eta.DurationSec
	distance := eta.DistanceM
	s := store.Sample{
		TS:          ts,
		CycleID:     cycleID,
		RouteID:     routeID,
		Provider:    providerName,
		Status:      store.StatusOK,
		DurationSec: &duration,
		DistanceM:   &distance,
	}
	if eta.Raw != "" {
		raw := eta.Raw
		s.Raw = &raw
	}
	return s
}

func errorSample(cycleID string, ts time.Time, routeID int64, providerName string, err error) store.Sample {
	msg := err.Error()
	if len(msg) > store.MaxErrorLen {
		msg = msg[:store.MaxErrorLen]
	}
	return store.Sample{
		TS:       ts,
		CycleID:  cycleID,
		RouteID:  routeID,
		Provider: providerName,
		Status:   store.StatusError,
		Error:    &msg,
	}
}

// sleep waits for d or until ctx is cancelled; it reports whether the
// caller should keep running.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
