package availability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skedge/skedge/internal/cronofy"
	"github.com/skedge/skedge/internal/schedule"
)

// EventLister is the slice of the provider API the fetcher needs.
type EventLister interface {
	ListEvents(ctx context.Context, accessToken string, from, to time.Time, tzid string) ([]cronofy.Event, error)
}

// Fetcher retrieves a participant's busy periods for a window and normalizes
// the provider's raw event records.
type Fetcher struct {
	provider EventLister
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher over the given provider client.
func NewFetcher(provider EventLister) *Fetcher {
	return &Fetcher{
		provider: provider,
		logger:   slog.Default(),
	}
}

// SetLogger sets a custom logger.
func (f *Fetcher) SetLogger(logger *slog.Logger) {
	f.logger = logger
}

// Fetch lists the events visible to the access token between from and to and
// returns them as busy periods. Events whose start or end cannot be resolved
// to an instant are dropped and counted in the skipped tally; a malformed
// event must not silently become free time or busy-to-infinity.
func (f *Fetcher) Fetch(ctx context.Context, accessToken string, from, to time.Time, tzid string) ([]schedule.Period, int, error) {
	events, err := f.provider.ListEvents(ctx, accessToken, from, to, tzid)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}

	busy := make([]schedule.Period, 0, len(events))
	skipped := 0
	for _, ev := range events {
		if !ev.Start.Valid || !ev.End.Valid || !ev.Start.Time.Before(ev.End.Time) {
			skipped++
			continue
		}
		busy = append(busy, schedule.Period{Start: ev.Start.Time, End: ev.End.Time})
	}

	if skipped > 0 {
		f.logger.Debug("dropped events with unparseable times", "skipped", skipped)
	}
	return busy, skipped, nil
}
