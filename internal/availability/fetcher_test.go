package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/skedge/skedge/internal/cronofy"
)

type fakeLister struct {
	events []cronofy.Event
	err    error

	calls  int
	tokens []string
}

func (f *fakeLister) ListEvents(_ context.Context, accessToken string, _, _ time.Time, _ string) ([]cronofy.Event, error) {
	f.calls++
	f.tokens = append(f.tokens, accessToken)
	return f.events, f.err
}

func eventAt(start, end time.Time) cronofy.Event {
	return cronofy.Event{
		Start: cronofy.EventTime{Time: start, Valid: true},
		End:   cronofy.EventTime{Time: end, Valid: true},
	}
}

func TestFetchNormalizesEvents(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	lister := &fakeLister{events: []cronofy.Event{
		eventAt(base.Add(10*time.Hour), base.Add(11*time.Hour)),
		eventAt(base.Add(14*time.Hour), base.Add(15*time.Hour)),
	}}
	f := NewFetcher(lister)

	busy, skipped, err := f.Fetch(context.Background(), "tok", base, base.Add(24*time.Hour), "Etc/UTC")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(busy) != 2 {
		t.Fatalf("got %d busy periods, want 2", len(busy))
	}
	if !busy[0].Start.Equal(base.Add(10 * time.Hour)) {
		t.Errorf("busy[0].Start = %v, want %v", busy[0].Start, base.Add(10*time.Hour))
	}
}

func TestFetchSkipsUnparseableEvents(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	lister := &fakeLister{events: []cronofy.Event{
		// All-day event: no resolvable instants.
		{Start: cronofy.EventTime{}, End: cronofy.EventTime{}},
		// End before start.
		eventAt(base.Add(12*time.Hour), base.Add(11*time.Hour)),
		// Zero-length.
		eventAt(base.Add(9*time.Hour), base.Add(9*time.Hour)),
		eventAt(base.Add(10*time.Hour), base.Add(11*time.Hour)),
	}}
	f := NewFetcher(lister)

	busy, skipped, err := f.Fetch(context.Background(), "tok", base, base.Add(24*time.Hour), "Etc/UTC")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if skipped != 3 {
		t.Errorf("skipped = %d, want 3", skipped)
	}
	if len(busy) != 1 {
		t.Errorf("got %d busy periods, want 1", len(busy))
	}
}

func TestFetchPropagatesProviderError(t *testing.T) {
	wantErr := &cronofy.APIError{StatusCode: 500, Body: "boom"}
	lister := &fakeLister{err: wantErr}
	f := NewFetcher(lister)

	_, _, err := f.Fetch(context.Background(), "tok", time.Now(), time.Now().Add(time.Hour), "Etc/UTC")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var apiErr *cronofy.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 500 {
		t.Errorf("error = %v, want wrapped APIError 500", err)
	}
}
