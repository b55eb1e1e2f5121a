package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/skedge/skedge/internal/credential"
	"github.com/skedge/skedge/internal/cronofy"
	"github.com/skedge/skedge/internal/directory"
)

// routedLister serves a canned response per access token, so each fake
// participant can present a distinct calendar.
type routedLister struct {
	mu        sync.Mutex
	responses map[string]listResponse
	calls     map[string]int
}

type listResponse struct {
	events []cronofy.Event
	err    error
}

func newRoutedLister() *routedLister {
	return &routedLister{
		responses: make(map[string]listResponse),
		calls:     make(map[string]int),
	}
}

func (r *routedLister) ListEvents(_ context.Context, accessToken string, _, _ time.Time, _ string) ([]cronofy.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[accessToken]++
	resp := r.responses[accessToken]
	return resp.events, resp.err
}

type fakeCredentials struct {
	mu           sync.Mutex
	tokens       map[string]string
	ensErr       map[string]error
	refreshed    map[string]string
	refreshCalls int
}

func newFakeCredentials() *fakeCredentials {
	return &fakeCredentials{
		tokens:    make(map[string]string),
		ensErr:    make(map[string]error),
		refreshed: make(map[string]string),
	}
}

func (f *fakeCredentials) EnsureFresh(_ context.Context, userID string) (*directory.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensErr[userID]; err != nil {
		return nil, err
	}
	tok, ok := f.tokens[userID]
	if !ok {
		return nil, credential.ErrNotRegistered
	}
	return &directory.Credential{UserID: userID, AccessToken: tok}, nil
}

func (f *fakeCredentials) ForceRefresh(_ context.Context, userID string) (*directory.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	tok, ok := f.refreshed[userID]
	if !ok {
		return nil, credential.ErrCredentialExpired
	}
	f.tokens[userID] = tok
	return &directory.Credential{UserID: userID, AccessToken: tok}, nil
}

// day returns an instant on a fixed UTC working day.
func day(hour, min int) time.Time {
	return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC)
}

func utcRequest(participants ...string) Request {
	return Request{
		ParticipantIDs: participants,
		HorizonDays:    1,
		StartHour:      9,
		EndHour:        17,
		Timezone:       "Etc/UTC",
		ReferenceTime:  day(0, 0),
	}
}

func TestFindAvailabilityIntersectsParticipants(t *testing.T) {
	lister := newRoutedLister()
	lister.responses["tok-alice"] = listResponse{events: []cronofy.Event{
		eventAt(day(9, 0), day(11, 0)),
		eventAt(day(13, 0), day(14, 0)),
	}}
	lister.responses["tok-bob"] = listResponse{events: []cronofy.Event{
		eventAt(day(10, 0), day(11, 0)),
		eventAt(day(13, 0), day(14, 0)),
	}}

	creds := newFakeCredentials()
	creds.tokens["alice"] = "tok-alice"
	creds.tokens["bob"] = "tok-bob"

	o := NewOrchestrator(creds, lister)
	result, err := o.FindAvailability(context.Background(), utcRequest("alice", "bob"))
	if err != nil {
		t.Fatalf("FindAvailability returned error: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected participant errors: %v", result.Errors)
	}

	want := []struct{ start, end time.Time }{
		{day(11, 0), day(13, 0)},
		{day(14, 0), day(17, 0)},
	}
	if len(result.Free) != len(want) {
		t.Fatalf("got %d free periods %v, want %d", len(result.Free), result.Free, len(want))
	}
	for i, w := range want {
		if !result.Free[i].Start.Equal(w.start) || !result.Free[i].End.Equal(w.end) {
			t.Errorf("free[%d] = [%v, %v), want [%v, %v)",
				i, result.Free[i].Start, result.Free[i].End, w.start, w.end)
		}
	}
}

func TestFindAvailabilityMinDurationFilters(t *testing.T) {
	lister := newRoutedLister()
	lister.responses["tok-alice"] = listResponse{events: []cronofy.Event{
		eventAt(day(9, 0), day(16, 30)),
	}}

	creds := newFakeCredentials()
	creds.tokens["alice"] = "tok-alice"

	req := utcRequest("alice")
	req.MinDuration = time.Hour

	o := NewOrchestrator(creds, lister)
	result, err := o.FindAvailability(context.Background(), req)
	if err != nil {
		t.Fatalf("FindAvailability returned error: %v", err)
	}
	// Only [16:30, 17:00) is free, which is under the hour minimum.
	if len(result.Free) != 0 {
		t.Errorf("got free periods %v, want none", result.Free)
	}
}

func TestFindAvailabilityIsolatesFailedParticipant(t *testing.T) {
	lister := newRoutedLister()
	lister.responses["tok-alice"] = listResponse{events: []cronofy.Event{
		eventAt(day(9, 0), day(12, 0)),
	}}
	lister.responses["tok-bob"] = listResponse{err: &cronofy.APIError{StatusCode: 500, Body: "down"}}

	creds := newFakeCredentials()
	creds.tokens["alice"] = "tok-alice"
	creds.tokens["bob"] = "tok-bob"

	o := NewOrchestrator(creds, lister)
	result, err := o.FindAvailability(context.Background(), utcRequest("alice", "bob"))
	if err != nil {
		t.Fatalf("FindAvailability returned error: %v", err)
	}
	if _, ok := result.Errors["bob"]; !ok {
		t.Error("expected an error recorded for bob")
	}
	// Alice's schedule alone decides the result.
	if len(result.Free) != 1 || !result.Free[0].Start.Equal(day(12, 0)) {
		t.Errorf("free = %v, want single period starting 12:00", result.Free)
	}
}

func TestFindAvailabilityRetriesOnUnauthorized(t *testing.T) {
	lister := newRoutedLister()
	lister.responses["tok-stale"] = listResponse{err: &cronofy.APIError{StatusCode: 401, Body: "unauthorized"}}
	lister.responses["tok-fresh"] = listResponse{events: []cronofy.Event{
		eventAt(day(9, 0), day(10, 0)),
	}}

	creds := newFakeCredentials()
	creds.tokens["alice"] = "tok-stale"
	creds.refreshed["alice"] = "tok-fresh"

	o := NewOrchestrator(creds, lister)
	result, err := o.FindAvailability(context.Background(), utcRequest("alice"))
	if err != nil {
		t.Fatalf("FindAvailability returned error: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected participant errors: %v", result.Errors)
	}
	if creds.refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", creds.refreshCalls)
	}
	if got := lister.calls["tok-fresh"]; got != 1 {
		t.Errorf("fresh token used %d times, want 1", got)
	}
	if len(result.Free) != 1 || !result.Free[0].Start.Equal(day(10, 0)) {
		t.Errorf("free = %v, want single period starting 10:00", result.Free)
	}
}

func TestFindAvailabilityUnauthorizedRetriesOnce(t *testing.T) {
	lister := newRoutedLister()
	lister.responses["tok-stale"] = listResponse{err: &cronofy.APIError{StatusCode: 401, Body: "unauthorized"}}
	lister.responses["tok-fresh"] = listResponse{err: &cronofy.APIError{StatusCode: 401, Body: "still unauthorized"}}

	creds := newFakeCredentials()
	creds.tokens["alice"] = "tok-stale"
	creds.refreshed["alice"] = "tok-fresh"

	o := NewOrchestrator(creds, lister)
	result, err := o.FindAvailability(context.Background(), utcRequest("alice"))
	if err != nil {
		t.Fatalf("FindAvailability returned error: %v", err)
	}
	if creds.refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", creds.refreshCalls)
	}
	var apiErr *cronofy.APIError
	if !errors.As(result.Errors["alice"], &apiErr) || apiErr.StatusCode != 401 {
		t.Errorf("alice error = %v, want APIError 401", result.Errors["alice"])
	}
}

func TestFindAvailabilityAllParticipantsFail(t *testing.T) {
	creds := newFakeCredentials()
	creds.ensErr["alice"] = credential.ErrNotRegistered
	creds.ensErr["bob"] = credential.ErrCredentialExpired

	o := NewOrchestrator(creds, newRoutedLister())
	result, err := o.FindAvailability(context.Background(), utcRequest("alice", "bob"))
	if err != nil {
		t.Fatalf("FindAvailability returned error: %v", err)
	}
	if len(result.Free) != 0 {
		t.Errorf("free = %v, want none when every fetch fails", result.Free)
	}
	if !errors.Is(result.Errors["alice"], credential.ErrNotRegistered) {
		t.Errorf("alice error = %v, want ErrNotRegistered", result.Errors["alice"])
	}
	if !errors.Is(result.Errors["bob"], credential.ErrCredentialExpired) {
		t.Errorf("bob error = %v, want ErrCredentialExpired", result.Errors["bob"])
	}
}

func TestFindAvailabilityReportsSkippedEvents(t *testing.T) {
	lister := newRoutedLister()
	lister.responses["tok-alice"] = listResponse{events: []cronofy.Event{
		{Start: cronofy.EventTime{}, End: cronofy.EventTime{}},
		eventAt(day(9, 0), day(10, 0)),
	}}

	creds := newFakeCredentials()
	creds.tokens["alice"] = "tok-alice"

	o := NewOrchestrator(creds, lister)
	result, err := o.FindAvailability(context.Background(), utcRequest("alice"))
	if err != nil {
		t.Fatalf("FindAvailability returned error: %v", err)
	}
	if result.Skipped["alice"] != 1 {
		t.Errorf("skipped[alice] = %d, want 1", result.Skipped["alice"])
	}
}

func TestFindAvailabilityRejectsBadInput(t *testing.T) {
	o := NewOrchestrator(newFakeCredentials(), newRoutedLister())

	if _, err := o.FindAvailability(context.Background(), Request{}); err == nil {
		t.Error("expected error for empty participant list")
	}

	req := utcRequest("alice")
	req.StartHour = 17
	req.EndHour = 9
	if _, err := o.FindAvailability(context.Background(), req); err == nil {
		t.Error("expected error for inverted window hours")
	}

	req = utcRequest("alice")
	req.Timezone = "Not/AZone"
	if _, err := o.FindAvailability(context.Background(), req); err == nil {
		t.Error("expected error for unknown timezone")
	}
}

func TestFindAvailabilityTimeoutIsolatesSlowParticipant(t *testing.T) {
	lister := listerFunc(func(ctx context.Context, accessToken string, _, _ time.Time, _ string) ([]cronofy.Event, error) {
		if accessToken == "tok-slow" {
			// Block until the per-participant deadline fires.
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []cronofy.Event{eventAt(day(9, 0), day(10, 0))}, nil
	})

	creds := newFakeCredentials()
	creds.tokens["alice"] = "tok-fast"
	creds.tokens["bob"] = "tok-slow"

	o := NewOrchestrator(creds, lister, WithFetchTimeout(20*time.Millisecond))
	result, err := o.FindAvailability(context.Background(), utcRequest("alice", "bob"))
	if err != nil {
		t.Fatalf("FindAvailability returned error: %v", err)
	}
	if !errors.Is(result.Errors["bob"], context.DeadlineExceeded) {
		t.Errorf("bob error = %v, want context.DeadlineExceeded", result.Errors["bob"])
	}
	if _, ok := result.Errors["alice"]; ok {
		t.Errorf("alice error = %v, want none", result.Errors["alice"])
	}
	// Alice's schedule alone decides the result.
	if len(result.Free) != 1 || !result.Free[0].Start.Equal(day(10, 0)) {
		t.Errorf("free = %v, want single period starting 10:00", result.Free)
	}
}

func TestFindAvailabilityCancelledRequest(t *testing.T) {
	lister := listerFunc(func(ctx context.Context, _ string, _, _ time.Time, _ string) ([]cronofy.Event, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	creds := newFakeCredentials()
	creds.tokens["alice"] = "tok-alice"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewOrchestrator(creds, lister)
	result, err := o.FindAvailability(ctx, utcRequest("alice"))
	if err != nil {
		t.Fatalf("FindAvailability returned error: %v", err)
	}
	if !errors.Is(result.Errors["alice"], context.Canceled) {
		t.Errorf("alice error = %v, want context.Canceled", result.Errors["alice"])
	}
	if len(result.Free) != 0 {
		t.Errorf("free = %v, want none for a cancelled request", result.Free)
	}
}

func TestFindAvailabilityBoundsConcurrency(t *testing.T) {
	const participants = 12

	var (
		mu     sync.Mutex
		active int
		peak   int
	)
	lister := listerFunc(func(_ context.Context, _ string, _, _ time.Time, _ string) ([]cronofy.Event, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return nil, nil
	})

	creds := newFakeCredentials()
	ids := make([]string, participants)
	for i := range ids {
		ids[i] = string(rune('a' + i))
		creds.tokens[ids[i]] = "tok-" + ids[i]
	}

	o := NewOrchestrator(creds, lister, WithWorkers(2))
	if _, err := o.FindAvailability(context.Background(), utcRequest(ids...)); err != nil {
		t.Fatalf("FindAvailability returned error: %v", err)
	}
	if peak > 2 {
		t.Errorf("peak concurrent fetches = %d, want at most 2", peak)
	}
}

type listerFunc func(ctx context.Context, accessToken string, from, to time.Time, tzid string) ([]cronofy.Event, error)

func (f listerFunc) ListEvents(ctx context.Context, accessToken string, from, to time.Time, tzid string) ([]cronofy.Event, error) {
	return f(ctx, accessToken, from, to, tzid)
}
