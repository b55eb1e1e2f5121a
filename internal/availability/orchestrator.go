package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/skedge/skedge/internal/cronofy"
	"github.com/skedge/skedge/internal/directory"
	"github.com/skedge/skedge/internal/instrumentation"
	"github.com/skedge/skedge/internal/logging"
	"github.com/skedge/skedge/internal/schedule"
)

// Defaults applied to zero-valued request fields.
const (
	DefaultHorizonDays = 5
	DefaultStartHour   = 9
	DefaultEndHour     = 17
	DefaultTimezone    = "America/Los_Angeles"
	DefaultWorkers     = 4
)

// CredentialSource yields fresh access tokens for registered participants.
type CredentialSource interface {
	EnsureFresh(ctx context.Context, userID string) (*directory.Credential, error)
	ForceRefresh(ctx context.Context, userID string) (*directory.Credential, error)
}

// Request describes one availability query.
type Request struct {
	ParticipantIDs []string
	MinDuration    time.Duration
	HorizonDays    int
	StartHour      int
	EndHour        int
	Timezone       string
	ReferenceTime  time.Time
}

// Result is the outcome of an availability query. Free holds the periods
// every successfully fetched participant shares; Errors and Skipped report
// per-participant failures and dropped events without failing the whole
// query.
type Result struct {
	Free    []schedule.Period
	Errors  map[string]error
	Skipped map[string]int
}

// Orchestrator fans an availability query out across participants and
// intersects the per-participant free schedules.
type Orchestrator struct {
	credentials    CredentialSource
	fetcher        *Fetcher
	limiter        *rate.Limiter
	workers        int
	defaults       queryDefaults
	fetchTimeout   time.Duration
	mergeAdjacency time.Duration
	metrics        *instrumentation.Metrics
	tracer         trace.Tracer
	logger         *slog.Logger
}

// queryDefaults are the values substituted for zero-valued request fields.
type queryDefaults struct {
	HorizonDays int
	StartHour   int
	EndHour     int
	Timezone    string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers bounds the number of concurrent participant fetches.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithRateLimit throttles provider API calls to r requests per second with
// the given burst.
func WithRateLimit(r float64, burst int) Option {
	return func(o *Orchestrator) {
		if r > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(r), burst)
		}
	}
}

// WithQueryDefaults overrides the built-in defaults applied to zero-valued
// request fields.
func WithQueryDefaults(horizonDays, startHour, endHour int, timezone string) Option {
	return func(o *Orchestrator) {
		if horizonDays > 0 {
			o.defaults.HorizonDays = horizonDays
		}
		if startHour != 0 || endHour != 0 {
			o.defaults.StartHour = startHour
			o.defaults.EndHour = endHour
		}
		if timezone != "" {
			o.defaults.Timezone = timezone
		}
	}
}

// WithFetchTimeout bounds each participant's credential resolution and event
// fetch, retry included.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// WithMergeAdjacency merges free periods whose gap is at most d. Useful when
// the caller wants near-adjacent slots presented as one.
func WithMergeAdjacency(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.mergeAdjacency = d
		}
	}
}

// WithMetrics attaches request and provider metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer attaches a tracer for per-request spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates an Orchestrator over the given credential source
// and provider client.
func NewOrchestrator(credentials CredentialSource, provider EventLister, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		credentials: credentials,
		fetcher:     NewFetcher(provider),
		workers:     DefaultWorkers,
		defaults: queryDefaults{
			HorizonDays: DefaultHorizonDays,
			StartHour:   DefaultStartHour,
			EndHour:     DefaultEndHour,
			Timezone:    DefaultTimezone,
		},
		tracer: noop.NewTracerProvider().Tracer("availability"),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.fetcher.SetLogger(o.logger)
	return o
}

// FindAvailability computes the periods all participants are free within the
// request's business-hour windows. A participant whose fetch fails is
// excluded from the intersection and reported in Result.Errors; the query
// only errors as a whole when the window parameters are unusable.
func (o *Orchestrator) FindAvailability(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "availability.find",
		trace.WithAttributes(attribute.Int("participants", len(req.ParticipantIDs))))
	defer span.End()

	o.applyDefaults(&req)

	if len(req.ParticipantIDs) == 0 {
		return nil, errors.New("no participants given")
	}
	if req.StartHour >= req.EndHour {
		return nil, fmt.Errorf("start hour %d must be before end hour %d", req.StartHour, req.EndHour)
	}

	loc, err := time.LoadLocation(req.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", req.Timezone, err)
	}

	windows := schedule.BuildWindows(req.ReferenceTime, req.HorizonDays, req.StartHour, req.EndHour, loc)
	from, to := querySpan(windows)

	result := &Result{
		Errors:  make(map[string]error),
		Skipped: make(map[string]int),
	}

	var (
		mu       sync.Mutex
		freeSets [][]schedule.Period
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, id := range req.ParticipantIDs {
		g.Go(func() error {
			busy, skipped, err := o.fetchParticipant(gctx, id, from, to, req.Timezone)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[id] = err
				o.logger.Warn("participant fetch failed",
					logging.UserHash(id), logging.Err(err))
				// A failed participant is reported, not fatal: returning the
				// error here would cancel the sibling fetches.
				return nil
			}
			result.Skipped[id] = skipped
			freeSets = append(freeSets, schedule.ComputeFreeAcross(busy, windows))
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	result.Free = schedule.Intersect(freeSets, req.MinDuration)
	if o.mergeAdjacency > 0 {
		result.Free = schedule.Merge(result.Free, o.mergeAdjacency)
	}

	status := logging.StatusSuccess
	if len(result.Errors) == len(req.ParticipantIDs) {
		status = logging.StatusError
	}
	o.metrics.RecordAvailabilityRequest(ctx, status, time.Since(start))
	for _, n := range result.Skipped {
		o.metrics.AddSkippedEvents(ctx, n)
	}
	if status == logging.StatusError {
		span.SetStatus(codes.Error, "all participant fetches failed")
	}
	o.logger.Info("availability computed",
		logging.Operation("find_availability"),
		logging.Status(status),
		logging.Participants(len(req.ParticipantIDs)),
		slog.Int("free_periods", len(result.Free)),
		slog.Int("failed_participants", len(result.Errors)),
		slog.Duration(logging.KeyDuration, time.Since(start)))
	return result, nil
}

// fetchParticipant resolves a fresh credential and lists the participant's
// events. A 401 from the provider forces one token refresh and a single
// retry before giving up.
func (o *Orchestrator) fetchParticipant(ctx context.Context, userID string, from, to time.Time, tzid string) ([]schedule.Period, int, error) {
	ctx, span := o.tracer.Start(ctx, "availability.fetch_participant")
	defer span.End()

	if o.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.fetchTimeout)
		defer cancel()
	}

	cred, err := o.credentials.EnsureFresh(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	opStart := time.Now()
	busy, skipped, err := o.listBusy(ctx, cred.AccessToken, from, to, tzid)
	if err != nil {
		var apiErr *cronofy.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 401 {
			// The provider rejected a token we considered fresh; refresh
			// once and retry.
			cred, err = o.credentials.ForceRefresh(ctx, userID)
			if err != nil {
				return nil, 0, err
			}
			busy, skipped, err = o.listBusy(ctx, cred.AccessToken, from, to, tzid)
		}
	}
	o.metrics.RecordProviderOperation(ctx, "list_events", providerStatus(err), time.Since(opStart))
	if err != nil {
		span.SetStatus(codes.Error, "fetch failed")
		return nil, 0, err
	}
	return busy, skipped, nil
}

func (o *Orchestrator) listBusy(ctx context.Context, accessToken string, from, to time.Time, tzid string) ([]schedule.Period, int, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}
	}
	return o.fetcher.Fetch(ctx, accessToken, from, to, tzid)
}

func (o *Orchestrator) applyDefaults(req *Request) {
	if req.HorizonDays <= 0 {
		req.HorizonDays = o.defaults.HorizonDays
	}
	if req.StartHour == 0 && req.EndHour == 0 {
		req.StartHour = o.defaults.StartHour
		req.EndHour = o.defaults.EndHour
	}
	if req.Timezone == "" {
		req.Timezone = o.defaults.Timezone
	}
	if req.ReferenceTime.IsZero() {
		req.ReferenceTime = time.Now()
	}
}

// querySpan returns the range covering all windows, so one provider call per
// participant fetches every event the windows can touch.
func querySpan(windows []schedule.Period) (time.Time, time.Time) {
	if len(windows) == 0 {
		return time.Time{}, time.Time{}
	}
	from, to := windows[0].Start, windows[0].End
	for _, w := range windows[1:] {
		if w.Start.Before(from) {
			from = w.Start
		}
		if w.End.After(to) {
			to = w.End
		}
	}
	return from, to
}

func providerStatus(err error) int {
	if err == nil {
		return 200
	}
	var apiErr *cronofy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
