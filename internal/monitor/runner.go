package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/makt28/tgwatch/internal/metrics"
	"github.com/makt28/tgwatch/internal/notify"
	"github.com/makt28/tgwatch/internal/storage"
)

const defaultProbeTimeout = 10 * time.Second

// Dispatcher delivers a transition to the notification channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, event notify.AlertEvent) []notify.Result
}

// Outcome records everything one tick observed and did.
type Outcome struct {
	ID            string
	Signals       []Signal
	ShouldAlert   bool
	Previous      storage.AlertState
	Next          storage.AlertState
	Transition    Transition
	Notifications []notify.Result
	Persisted     bool
	Duration      time.Duration
	// Cancelled is set when the context ended during collection. Nothing
	// was decided, sent or persisted.
	Cancelled bool
	// Fault holds a panic recovered after collection.
	Fault error
}

// RunnerOptions holds the tunables of a Runner. Zero values fall back to defaults.
type RunnerOptions struct {
	MinConsecutiveFailures int
	WebMatch               string
	ServiceName            string
	ProbeTimeout           time.Duration
	Metrics                *metrics.Metrics
	Now                    func() time.Time
}

// Runner executes ticks: probe, decide, notify on transition, persist.
type Runner struct {
	mu         sync.Mutex
	probers    []Prober
	repo       *storage.StateRepository
	dispatcher Dispatcher
	metrics    *metrics.Metrics

	minFails     int
	webMatch     string
	service      string
	probeTimeout time.Duration
	now          func() time.Time
}

// NewRunner creates a new Runner.
func NewRunner(probers []Prober, repo *storage.StateRepository, dispatcher Dispatcher, opts RunnerOptions) *Runner {
	r := &Runner{
		probers:      probers,
		repo:         repo,
		dispatcher:   dispatcher,
		metrics:      opts.Metrics,
		minFails:     opts.MinConsecutiveFailures,
		webMatch:     opts.WebMatch,
		service:      opts.ServiceName,
		probeTimeout: opts.ProbeTimeout,
		now:          opts.Now,
	}
	if r.metrics == nil {
		r.metrics = metrics.Nop()
	}
	if r.minFails <= 0 {
		r.minFails = 2
	}
	if r.probeTimeout <= 0 {
		r.probeTimeout = defaultProbeTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Tick runs one full cycle. Ticks are serialized: a call blocks while
// another tick is in flight.
func (r *Runner) Tick(ctx context.Context) (out Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	out = Outcome{ID: uuid.NewString()}
	log := slog.With("tick_id", out.ID)

	defer func() {
		if rec := recover(); rec != nil {
			out.Fault = fmt.Errorf("tick panicked: %v", rec)
			out.Duration = time.Since(start)
			r.metrics.TicksTotal.WithLabelValues("panic").Inc()
			log.Error("tick panicked", "panic", rec)
		}
	}()

	out.Signals = r.Collect(ctx)

	// Probes cut short by shutdown look like an outage. Drop them.
	if err := ctx.Err(); err != nil {
		out.Cancelled = true
		out.Duration = time.Since(start)
		r.metrics.TicksTotal.WithLabelValues("cancelled").Inc()
		log.Warn("tick cancelled before decision, discarding signals", "error", err)
		return out
	}

	out.ShouldAlert = ShouldAlert(out.Signals, r.webMatch)

	for _, s := range out.Signals {
		r.metrics.ProbeProblem.WithLabelValues(s.Source).Set(boolGauge(s.Problem))
		if s.Problem {
			log.Debug("probe reported problem", "source", s.Source, "detail", s.Detail)
		}
	}

	now := r.now()
	snap, err := r.repo.Load(ctx, now)
	if err != nil {
		r.metrics.StateStoreErrors.WithLabelValues("read").Inc()
		log.Error("failed to read alert state, treating as absent", "key", r.repo.Key(), "error", err)
	}
	out.Previous = snap.State

	d := Decide(snap.State, out.ShouldAlert, r.minFails, now)
	out.Next = d.Next
	out.Transition = d.Transition

	if d.Transition != TransitionNone {
		r.metrics.TransitionsTotal.WithLabelValues(d.Transition.String()).Inc()
		if d.Transition == TransitionEnter {
			log.Warn("service is DOWN", "service", r.service, "consecutive_fails", d.Next.ConsecutiveFails)
		} else {
			log.Info("service recovered", "service", r.service)
		}

		// Delivery failures never block the state write.
		out.Notifications = r.dispatcher.Dispatch(ctx, r.event(d, out.Signals, now))
		for _, res := range out.Notifications {
			r.metrics.NotificationsTotal.WithLabelValues(res.Channel, res.Status).Inc()
		}
	}

	result := "ok"
	err = r.repo.Save(ctx, snap, d.Next)
	switch {
	case errors.Is(err, storage.ErrConflict):
		result = "conflict"
		log.Warn("alert state changed by a concurrent tick, dropping this write", "key", r.repo.Key())
	case err != nil:
		result = "store_error"
		r.metrics.StateStoreErrors.WithLabelValues("write").Inc()
		log.Error("failed to persist alert state", "key", r.repo.Key(), "error", err)
	default:
		out.Persisted = true
	}

	r.metrics.Alerting.Set(boolGauge(d.Next.Alerting))
	r.metrics.ConsecutiveFails.Set(float64(d.Next.ConsecutiveFails))

	out.Duration = time.Since(start)
	r.metrics.TicksTotal.WithLabelValues(result).Inc()
	r.metrics.TickDuration.Observe(out.Duration.Seconds())

	log.Info("tick complete",
		"should_alert", out.ShouldAlert,
		"alerting", d.Next.Alerting,
		"consecutive_fails", d.Next.ConsecutiveFails,
		"transition", d.Transition.String(),
		"persisted", out.Persisted,
		"duration_ms", out.Duration.Milliseconds(),
	)
	return out
}

// Collect runs every prober concurrently and waits for all of them.
func (r *Runner) Collect(ctx context.Context) []Signal {
	perProbe := make([][]Signal, len(r.probers))

	var g errgroup.Group
	for i, p := range r.probers {
		i, p := i, p
		g.Go(func() error {
			perProbe[i] = r.runProbe(ctx, p)
			return nil
		})
	}
	g.Wait()

	var signals []Signal
	for _, s := range perProbe {
		signals = append(signals, s...)
	}
	return signals
}

// runProbe applies the per-probe timeout and turns a panic into a problem signal.
func (r *Runner) runProbe(ctx context.Context, p Prober) (signals []Signal) {
	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("prober panicked", "probe", p.Name(), "panic", rec)
			signals = []Signal{{Source: p.Name(), Problem: true, Detail: fmt.Sprintf("panic=%v", rec)}}
		}
		r.metrics.ProbeLatency.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
	}()

	return p.Probe(probeCtx)
}

func (r *Runner) event(d Decision, signals []Signal, now time.Time) notify.AlertEvent {
	typ := notify.EventUp
	if d.Transition == TransitionEnter {
		typ = notify.EventDown
	}

	lines := make([]notify.Line, len(signals))
	for i, s := range signals {
		lines[i] = notify.Line{Source: s.Source, Problem: s.Problem, Detail: s.Detail}
	}

	return notify.AlertEvent{
		Type:      typ,
		Service:   r.service,
		Timestamp: now,
		Lines:     lines,
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
