package reconcile

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/mkaschke/offtrack/internal/app/cache"
	"github.com/mkaschke/offtrack/internal/app/notify"
	"github.com/mkaschke/offtrack/internal/domain/pending"
	"github.com/mkaschke/offtrack/internal/infra/intake"
	"github.com/mkaschke/offtrack/internal/infra/metrics"
)

const (
	defaultInterval     = 30 * time.Second
	defaultInitialDelay = 2 * time.Second
	defaultNotifiedTTL  = 10 * time.Minute
)

// Loop polls the remote intake for completed submissions and promotes
// matching local pending records. Each promotion emits at most one user
// notification, deduplicated through a TTL marker in the cache.
type Loop struct {
	outbox  *Outbox
	intake  intake.Service
	cache   *cache.Cache
	sink    notify.Sink
	metrics *metrics.Metrics

	interval     time.Duration
	initialDelay time.Duration
	notifiedTTL  time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithInterval overrides the polling interval.
func WithInterval(d time.Duration) LoopOption {
	return func(l *Loop) { l.interval = d }
}

// WithInitialDelay overrides the delay before the first poll.
func WithInitialDelay(d time.Duration) LoopOption {
	return func(l *Loop) { l.initialDelay = d }
}

// WithNotifiedTTL overrides how long the notified marker suppresses
// duplicate notifications.
func WithNotifiedTTL(d time.Duration) LoopOption {
	return func(l *Loop) { l.notifiedTTL = d }
}

// WithMetrics attaches reconcile counters.
func WithMetrics(m *metrics.Metrics) LoopOption {
	return func(l *Loop) { l.metrics = m }
}

// NewLoop creates a reconciliation loop. Call Start to begin polling.
func NewLoop(o *Outbox, svc intake.Service, c *cache.Cache, sink notify.Sink, opts ...LoopOption) *Loop {
	l := &Loop{
		outbox:       o,
		intake:       svc,
		cache:        c,
		sink:         sink,
		interval:     defaultInterval,
		initialDelay: defaultInitialDelay,
		notifiedTTL:  defaultNotifiedTTL,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the polling goroutine.
func (l *Loop) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.run(ctx)
	zlog.Info().Dur("interval", l.interval).Msg("reconcile: loop started")
}

// Stop cancels the loop and waits for it to exit.
func (l *Loop) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel = nil
	zlog.Info().Msg("reconcile: loop stopped")
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	select {
	case <-ctx.Done():
		return
	case <-time.After(l.initialDelay):
	}
	l.tick(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick runs one reconciliation pass over both pending kinds. Network
// failures skip the kind; the next tick retries with the same records.
func (l *Loop) tick(ctx context.Context) {
	l.metrics.ReconcileTick()

	for _, kind := range []pending.Kind{pending.KindFix, pending.KindAdd} {
		recs := l.outbox.Pending(kind)
		if len(recs) == 0 {
			continue
		}

		completed, err := l.intake.ListCompleted(ctx, kind)
		if err != nil {
			zlog.Warn().Err(err).Str("kind", string(kind)).Msg("reconcile: completed lookup failed")
			continue
		}
		done := make(map[string]struct{}, len(completed))
		for _, id := range completed {
			done[id] = struct{}{}
		}

		for _, rec := range recs {
			if rec.Status != pending.StatusPending {
				// Approved leftover from an interrupted pass.
				l.notifyOnce(rec)
				l.outbox.remove(kind, rec.ID)
				continue
			}
			if _, ok := done[rec.ID]; !ok {
				continue
			}
			if !l.outbox.approve(kind, rec.ID) {
				continue
			}
			l.metrics.ReconcileApproval()
			l.notifyOnce(rec)
			l.outbox.remove(kind, rec.ID)
		}
	}
}

// notifyOnce emits the completion notification unless the TTL marker says
// it was already delivered.
func (l *Loop) notifyOnce(rec pending.Record) {
	marker := "notified_" + rec.ID
	if _, ok := l.cache.Get(marker); ok {
		return
	}

	subject := rec.Subject
	if subject == "" {
		subject = "your requested track"
	}
	n := notify.Notification{Title: "Track added", Body: subject + " is now available"}
	if rec.Kind == pending.KindFix {
		n = notify.Notification{Title: "Fix complete", Body: subject + " has been repaired"}
	}
	l.sink.Emit(n)
	l.cache.Set(marker, []byte("1"), l.notifiedTTL)
}
