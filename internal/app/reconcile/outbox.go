// Package reconcile tracks locally pending fix reports and add requests
// and reconciles them against the remote intake on a fixed timer.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/mkaschke/offtrack/internal/domain/pending"
	"github.com/mkaschke/offtrack/internal/infra/intake"
	"github.com/mkaschke/offtrack/internal/infra/store"
)

// Persistent store keys for the two pending record lists.
const (
	KeyFixReports  = "pending_fix_reports"
	KeyAddRequests = "pending_add_requests"
)

// SubmitResult is the outcome of a submission.
type SubmitResult struct {
	Accepted bool
	Reason   string          // Set when rejected
	Record   *pending.Record // Set when accepted
}

// Outbox owns the two pending record lists. Records are created only after
// the remote intake accepts a submission, so every local record corresponds
// to remote work in progress.
type Outbox struct {
	mu      sync.Mutex
	records map[pending.Kind][]pending.Record

	store  store.Store
	intake intake.Service
	now    func() time.Time
}

// NewOutbox creates an outbox and loads the persisted pending lists.
func NewOutbox(s store.Store, svc intake.Service) (*Outbox, error) {
	if s == nil {
		return nil, errors.New("outbox requires a store")
	}
	if svc == nil {
		return nil, errors.New("outbox requires an intake service")
	}

	o := &Outbox{
		records: make(map[pending.Kind][]pending.Record),
		store:   s,
		intake:  svc,
		now:     time.Now,
	}

	for kind, key := range map[pending.Kind]string{
		pending.KindFix: KeyFixReports,
		pending.KindAdd: KeyAddRequests,
	} {
		var recs []pending.Record
		found, err := s.Load(key, &recs)
		if err != nil {
			zlog.Warn().Err(err).Str("kind", string(kind)).Msg("outbox: failed to load pending list")
			continue
		}
		if found {
			o.records[kind] = recs
		}
	}

	return o, nil
}

// SubmitFix submits a fix report for a broken track.
func (o *Outbox) SubmitFix(ctx context.Context, subject string) (*SubmitResult, error) {
	return o.submit(ctx, pending.KindFix, subject)
}

// SubmitAdd submits a request to add a missing track.
func (o *Outbox) SubmitAdd(ctx context.Context, subject string) (*SubmitResult, error) {
	return o.submit(ctx, pending.KindAdd, subject)
}

// RequestAdd implements the download registry's fire-and-forget add signal.
func (o *Outbox) RequestAdd(trackID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		res, err := o.SubmitAdd(ctx, trackID)
		if err != nil {
			zlog.Warn().Err(err).Str("track_id", trackID).Msg("outbox: add request failed")
			return
		}
		if !res.Accepted {
			zlog.Info().Str("track_id", trackID).Str("reason", res.Reason).Msg("outbox: add request rejected")
		}
	}()
}

func (o *Outbox) submit(ctx context.Context, kind pending.Kind, subject string) (*SubmitResult, error) {
	sub, err := o.intake.Submit(ctx, kind, map[string]string{"subject": subject})
	if err != nil {
		return nil, errors.Wrap(err, "submission failed")
	}
	if !sub.Accepted {
		return &SubmitResult{Accepted: false, Reason: sub.Reason}, nil
	}

	id := sub.ID
	if id == "" {
		id = uuid.New().String()
	}
	rec := pending.Record{
		ID:          id,
		Kind:        kind,
		Subject:     subject,
		SubmittedAt: o.now(),
		Status:      pending.StatusPending,
	}

	o.mu.Lock()
	o.records[kind] = append(o.records[kind], rec)
	o.persistLocked(kind)
	o.mu.Unlock()

	return &SubmitResult{Accepted: true, Record: &rec}, nil
}

// Pending returns a copy of the pending list for a kind.
func (o *Outbox) Pending(kind pending.Kind) []pending.Record {
	o.mu.Lock()
	defer o.mu.Unlock()

	recs := make([]pending.Record, len(o.records[kind]))
	copy(recs, o.records[kind])
	return recs
}

// approve flips a record to approved and persists the list.
func (o *Outbox) approve(kind pending.Kind, id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i := range o.records[kind] {
		if o.records[kind][i].ID == id {
			if o.records[kind][i].Status == pending.StatusApproved {
				return false
			}
			o.records[kind][i].Status = pending.StatusApproved
			o.persistLocked(kind)
			return true
		}
	}
	return false
}

// remove drops a record from the list and persists it.
func (o *Outbox) remove(kind pending.Kind, id string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	recs := o.records[kind]
	for i := range recs {
		if recs[i].ID == id {
			o.records[kind] = append(recs[:i], recs[i+1:]...)
			o.persistLocked(kind)
			return
		}
	}
}

// persistLocked writes one pending list. Storage failures are logged only;
// the next mutation retries.
func (o *Outbox) persistLocked(kind pending.Kind) {
	key := KeyFixReports
	if kind == pending.KindAdd {
		key = KeyAddRequests
	}
	if err := o.store.Save(key, o.records[kind]); err != nil {
		zlog.Error().Err(err).Str("kind", string(kind)).Msg("outbox: failed to persist pending list")
	}
}
