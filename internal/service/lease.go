package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/efuayankey/aimes-sub001/internal/errs"
	"github.com/efuayankey/aimes-sub001/internal/model"
	"github.com/efuayankey/aimes-sub001/internal/store"
)

// DefaultLeaseDuration bounds every claim.
const DefaultLeaseDuration = 2 * time.Hour

// Leases arbitrates exclusive, time-bounded ownership of pending requests.
type Leases struct {
	Deps
	duration time.Duration
}

func NewLeases(d Deps, duration time.Duration) *Leases {
	d = d.withDefaults()
	d.Log = d.Log.With("component", "lease")
	if duration <= 0 {
		duration = DefaultLeaseDuration
	}
	return &Leases{Deps: d, duration: duration}
}

func (l *Leases) Duration() time.Duration { return l.duration }

// Claim takes a pending request for ownerID. Of concurrent callers exactly
// one wins; the others get ErrAlreadyClaimed.
func (l *Leases) Claim(ctx context.Context, id, ownerID string) (*model.Request, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, errs.NewValidationError("owner_id", "required")
	}
	now := l.Clock.Now().UTC()
	r, err := l.Store.TransitionRequest(ctx, id, store.RequestCond{Status: model.RequestStatusPending}, map[string]any{
		"status":            model.RequestStatusClaimed,
		"claimed_by":        ownerID,
		"claimed_at":        now,
		"response_deadline": now.Add(l.duration),
		"updated_at":        now,
	})
	if errors.Is(err, store.ErrConditionFailed) {
		return nil, l.raceError(ctx, id, errs.ErrAlreadyClaimed)
	}
	if err != nil {
		return nil, err
	}
	l.Log.InfoContext(ctx, "request claimed", "request_id", id, "owner_id", ownerID, "deadline", r.ResponseDeadline)
	l.publish(ctx, model.EventRequestClaimed, r)
	return r, nil
}

// Release hands a claimed request back to the pending pool. Only the
// current owner may release.
func (l *Leases) Release(ctx context.Context, id, ownerID string) (*model.Request, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, errs.NewValidationError("owner_id", "required")
	}
	now := l.Clock.Now().UTC()
	r, err := l.Store.TransitionRequest(ctx, id,
		store.RequestCond{Status: model.RequestStatusClaimed, ClaimedBy: ownerID},
		unclaim(now))
	if errors.Is(err, store.ErrConditionFailed) {
		return nil, l.raceError(ctx, id, errs.ErrNotOwner)
	}
	if err != nil {
		return nil, err
	}
	l.Log.InfoContext(ctx, "request released", "request_id", id, "owner_id", ownerID)
	l.publish(ctx, model.EventRequestReleased, r)
	return r, nil
}

// ReclaimExpired returns a claimed request whose deadline has passed to the
// pending pool. It reports false, without error, when there was nothing to
// reclaim, so repeated or overlapping calls are harmless.
func (l *Leases) ReclaimExpired(ctx context.Context, id string) (bool, error) {
	now := l.Clock.Now().UTC()
	r, err := l.Store.TransitionRequest(ctx, id,
		store.RequestCond{Status: model.RequestStatusClaimed, DeadlineAtOrBefore: &now},
		unclaim(now))
	if errors.Is(err, store.ErrConditionFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	l.Log.InfoContext(ctx, "lease expired, request reclaimed", "request_id", id)
	l.publish(ctx, model.EventRequestExpired, r)
	return true, nil
}

// Expired lists claimed requests whose deadline is at or before now.
func (l *Leases) Expired(ctx context.Context, limit int) ([]model.Request, error) {
	now := l.Clock.Now().UTC()
	return l.Store.ListRequests(ctx, store.RequestQuery{
		Statuses:           []model.RequestStatus{model.RequestStatusClaimed},
		DeadlineAtOrBefore: &now,
		Limit:              limit,
	})
}

func unclaim(now time.Time) map[string]any {
	return map[string]any{
		"status":            model.RequestStatusPending,
		"claimed_by":        nil,
		"claimed_at":        nil,
		"response_deadline": nil,
		"updated_at":        now,
	}
}
