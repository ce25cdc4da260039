package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/efuayankey/aimes-sub001/internal/errs"
	"github.com/efuayankey/aimes-sub001/internal/model"
	"github.com/efuayankey/aimes-sub001/internal/store"
	"github.com/google/uuid"
)

// Finalizer commits answers. The status transition and the Response insert
// share one transaction.
type Finalizer struct {
	Deps
	gen    Generator
	window int
}

func NewFinalizer(d Deps, gen Generator, window int) *Finalizer {
	d = d.withDefaults()
	d.Log = d.Log.With("component", "finalizer")
	if window <= 0 {
		window = 6
	}
	return &Finalizer{Deps: d, gen: gen, window: window}
}

// SubmitResponse answers a request claimed by responderID. If the claim was
// released, expired or taken by someone else, nothing is written and
// ErrStaleClaim is returned.
func (f *Finalizer) SubmitResponse(ctx context.Context, id, responderID, content string) (*model.Response, error) {
	content = strings.TrimSpace(content)
	switch {
	case strings.TrimSpace(responderID) == "":
		return nil, errs.NewValidationError("responder_id", "required")
	case content == "":
		return nil, errs.NewValidationError("content", "required")
	case utf8.RuneCountInString(content) > maxContentRunes:
		return nil, errs.NewValidationError("content", "too long")
	}

	now := f.Clock.Now().UTC()
	resp := &model.Response{
		ID:            uuid.NewString(),
		RequestID:     id,
		ResponderID:   responderID,
		ResponderType: model.ResponderHuman,
		Content:       content,
		CreatedAt:     now,
	}
	changes := answer(now)
	changes["claimed_by"] = nil
	changes["claimed_at"] = nil
	changes["response_deadline"] = nil

	r, err := f.Store.CommitResponse(ctx, id,
		store.RequestCond{Status: model.RequestStatusClaimed, ClaimedBy: responderID},
		changes, resp)
	if errors.Is(err, store.ErrConditionFailed) {
		return nil, f.raceError(ctx, id, errs.ErrStaleClaim)
	}
	if err != nil {
		return nil, err
	}
	f.Log.InfoContext(ctx, "response submitted", "request_id", id, "responder_id", responderID, "response_id", resp.ID)
	f.answered(ctx, r, resp)
	return resp, nil
}

// SubmitAutomated answers a pending request with generated text. A gateway
// failure leaves the request pending and is returned to the caller.
func (f *Finalizer) SubmitAutomated(ctx context.Context, id string) (*model.Response, error) {
	r, err := f.Store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != model.RequestStatusPending {
		return nil, f.raceError(ctx, id, errs.ErrStaleClaim)
	}
	fc, err := f.fallbackContext(ctx, r, f.window)
	if err != nil {
		return nil, err
	}
	text, err := f.gen.Generate(ctx, fc)
	if err != nil {
		f.Log.WarnContext(ctx, "automated response failed, request stays pending", "request_id", id, "error", err)
		return nil, err
	}

	now := f.Clock.Now().UTC()
	resp := &model.Response{
		ID:            uuid.NewString(),
		RequestID:     id,
		ResponderID:   AutomatedResponderID,
		ResponderType: model.ResponderAutomated,
		Content:       text,
		CreatedAt:     now,
	}
	answered, err := f.Store.CommitResponse(ctx, id,
		store.RequestCond{Status: model.RequestStatusPending},
		answer(now), resp)
	if errors.Is(err, store.ErrConditionFailed) {
		// Claimed by a human while the text was being generated.
		return nil, f.raceError(ctx, id, errs.ErrStaleClaim)
	}
	if err != nil {
		return nil, err
	}
	f.Log.InfoContext(ctx, "automated response submitted", "request_id", id, "response_id", resp.ID)
	f.answered(ctx, answered, resp)
	return resp, nil
}

// Close archives an answered request. The responder who answered it or a
// supervisor may close it.
func (f *Finalizer) Close(ctx context.Context, id, actorID string, supervisor bool) (*model.Request, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, errs.NewValidationError("actor_id", "required")
	}
	cond := store.RequestCond{Status: model.RequestStatusAnswered}
	if !supervisor {
		cond.RespondedBy = actorID
	}
	now := f.Clock.Now().UTC()
	r, err := f.Store.TransitionRequest(ctx, id, cond, map[string]any{
		"status":     model.RequestStatusClosed,
		"closed_at":  now,
		"updated_at": now,
	})
	if errors.Is(err, store.ErrConditionFailed) {
		cur, gerr := f.Store.GetRequest(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		if cur.Status != model.RequestStatusAnswered {
			return nil, f.raceError(ctx, id, errs.ErrStaleClaim)
		}
		return nil, f.raceError(ctx, id, errs.ErrNotOwner)
	}
	if err != nil {
		return nil, err
	}
	f.Log.InfoContext(ctx, "request closed", "request_id", id, "actor_id", actorID)
	f.publish(ctx, model.EventRequestClosed, r)
	return r, nil
}

func answer(now time.Time) map[string]any {
	return map[string]any{
		"status":     model.RequestStatusAnswered,
		"updated_at": now,
	}
}
