// Package service implements the assignment and response pipeline: intake
// and ordering (Queue), claim arbitration (Leases), answering (Finalizer)
// and conversation ownership (Conversations). Every state change goes
// through one conditional store update.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/efuayankey/aimes-sub001/internal/errs"
	"github.com/efuayankey/aimes-sub001/internal/fallback"
	"github.com/efuayankey/aimes-sub001/internal/feedback"
	"github.com/efuayankey/aimes-sub001/internal/model"
	"github.com/efuayankey/aimes-sub001/internal/store"
	"github.com/jonboulle/clockwork"
)

// AutomatedResponderID is the responder id of generated responses.
const AutomatedResponderID = "system:fallback"

// Publisher receives committed transitions.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event)
}

type Generator interface {
	Generate(ctx context.Context, c fallback.Context) (string, error)
}

// FeedbackQueue accepts analysis jobs without blocking.
type FeedbackQueue interface {
	Enqueue(ctx context.Context, job feedback.Job) bool
}

// Deps are the handles shared by all pipeline components.
type Deps struct {
	Store    *store.Store
	Clock    clockwork.Clock
	Events   Publisher
	Feedback FeedbackQueue
	Log      *slog.Logger
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, model.Event) {}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Events == nil {
		d.Events = nopPublisher{}
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return d
}

func (d Deps) publish(ctx context.Context, t model.EventType, r *model.Request) {
	d.Events.Publish(ctx, model.RequestEvent(t, r, d.Clock.Now().UTC()))
}

// answered runs the post-commit steps of an answer: the event and the
// feedback job. Neither can affect the committed state.
func (d Deps) answered(ctx context.Context, r *model.Request, resp *model.Response) {
	d.publish(ctx, model.EventRequestAnswered, r)
	if d.Feedback == nil {
		return
	}
	d.Feedback.Enqueue(ctx, feedback.Job{
		ResponseID:      resp.ID,
		RequestID:       r.ID,
		RequestContent:  r.Content,
		ResponseContent: resp.Content,
		CulturalTag:     r.CulturalTag,
	})
}

// raceError classifies a failed conditional update: a missing request is
// ErrNotFound, anything else is the given race sentinel.
func (d Deps) raceError(ctx context.Context, id string, sentinel error) error {
	if _, err := d.Store.GetRequest(ctx, id); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return err
		}
	}
	return fmt.Errorf("request %s: %w", id, sentinel)
}

// fallbackContext builds the generator input, including the prior turns of
// the request's conversation.
func (d Deps) fallbackContext(ctx context.Context, r *model.Request, window int) (fallback.Context, error) {
	fc := fallback.Context{CulturalTag: r.CulturalTag, Message: r.Content}
	if r.ConversationID == nil {
		return fc, nil
	}
	prior, err := d.Store.ConversationHistory(ctx, *r.ConversationID, window)
	if err != nil {
		return fc, err
	}
	for _, p := range prior {
		if p.ID == r.ID {
			continue
		}
		fc.History = append(fc.History, fallback.Turn{Role: fallback.RoleRequester, Text: p.Content})
		for _, resp := range p.Responses {
			fc.History = append(fc.History, fallback.Turn{Role: fallback.RoleResponder, Text: resp.Content})
		}
	}
	return fc, nil
}
