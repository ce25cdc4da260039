package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/efuayankey/aimes-sub001/internal/errs"
	"github.com/efuayankey/aimes-sub001/internal/model"
	"github.com/efuayankey/aimes-sub001/internal/store"
	"github.com/google/uuid"
)

// Conversations manages ownership of multi-turn threads. A claim has no
// deadline: it lasts until released or closed.
type Conversations struct {
	Deps
}

func NewConversations(d Deps) *Conversations {
	d = d.withDefaults()
	d.Log = d.Log.With("component", "conversation")
	return &Conversations{Deps: d}
}

func (c *Conversations) Start(ctx context.Context, requesterID, culturalTag string) (*model.Conversation, error) {
	if strings.TrimSpace(requesterID) == "" {
		return nil, errs.NewValidationError("requester_id", "required")
	}
	if len(culturalTag) > maxTagLen {
		return nil, errs.NewValidationError("cultural_tag", "too long")
	}
	now := c.Clock.Now().UTC()
	conv := &model.Conversation{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		CulturalTag: strings.TrimSpace(culturalTag),
		Status:      model.ConversationStatusUnclaimed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.Store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	c.publishConv(ctx, model.EventConversationCreated, conv)
	return conv, nil
}

func (c *Conversations) Get(ctx context.Context, id string) (*model.Conversation, error) {
	return c.Store.GetConversation(ctx, id)
}

// ListUnclaimed returns unclaimed conversations, oldest first.
func (c *Conversations) ListUnclaimed(ctx context.Context, limit int) ([]model.Conversation, error) {
	return c.Store.ListConversations(ctx, model.ConversationStatusUnclaimed, limit)
}

// History returns the requests of a conversation with their responses.
func (c *Conversations) History(ctx context.Context, id string, limit int) ([]model.Request, error) {
	if _, err := c.Store.GetConversation(ctx, id); err != nil {
		return nil, err
	}
	return c.Store.ConversationHistory(ctx, id, limit)
}

func (c *Conversations) Claim(ctx context.Context, id, counselorID string) (*model.Conversation, error) {
	if strings.TrimSpace(counselorID) == "" {
		return nil, errs.NewValidationError("counselor_id", "required")
	}
	now := c.Clock.Now().UTC()
	conv, err := c.Store.TransitionConversation(ctx, id,
		store.ConversationCond{Status: model.ConversationStatusUnclaimed},
		map[string]any{
			"status":       model.ConversationStatusClaimed,
			"counselor_id": counselorID,
			"claimed_at":   now,
			"updated_at":   now,
		})
	if errors.Is(err, store.ErrConditionFailed) {
		return nil, c.convRaceError(ctx, id, errs.ErrAlreadyClaimed)
	}
	if err != nil {
		return nil, err
	}
	c.Log.InfoContext(ctx, "conversation claimed", "conversation_id", id, "counselor_id", counselorID)
	c.publishConv(ctx, model.EventConversationClaimed, conv)
	return conv, nil
}

func (c *Conversations) Release(ctx context.Context, id, counselorID string) (*model.Conversation, error) {
	if strings.TrimSpace(counselorID) == "" {
		return nil, errs.NewValidationError("counselor_id", "required")
	}
	now := c.Clock.Now().UTC()
	conv, err := c.Store.TransitionConversation(ctx, id,
		store.ConversationCond{Status: model.ConversationStatusClaimed, CounselorID: counselorID},
		map[string]any{
			"status":       model.ConversationStatusUnclaimed,
			"counselor_id": nil,
			"claimed_at":   nil,
			"updated_at":   now,
		})
	if errors.Is(err, store.ErrConditionFailed) {
		return nil, c.convRaceError(ctx, id, errs.ErrNotOwner)
	}
	if err != nil {
		return nil, err
	}
	c.Log.InfoContext(ctx, "conversation released", "conversation_id", id, "counselor_id", counselorID)
	c.publishConv(ctx, model.EventConversationReleased, conv)
	return conv, nil
}

// Close ends a conversation. The owning counselor may close a claimed
// conversation; a supervisor may close any open one.
func (c *Conversations) Close(ctx context.Context, id, actorID string, supervisor bool) (*model.Conversation, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, errs.NewValidationError("actor_id", "required")
	}
	cond := store.ConversationCond{Status: model.ConversationStatusClaimed, CounselorID: actorID}
	if supervisor {
		cond = store.ConversationCond{}
	}
	now := c.Clock.Now().UTC()
	conv, err := c.Store.TransitionConversation(ctx, id, cond, map[string]any{
		"status":     model.ConversationStatusClosed,
		"closed_at":  now,
		"updated_at": now,
	})
	if errors.Is(err, store.ErrConditionFailed) {
		cur, gerr := c.Store.GetConversation(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		if cur.Status == model.ConversationStatusClosed {
			return nil, fmt.Errorf("conversation %s: %w", id, errs.ErrStaleClaim)
		}
		return nil, fmt.Errorf("conversation %s: %w", id, errs.ErrNotOwner)
	}
	if err != nil {
		return nil, err
	}
	c.Log.InfoContext(ctx, "conversation closed", "conversation_id", id, "actor_id", actorID)
	c.publishConv(ctx, model.EventConversationClosed, conv)
	return conv, nil
}

func (c *Conversations) convRaceError(ctx context.Context, id string, sentinel error) error {
	if _, err := c.Store.GetConversation(ctx, id); errors.Is(err, errs.ErrNotFound) {
		return err
	}
	return fmt.Errorf("conversation %s: %w", id, sentinel)
}

func (c *Conversations) publishConv(ctx context.Context, t model.EventType, conv *model.Conversation) {
	c.Events.Publish(ctx, model.Event{Type: t, At: c.Clock.Now().UTC(), Conversation: conv})
}
