package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/efuayankey/aimes-sub001/internal/errs"
	"github.com/efuayankey/aimes-sub001/internal/model"
	"github.com/efuayankey/aimes-sub001/internal/store"
	"github.com/efuayankey/aimes-sub001/internal/store/storetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newRequest(createdAt time.Time) *model.Request {
	return &model.Request{
		ID:          uuid.NewString(),
		Content:     "I cannot sleep before exams",
		RequesterID: "student-1",
		Tags:        []string{"stress"},
		Priority:    model.PriorityNormal,
		Routing:     model.RoutingHuman,
		Status:      model.RequestStatusPending,
		Version:     1,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	r := newRequest(t0)
	require.NoError(t, s.CreateRequest(ctx, r))

	got, err := s.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Content, got.Content)
	assert.Equal(t, []string{"stress"}, []string(got.Tags))
	assert.Equal(t, model.RequestStatusPending, got.Status)
	assert.True(t, got.LeaseConsistent())
}

func TestStore_GetMissing(t *testing.T) {
	s := storetest.New(t)

	_, err := s.GetRequest(context.Background(), "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestStore_ListRequestsOrderedByCreation(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	late := newRequest(t0.Add(2 * time.Minute))
	early := newRequest(t0)
	middle := newRequest(t0.Add(time.Minute))
	for _, r := range []*model.Request{late, early, middle} {
		require.NoError(t, s.CreateRequest(ctx, r))
	}

	items, err := s.ListRequests(ctx, store.RequestQuery{Statuses: []model.RequestStatus{model.RequestStatusPending}})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{early.ID, middle.ID, late.ID}, []string{items[0].ID, items[1].ID, items[2].ID})

	limited, err := s.ListRequests(ctx, store.RequestQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, early.ID, limited[0].ID)
}

func TestStore_TransitionRequest_ConditionFailed(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	r := newRequest(t0)
	require.NoError(t, s.CreateRequest(ctx, r))

	_, err := s.TransitionRequest(ctx, r.ID, store.RequestCond{Status: model.RequestStatusClaimed},
		map[string]any{"status": model.RequestStatusPending, "updated_at": t0})
	assert.ErrorIs(t, err, store.ErrConditionFailed)

	got, err := s.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
}

func TestStore_TransitionRequest_BumpsVersion(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	r := newRequest(t0)
	require.NoError(t, s.CreateRequest(ctx, r))

	deadline := t0.Add(2 * time.Hour)
	got, err := s.TransitionRequest(ctx, r.ID, store.RequestCond{Status: model.RequestStatusPending}, map[string]any{
		"status":            model.RequestStatusClaimed,
		"claimed_by":        "c1",
		"claimed_at":        t0,
		"response_deadline": deadline,
		"updated_at":        t0,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, model.RequestStatusClaimed, got.Status)
	require.NotNil(t, got.ClaimedBy)
	assert.Equal(t, "c1", *got.ClaimedBy)
	assert.True(t, got.LeaseConsistent())
}

func TestStore_DeadlineCondition(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	r := newRequest(t0)
	require.NoError(t, s.CreateRequest(ctx, r))
	deadline := t0.Add(2 * time.Hour)
	_, err := s.TransitionRequest(ctx, r.ID, store.RequestCond{Status: model.RequestStatusPending}, map[string]any{
		"status": model.RequestStatusClaimed, "claimed_by": "c1", "claimed_at": t0,
		"response_deadline": deadline, "updated_at": t0,
	})
	require.NoError(t, err)

	before := deadline.Add(-time.Second)
	expired, err := s.ListRequests(ctx, store.RequestQuery{
		Statuses:           []model.RequestStatus{model.RequestStatusClaimed},
		DeadlineAtOrBefore: &before,
	})
	require.NoError(t, err)
	assert.Empty(t, expired)

	expired, err = s.ListRequests(ctx, store.RequestQuery{
		Statuses:           []model.RequestStatus{model.RequestStatusClaimed},
		DeadlineAtOrBefore: &deadline,
	})
	require.NoError(t, err)
	assert.Len(t, expired, 1)
}

func TestStore_CommitResponseIsAtomic(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	r := newRequest(t0)
	require.NoError(t, s.CreateRequest(ctx, r))

	resp := &model.Response{
		ID: uuid.NewString(), RequestID: r.ID, ResponderID: "c1",
		ResponderType: model.ResponderHuman, Content: "hello", CreatedAt: t0,
	}
	// Request is pending, so a claimed precondition fails and no response is kept.
	_, err := s.CommitResponse(ctx, r.ID, store.RequestCond{Status: model.RequestStatusClaimed, ClaimedBy: "c1"},
		map[string]any{"status": model.RequestStatusAnswered, "updated_at": t0}, resp)
	assert.ErrorIs(t, err, store.ErrConditionFailed)

	responses, err := s.ListResponses(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, responses)
}

func TestStore_CreateAnswered(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	r := newRequest(t0)
	r.Status = model.RequestStatusAnswered
	r.ResponseCount = 1
	resp := &model.Response{
		ID: uuid.NewString(), RequestID: r.ID, ResponderID: "fallback",
		ResponderType: model.ResponderAutomated, Content: "breathe", CreatedAt: t0,
	}
	require.NoError(t, s.CreateAnswered(ctx, r, resp))

	responses, err := s.ListResponses(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, model.ResponderAutomated, responses[0].ResponderType)

	require.NoError(t, s.AttachFeedback(ctx, resp.ID, []byte(`{"empathy":0.9}`), t0))
	responses, err = s.ListResponses(ctx, r.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"empathy":0.9}`, string(responses[0].Feedback))
	assert.ErrorIs(t, s.AttachFeedback(ctx, "missing", []byte(`{}`), t0), errs.ErrNotFound)
}

func TestStore_ConversationHistory(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	conv := &model.Conversation{ID: uuid.NewString(), RequesterID: "student-1",
		Status: model.ConversationStatusUnclaimed, CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, s.CreateConversation(ctx, conv))

	for i := 0; i < 3; i++ {
		r := newRequest(t0.Add(time.Duration(i) * time.Minute))
		r.ConversationID = &conv.ID
		require.NoError(t, s.CreateRequest(ctx, r))
	}

	items, err := s.ConversationHistory(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].CreatedAt.Before(items[1].CreatedAt))
	assert.Equal(t, t0.Add(2*time.Minute), items[1].CreatedAt.UTC())
}

func TestStore_TransitionConversation(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	conv := &model.Conversation{ID: uuid.NewString(), RequesterID: "student-1",
		Status: model.ConversationStatusUnclaimed, CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, s.CreateConversation(ctx, conv))

	got, err := s.TransitionConversation(ctx, conv.ID, store.ConversationCond{Status: model.ConversationStatusUnclaimed},
		map[string]any{"status": model.ConversationStatusClaimed, "counselor_id": "c1", "claimed_at": t0, "updated_at": t0})
	require.NoError(t, err)
	assert.Equal(t, model.ConversationStatusClaimed, got.Status)

	_, err = s.TransitionConversation(ctx, conv.ID, store.ConversationCond{Status: model.ConversationStatusUnclaimed},
		map[string]any{"status": model.ConversationStatusClaimed, "counselor_id": "c2", "updated_at": t0})
	assert.ErrorIs(t, err, store.ErrConditionFailed)
}
