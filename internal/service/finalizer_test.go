package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/efuayankey/aimes-sub001/internal/errs"
	"github.com/efuayankey/aimes-sub001/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// submit, claim within the lease, answer within the lease.
func TestScenario_RoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.submit(t, "I am homesick")

	h.clock.Advance(30 * time.Minute)
	_, err := h.leases.Claim(ctx, r.ID, "c1")
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	resp, err := h.finalizer.SubmitResponse(ctx, r.ID, "c1", "That sounds hard. What do you miss most?")
	require.NoError(t, err)

	assert.Equal(t, r.ID, resp.RequestID)
	assert.Equal(t, "c1", resp.ResponderID)
	assert.Equal(t, model.ResponderHuman, resp.ResponderType)

	got := h.get(t, r.ID)
	assert.Equal(t, model.RequestStatusAnswered, got.Status)
	assert.Equal(t, 1, got.ResponseCount)
	assert.Nil(t, got.ClaimedBy)
	assert.Nil(t, got.ResponseDeadline)

	resps := h.responses(t, r.ID)
	require.Len(t, resps, 1)
	assert.Equal(t, resp.ID, resps[0].ID)

	assert.Equal(t, []model.EventType{
		model.EventRequestCreated, model.EventRequestClaimed, model.EventRequestAnswered,
	}, h.events.types())
	require.Len(t, h.feedback.jobs, 1)
	assert.Equal(t, "I am homesick", h.feedback.jobs[0].RequestContent)
}

func TestSubmitResponse_RequiresClaimOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.submit(t, "hello")

	_, err := h.finalizer.SubmitResponse(ctx, r.ID, "c1", "hi")
	assert.ErrorIs(t, err, errs.ErrStaleClaim, "unclaimed request")

	_, err = h.leases.Claim(ctx, r.ID, "c1")
	require.NoError(t, err)

	_, err = h.finalizer.SubmitResponse(ctx, r.ID, "c2", "hi")
	assert.ErrorIs(t, err, errs.ErrStaleClaim, "claimed by someone else")

	_, err = h.finalizer.SubmitResponse(ctx, r.ID, "c1", "   ")
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = h.finalizer.SubmitResponse(ctx, r.ID, "c1", "hi")
	require.NoError(t, err)

	_, err = h.finalizer.SubmitResponse(ctx, r.ID, "c1", "again")
	assert.ErrorIs(t, err, errs.ErrStaleClaim, "already answered")
	assert.Len(t, h.responses(t, r.ID), 1)
	assert.Equal(t, 1, h.get(t, r.ID).ResponseCount)
}

func TestSubmitResponse_MissingRequest(t *testing.T) {
	h := newHarness(t)

	_, err := h.finalizer.SubmitResponse(context.Background(), "5f1d7a4e-8c47-4d6a-9d59-0d7e0f3f8b11", "c1", "hi")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

// A response racing the sweeper at the exact deadline has exactly one outcome.
func TestSubmitResponse_RaceWithSweepAtDeadline(t *testing.T) {
	for i := 0; i < 10; i++ {
		h := newHarness(t)
		ctx := context.Background()
		r := h.submit(t, "hello")
		_, err := h.leases.Claim(ctx, r.ID, "c1")
		require.NoError(t, err)
		h.clock.Advance(2 * time.Hour)

		var (
			wg         sync.WaitGroup
			submitErr  error
			reclaimed  bool
			reclaimErr error
		)
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, submitErr = h.finalizer.SubmitResponse(ctx, r.ID, "c1", "here I am")
		}()
		go func() {
			defer wg.Done()
			<-start
			reclaimed, reclaimErr = h.leases.ReclaimExpired(ctx, r.ID)
		}()
		close(start)
		wg.Wait()
		require.NoError(t, reclaimErr)

		got := h.get(t, r.ID)
		resps := h.responses(t, r.ID)
		if submitErr == nil {
			assert.False(t, reclaimed)
			assert.Equal(t, model.RequestStatusAnswered, got.Status)
			assert.Len(t, resps, 1)
		} else {
			assert.True(t, errors.Is(submitErr, errs.ErrStaleClaim), "unexpected error: %v", submitErr)
			assert.True(t, reclaimed)
			assert.Equal(t, model.RequestStatusPending, got.Status)
			assert.Empty(t, resps)
		}
	}
}

func TestSubmitAutomated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.submit(t, "hello")

	resp, err := h.finalizer.SubmitAutomated(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, AutomatedResponderID, resp.ResponderID)
	assert.Equal(t, model.ResponderAutomated, resp.ResponderType)

	got := h.get(t, r.ID)
	assert.Equal(t, model.RequestStatusAnswered, got.Status)
	assert.Equal(t, 1, got.ResponseCount)

	_, err = h.finalizer.SubmitAutomated(ctx, r.ID)
	assert.ErrorIs(t, err, errs.ErrStaleClaim)
	assert.Equal(t, 1, h.gen.calls)
}

func TestSubmitAutomated_ClaimedRequestIsStale(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.submit(t, "hello")
	_, err := h.leases.Claim(ctx, r.ID, "c1")
	require.NoError(t, err)

	_, err = h.finalizer.SubmitAutomated(ctx, r.ID)
	assert.ErrorIs(t, err, errs.ErrStaleClaim)
	assert.Equal(t, 0, h.gen.calls)
}

func TestSubmitAutomated_GatewayFailureLeavesPending(t *testing.T) {
	h := newHarness(t)
	h.gen.err = errs.ErrGatewayError
	r := h.submit(t, "hello")

	_, err := h.finalizer.SubmitAutomated(context.Background(), r.ID)
	assert.ErrorIs(t, err, errs.ErrGatewayError)
	assert.Equal(t, model.RequestStatusPending, h.get(t, r.ID).Status)
	assert.Empty(t, h.responses(t, r.ID))
}

func TestClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.submit(t, "hello")

	_, err := h.finalizer.Close(ctx, r.ID, "c1", false)
	assert.ErrorIs(t, err, errs.ErrStaleClaim, "pending request cannot be closed")

	_, err = h.leases.Claim(ctx, r.ID, "c1")
	require.NoError(t, err)
	_, err = h.finalizer.SubmitResponse(ctx, r.ID, "c1", "hi")
	require.NoError(t, err)

	_, err = h.finalizer.Close(ctx, r.ID, "c2", false)
	assert.ErrorIs(t, err, errs.ErrNotOwner)

	closed, err := h.finalizer.Close(ctx, r.ID, "c1", false)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	_, err = h.finalizer.Close(ctx, r.ID, "c1", false)
	assert.ErrorIs(t, err, errs.ErrStaleClaim, "closed is terminal")
}

func TestClose_BySupervisor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r, err := h.queue.Enqueue(ctx, Draft{Content: "hello", RequesterID: "s", Routing: model.RoutingAutomated})
	require.NoError(t, err)

	_, err = h.finalizer.Close(ctx, r.ID, "supervisor-1", true)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusClosed, h.get(t, r.ID).Status)
}
