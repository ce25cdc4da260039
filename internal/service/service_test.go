package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/efuayankey/aimes-sub001/internal/fallback"
	"github.com/efuayankey/aimes-sub001/internal/feedback"
	"github.com/efuayankey/aimes-sub001/internal/logger"
	"github.com/efuayankey/aimes-sub001/internal/model"
	"github.com/efuayankey/aimes-sub001/internal/store"
	"github.com/efuayankey/aimes-sub001/internal/store/storetest"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) Publish(_ context.Context, ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type fakeGen struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	last  fallback.Context
}

func (g *fakeGen) Generate(_ context.Context, c fallback.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.last = c
	return g.text, g.err
}

type fakeFeedback struct {
	mu   sync.Mutex
	jobs []feedback.Job
}

func (f *fakeFeedback) Enqueue(_ context.Context, job feedback.Job) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return true
}

type harness struct {
	store    *store.Store
	clock    *clockwork.FakeClock
	events   *recorder
	gen      *fakeGen
	feedback *fakeFeedback

	queue         *Queue
	leases        *Leases
	finalizer     *Finalizer
	conversations *Conversations
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    storetest.New(t),
		clock:    clockwork.NewFakeClockAt(t0),
		events:   &recorder{},
		gen:      &fakeGen{text: "You are not alone."},
		feedback: &fakeFeedback{},
	}
	d := Deps{Store: h.store, Clock: h.clock, Events: h.events, Feedback: h.feedback, Log: logger.Discard()}
	h.queue = NewQueue(d, h.gen, 6)
	h.leases = NewLeases(d, 2*time.Hour)
	h.finalizer = NewFinalizer(d, h.gen, 6)
	h.conversations = NewConversations(d)
	return h
}

func (h *harness) submit(t *testing.T, content string) *model.Request {
	t.Helper()
	r, err := h.queue.Enqueue(context.Background(), Draft{Content: content, RequesterID: "student-1"})
	require.NoError(t, err)
	return r
}

func (h *harness) get(t *testing.T, id string) *model.Request {
	t.Helper()
	r, err := h.store.GetRequest(context.Background(), id)
	require.NoError(t, err)
	require.True(t, r.LeaseConsistent(), "lease fields inconsistent with status %s", r.Status)
	return r
}

func (h *harness) responses(t *testing.T, id string) []model.Response {
	t.Helper()
	out, err := h.store.ListResponses(context.Background(), id)
	require.NoError(t, err)
	return out
}
