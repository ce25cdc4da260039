package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/efuayankey/aimes-sub001/internal/errs"
	"github.com/efuayankey/aimes-sub001/internal/model"
	"github.com/efuayankey/aimes-sub001/internal/store"
	"github.com/google/uuid"
)

const (
	maxContentRunes = 10000
	maxTags         = 20
	maxTagLen       = 64

	// TagCrisis always routes a request to a human responder.
	TagCrisis = "crisis"
)

// Draft is a request as submitted by a requester.
type Draft struct {
	Content     string
	RequesterID string
	// Anonymous stores a one-way hash instead of the requester id.
	Anonymous      bool
	Tags           []string
	Priority       model.Priority
	CulturalTag    string
	Routing        model.Routing
	ConversationID string
}

func (d Draft) validate() error {
	ve := &errs.ValidationError{}
	content := strings.TrimSpace(d.Content)
	switch {
	case content == "":
		ve.Errors = append(ve.Errors, errs.FieldError{Field: "content", Message: "required"})
	case utf8.RuneCountInString(content) > maxContentRunes:
		ve.Errors = append(ve.Errors, errs.FieldError{Field: "content", Message: "too long"})
	}
	if strings.TrimSpace(d.RequesterID) == "" {
		ve.Errors = append(ve.Errors, errs.FieldError{Field: "requester_id", Message: "required"})
	}
	if d.Priority != "" && !d.Priority.Valid() {
		ve.Errors = append(ve.Errors, errs.FieldError{Field: "priority", Message: "unknown priority"})
	}
	if d.Routing != "" && d.Routing != model.RoutingHuman && d.Routing != model.RoutingAutomated {
		ve.Errors = append(ve.Errors, errs.FieldError{Field: "routing", Message: "must be human or automated"})
	}
	if len(d.Tags) > maxTags {
		ve.Errors = append(ve.Errors, errs.FieldError{Field: "tags", Message: "too many tags"})
	}
	for _, t := range d.Tags {
		if len(t) > maxTagLen {
			ve.Errors = append(ve.Errors, errs.FieldError{Field: "tags", Message: "tag too long"})
			break
		}
	}
	if len(d.CulturalTag) > maxTagLen {
		ve.Errors = append(ve.Errors, errs.FieldError{Field: "cultural_tag", Message: "too long"})
	}
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// classify decides routing and priority. Crisis requests always go to a
// human with urgent priority; otherwise the requested routing is honoured.
func classify(tags []string, routing model.Routing, priority model.Priority) (model.Routing, model.Priority) {
	if priority == "" {
		priority = model.PriorityNormal
	}
	if slices.Contains(tags, TagCrisis) {
		return model.RoutingHuman, model.PriorityUrgent
	}
	if routing == "" {
		routing = model.RoutingHuman
	}
	return routing, priority
}

func anonymize(requesterID string) string {
	sum := sha256.Sum256([]byte(requesterID))
	return "anon:" + hex.EncodeToString(sum[:8])
}

// RequestedBy reports whether callerID submitted r, anonymously or not.
func RequestedBy(r *model.Request, callerID string) bool {
	return r.RequesterID == callerID || r.RequesterID == anonymize(callerID)
}

// Queue is the intake and ordering side of the pipeline.
type Queue struct {
	Deps
	gen    Generator
	window int
}

func NewQueue(d Deps, gen Generator, window int) *Queue {
	d = d.withDefaults()
	d.Log = d.Log.With("component", "queue")
	if window <= 0 {
		window = 6
	}
	return &Queue{Deps: d, gen: gen, window: window}
}

// Enqueue stores a new request. Automated requests are answered before they
// are inserted, so they are never visible as pending; if generation fails
// the request joins the human queue instead.
func (q *Queue) Enqueue(ctx context.Context, d Draft) (*model.Request, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	tags := normalizeTags(d.Tags)
	routing, priority := classify(tags, d.Routing, d.Priority)

	requester := strings.TrimSpace(d.RequesterID)
	if d.Anonymous {
		requester = anonymize(requester)
	}

	now := q.Clock.Now().UTC()
	r := &model.Request{
		ID:          uuid.NewString(),
		Content:     strings.TrimSpace(d.Content),
		RequesterID: requester,
		Tags:        tags,
		Priority:    priority,
		CulturalTag: strings.TrimSpace(d.CulturalTag),
		Routing:     routing,
		Status:      model.RequestStatusPending,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if d.ConversationID != "" {
		conv, err := q.Store.GetConversation(ctx, d.ConversationID)
		if err != nil {
			return nil, err
		}
		if conv.Status == model.ConversationStatusClosed {
			return nil, errs.NewValidationError("conversation_id", "conversation is closed")
		}
		r.ConversationID = &conv.ID
		if r.CulturalTag == "" {
			r.CulturalTag = conv.CulturalTag
		}
	}

	if routing == model.RoutingAutomated {
		answered, err := q.answerOnIntake(ctx, r)
		if err == nil {
			return answered, nil
		}
		if !errs.IsGateway(err) {
			return nil, err
		}
		q.Log.WarnContext(ctx, "automated answer failed, request goes to human queue",
			"request_id", r.ID, "error", err)
	}

	if err := q.Store.CreateRequest(ctx, r); err != nil {
		return nil, err
	}
	q.Log.InfoContext(ctx, "request enqueued", "request_id", r.ID, "routing", r.Routing, "priority", r.Priority)
	q.publish(ctx, model.EventRequestCreated, r)
	return r, nil
}

func (q *Queue) answerOnIntake(ctx context.Context, r *model.Request) (*model.Request, error) {
	fc, err := q.fallbackContext(ctx, r, q.window)
	if err != nil {
		return nil, err
	}
	text, err := q.gen.Generate(ctx, fc)
	if err != nil {
		return nil, err
	}

	answered := *r
	answered.Status = model.RequestStatusAnswered
	answered.ResponseCount = 1
	resp := &model.Response{
		ID:            uuid.NewString(),
		RequestID:     r.ID,
		ResponderID:   AutomatedResponderID,
		ResponderType: model.ResponderAutomated,
		Content:       text,
		CreatedAt:     q.Clock.Now().UTC(),
	}
	if err := q.Store.CreateAnswered(ctx, &answered, resp); err != nil {
		return nil, err
	}
	q.Log.InfoContext(ctx, "request answered on intake", "request_id", r.ID)
	answered.Responses = []model.Response{*resp}
	q.answered(ctx, &answered, resp)
	return &answered, nil
}

// ListPending returns pending requests, longest waiting first. limit <= 0
// returns all of them.
func (q *Queue) ListPending(ctx context.Context, limit int) ([]model.Request, error) {
	return q.Store.ListRequests(ctx, store.RequestQuery{
		Statuses: []model.RequestStatus{model.RequestStatusPending},
		Limit:    limit,
	})
}

// ListActive returns pending and claimed requests in queue order.
func (q *Queue) ListActive(ctx context.Context) ([]model.Request, error) {
	return q.Store.ListRequests(ctx, store.RequestQuery{
		Statuses: []model.RequestStatus{model.RequestStatusPending, model.RequestStatusClaimed},
	})
}

func (q *Queue) Get(ctx context.Context, id string) (*model.Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.NewValidationError("id", "must be a uuid")
	}
	return q.Store.GetRequest(ctx, id)
}

func (q *Queue) Responses(ctx context.Context, id string) ([]model.Response, error) {
	if _, err := q.Get(ctx, id); err != nil {
		return nil, err
	}
	return q.Store.ListResponses(ctx, id)
}
