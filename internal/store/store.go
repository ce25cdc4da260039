// Package store is the request/response store: the only shared mutable
// resource of the pipeline. Every state transition is a single conditional
// UPDATE keyed by id, optionally sharing a transaction with the insert of a
// Response.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/efuayankey/aimes-sub001/internal/errs"
	"github.com/efuayankey/aimes-sub001/internal/model"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrConditionFailed means the conditional update matched no row: the record
// is missing or its state differs from the expected one.
var ErrConditionFailed = errors.New("store: condition not met")

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Models lists the tables owned by the store, for AutoMigrate.
func Models() []any {
	return []any{&model.Request{}, &model.Response{}, &model.Conversation{}}
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return mapError(err, "db", "")
	}
	return mapError(sqlDB.PingContext(ctx), "db", "")
}

// mapError converts driver errors to errs sentinels. Context errors and
// not-found pass through; every other failure is reported as ErrStoreUnavailable.
func mapError(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", entity, id, err)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", entity, id, errs.ErrNotFound)
	}
	if errors.Is(err, ErrConditionFailed) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s %s: duplicate key: %w", entity, id, errs.ErrValidation)
	}
	if errors.Is(err, gorm.ErrCheckConstraintViolated) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return fmt.Errorf("%s %s: %w: %w", entity, id, errs.ErrValidation, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s %s: duplicate key: %w", entity, id, errs.ErrValidation)
		case "23514": // check_violation
			return fmt.Errorf("%s %s: %w", entity, id, errs.ErrValidation)
		}
	}
	return fmt.Errorf("%s %s: %w: %w", entity, id, errs.ErrStoreUnavailable, err)
}

// RequestCond is the expected state of a request for a conditional update.
// Zero fields are not checked, except Status which is always required.
type RequestCond struct {
	Status             model.RequestStatus
	ClaimedBy          string
	DeadlineAtOrBefore *time.Time
	// RespondedBy requires an existing response by this responder.
	RespondedBy string
}

func (c RequestCond) apply(tx *gorm.DB, id string) *gorm.DB {
	tx = tx.Where("id = ? AND status = ?", id, c.Status)
	if c.ClaimedBy != "" {
		tx = tx.Where("claimed_by = ?", c.ClaimedBy)
	}
	if c.DeadlineAtOrBefore != nil {
		tx = tx.Where("response_deadline <= ?", *c.DeadlineAtOrBefore)
	}
	if c.RespondedBy != "" {
		tx = tx.Where("EXISTS (SELECT 1 FROM responses WHERE responses.request_id = requests.id AND responses.responder_id = ?)", c.RespondedBy)
	}
	return tx
}

// RequestQuery selects requests ordered by created_at ascending.
type RequestQuery struct {
	Statuses           []model.RequestStatus
	DeadlineAtOrBefore *time.Time
	ConversationID     string
	Limit              int
}

func (s *Store) CreateRequest(ctx context.Context, r *model.Request) error {
	return mapError(s.db.WithContext(ctx).Omit("Responses").Create(r).Error, "request", r.ID)
}

// CreateAnswered inserts an already answered request together with its
// response, so the request is never observable as pending.
func (s *Store) CreateAnswered(ctx context.Context, r *model.Request, resp *model.Response) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Responses").Create(r).Error; err != nil {
			return err
		}
		return tx.Create(resp).Error
	})
	return mapError(err, "request", r.ID)
}

func (s *Store) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	var r model.Request
	if err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, mapError(err, "request", id)
	}
	return &r, nil
}

func (s *Store) ListRequests(ctx context.Context, q RequestQuery) ([]model.Request, error) {
	tx := s.db.WithContext(ctx).Model(&model.Request{})
	if len(q.Statuses) > 0 {
		tx = tx.Where("status IN ?", q.Statuses)
	}
	if q.DeadlineAtOrBefore != nil {
		tx = tx.Where("response_deadline <= ?", *q.DeadlineAtOrBefore)
	}
	if q.ConversationID != "" {
		tx = tx.Where("conversation_id = ?", q.ConversationID)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var items []model.Request
	if err := tx.Order("created_at ASC").Order("id ASC").Find(&items).Error; err != nil {
		return nil, mapError(err, "requests", "")
	}
	return items, nil
}

// TransitionRequest applies changes only if the request matches cond and
// returns the snapshot written by this transition. Version is incremented.
func (s *Store) TransitionRequest(ctx context.Context, id string, cond RequestCond, changes map[string]any) (*model.Request, error) {
	var out model.Request
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := conditionalUpdate(tx, id, cond, changes); err != nil {
			return err
		}
		return tx.First(&out, "id = ?", id).Error
	})
	if err != nil {
		return nil, mapError(err, "request", id)
	}
	return &out, nil
}

// CommitResponse applies changes under cond, increments response_count and
// inserts resp in the same transaction. Either both become visible or neither does.
func (s *Store) CommitResponse(ctx context.Context, id string, cond RequestCond, changes map[string]any, resp *model.Response) (*model.Request, error) {
	var out model.Request
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		changes["response_count"] = gorm.Expr("response_count + 1")
		if err := conditionalUpdate(tx, id, cond, changes); err != nil {
			return err
		}
		if err := tx.Create(resp).Error; err != nil {
			return err
		}
		return tx.First(&out, "id = ?", id).Error
	})
	if err != nil {
		return nil, mapError(err, "request", id)
	}
	return &out, nil
}

func conditionalUpdate(tx *gorm.DB, id string, cond RequestCond, changes map[string]any) error {
	changes["version"] = gorm.Expr("version + 1")
	res := cond.apply(tx.Model(&model.Request{}), id).Updates(changes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConditionFailed
	}
	return nil
}

func (s *Store) ListResponses(ctx context.Context, requestID string) ([]model.Response, error) {
	var items []model.Response
	err := s.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, mapError(err, "responses", requestID)
	}
	return items, nil
}

// AttachFeedback stores the asynchronous quality feedback of a response.
func (s *Store) AttachFeedback(ctx context.Context, responseID string, feedback []byte, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Response{}).
		Where("id = ?", responseID).
		Updates(map[string]any{"feedback": feedback, "feedback_at": at})
	if res.Error != nil {
		return mapError(res.Error, "response", responseID)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("response %s: %w", responseID, errs.ErrNotFound)
	}
	return nil
}

// ConversationHistory returns up to limit most recent requests of a
// conversation, oldest first, with their responses.
func (s *Store) ConversationHistory(ctx context.Context, conversationID string, limit int) ([]model.Request, error) {
	tx := s.db.WithContext(ctx).
		Preload("Responses", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var items []model.Request
	if err := tx.Find(&items).Error; err != nil {
		return nil, mapError(err, "conversation", conversationID)
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}
