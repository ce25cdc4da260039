package store

import (
	"context"

	"github.com/efuayankey/aimes-sub001/internal/model"
	"gorm.io/gorm"
)

// ConversationCond is the expected state of a conversation for a
// conditional update. Empty Status matches any conversation that is not closed.
type ConversationCond struct {
	Status      model.ConversationStatus
	CounselorID string
}

func (s *Store) CreateConversation(ctx context.Context, c *model.Conversation) error {
	return mapError(s.db.WithContext(ctx).Create(c).Error, "conversation", c.ID)
}

func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var c model.Conversation
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, mapError(err, "conversation", id)
	}
	return &c, nil
}

func (s *Store) ListConversations(ctx context.Context, status model.ConversationStatus, limit int) ([]model.Conversation, error) {
	tx := s.db.WithContext(ctx).Where("status = ?", status).Order("created_at ASC").Order("id ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var items []model.Conversation
	if err := tx.Find(&items).Error; err != nil {
		return nil, mapError(err, "conversations", "")
	}
	return items, nil
}

// TransitionConversation applies changes only if the conversation matches cond.
func (s *Store) TransitionConversation(ctx context.Context, id string, cond ConversationCond, changes map[string]any) (*model.Conversation, error) {
	var out model.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&model.Conversation{}).Where("id = ?", id)
		if cond.Status != "" {
			q = q.Where("status = ?", cond.Status)
		} else {
			q = q.Where("status <> ?", model.ConversationStatusClosed)
		}
		if cond.CounselorID != "" {
			q = q.Where("counselor_id = ?", cond.CounselorID)
		}
		res := q.Updates(changes)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConditionFailed
		}
		return tx.First(&out, "id = ?", id).Error
	})
	if err != nil {
		return nil, mapError(err, "conversation", id)
	}
	return &out, nil
}
