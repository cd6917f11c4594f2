package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/ads-dashboard/internal/ai"
	"github.com/suPer8Hu/ads-dashboard/internal/apperr"
	"github.com/suPer8Hu/ads-dashboard/internal/chat"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func toMessageRow(sessionID string, m ai.Message) (messageRow, error) {
	content, err := json.Marshal(m.Content)
	if err != nil {
		return messageRow{}, fmt.Errorf("encode content: %w", err)
	}
	row := messageRow{
		SessionID:  sessionID,
		Role:       string(m.Role),
		Content:    datatypes.JSON(content),
		ToolCallID: m.ToolCallID,
		WithImage:  m.WithImage,
	}
	if len(m.ToolCalls) > 0 {
		calls, err := json.Marshal(m.ToolCalls)
		if err != nil {
			return messageRow{}, fmt.Errorf("encode tool calls: %w", err)
		}
		row.ToolCalls = datatypes.JSON(calls)
	}
	return row, nil
}

func (r messageRow) toMessage() (ai.Message, error) {
	m := ai.Message{
		Role:       ai.Role(r.Role),
		ToolCallID: r.ToolCallID,
		WithImage:  r.WithImage,
	}
	if len(r.Content) > 0 {
		if err := json.Unmarshal(r.Content, &m.Content); err != nil {
			return ai.Message{}, fmt.Errorf("message %d content: %w", r.ID, err)
		}
	}
	if len(r.ToolCalls) > 0 {
		if err := json.Unmarshal(r.ToolCalls, &m.ToolCalls); err != nil {
			return ai.Message{}, fmt.Errorf("message %d tool calls: %w", r.ID, err)
		}
	}
	return m, nil
}

func (r sessionRow) summary() chat.SessionSummary {
	return chat.SessionSummary{
		ID:          r.SessionID,
		NumMessages: r.NumMessages,
		Rating:      r.Rating,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// GetSession loads a session with its messages in append order.
func (g *Gateway) GetSession(ctx context.Context, id string) (*chat.Session, error) {
	const op = "docstore.get_session"

	var s sessionRow
	if err := g.db.WithContext(ctx).Where("session_id = ?", id).First(&s).Error; err != nil {
		return nil, notFoundOr(op, err)
	}

	var rows []messageRow
	if err := g.db.WithContext(ctx).
		Where("session_id = ?", id).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, apperr.Persistence(op, err)
	}

	msgs := make([]ai.Message, 0, len(rows))
	for _, r := range rows {
		m, err := r.toMessage()
		if err != nil {
			return nil, apperr.Persistence(op, err)
		}
		msgs = append(msgs, m)
	}

	sum := s.summary()
	return &chat.Session{
		ID:          sum.ID,
		Messages:    msgs,
		NumMessages: sum.NumMessages,
		Rating:      sum.Rating,
		CreatedAt:   sum.CreatedAt,
		UpdatedAt:   sum.UpdatedAt,
	}, nil
}

// AppendSessionMessage stores m at the end of the session, creating the session first
// if this is its first message.
func (g *Gateway) AppendSessionMessage(ctx context.Context, id string, m ai.Message) error {
	const op = "docstore.append_session_message"

	row, err := toMessageRow(id, m)
	if err != nil {
		return apperr.Persistence(op, err)
	}

	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		var s sessionRow
		err := tx.Where("session_id = ?", id).First(&s).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s = sessionRow{SessionID: id, CreatedAt: now, UpdatedAt: now}
			err = tx.Create(&s).Error
		}
		if err != nil {
			return err
		}

		row.CreatedAt = now
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Model(&sessionRow{}).
			Where("id = ?", s.ID).
			Updates(map[string]any{
				"num_messages": gorm.Expr("num_messages + ?", 1),
				"updated_at":   now,
			}).Error
	})
	if err != nil {
		return apperr.Persistence(op, err)
	}
	return nil
}

// SetSessionRating stores a rating without touching the session's last activity time.
func (g *Gateway) SetSessionRating(ctx context.Context, id string, rating int) error {
	const op = "docstore.set_session_rating"

	var s sessionRow
	if err := g.db.WithContext(ctx).Where("session_id = ?", id).First(&s).Error; err != nil {
		return notFoundOr(op, err)
	}
	if err := g.db.WithContext(ctx).Model(&s).UpdateColumn("rating", rating).Error; err != nil {
		return apperr.Persistence(op, err)
	}
	return nil
}

// FetchSessionHistoryPage lists sessions by last activity, newest first.
func (g *Gateway) FetchSessionHistoryPage(ctx context.Context, skip, limit int) ([]chat.SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []sessionRow
	if err := g.db.WithContext(ctx).
		Order("updated_at DESC").
		Order("id DESC").
		Offset(skip).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, apperr.Persistence("docstore.fetch_session_history_page", err)
	}
	out := make([]chat.SessionSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.summary())
	}
	return out, nil
}
