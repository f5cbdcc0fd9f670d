package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"doni-bot/internal/history"
	"doni-bot/internal/model"
)

// TurnRepository appends and reads conversation turns.
type TurnRepository struct {
	db *gorm.DB
}

func NewTurnRepository(db *gorm.DB) *TurnRepository {
	return &TurnRepository{db: db}
}

func (r *TurnRepository) Append(ctx context.Context, userID int64, role model.Role, text string) (*model.Turn, error) {
	turn := model.Turn{
		UserID:    userID,
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&turn).Error; err != nil {
		return nil, fmt.Errorf("append %s turn for %d: %w", role, userID, err)
	}
	return &turn, nil
}

// Recent returns up to limit latest turns of the user, oldest first.
func (r *TurnRepository) Recent(ctx context.Context, userID int64, limit int) ([]model.Turn, error) {
	if limit <= 0 {
		return []model.Turn{}, nil
	}
	var turns []model.Turn
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("recent turns for %d: %w", userID, err)
	}
	return history.Window(turns, limit), nil
}

func (r *TurnRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Turn{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	return n, nil
}
