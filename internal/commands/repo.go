package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("command not found")
	// ErrChanged means a guarded update found the row in another state.
	ErrChanged = errors.New("command changed concurrently")
)

// Repo is the durable command store. It holds no scheduling logic.
type Repo struct {
	DB *gorm.DB
}

// StatusUpdate is applied to one row atomically.
type StatusUpdate struct {
	Status           string
	UpdatedAt        time.Time
	ExpectedFinishAt *time.Time // nil clears the column
	Attempt          int
	LastError        *string

	// IfStatus, when set, applies the update only while the row still has
	// this status and IfAttempt as its attempt.
	IfStatus  string
	IfAttempt int
}

type ListFilter struct {
	Status string
	Limit  int
}

// Insert appends a new pending row and returns its id. Callers cannot
// choose the id, status or attempt of a new row.
func (r *Repo) Insert(ctx context.Context, cmd *Command) (uint64, error) {
	now := time.Now().UTC()
	row := Command{
		ActionType:        cmd.ActionType,
		Parameters:        cmd.Parameters,
		ResultDestination: cmd.ResultDestination,
		Status:            StatusPending,
		SubmittedAt:       cmd.SubmittedAt,
		LastUpdatedAt:     cmd.LastUpdatedAt,
	}
	if row.Parameters == nil {
		row.Parameters = datatypes.JSONMap{}
	}
	if row.SubmittedAt.IsZero() {
		row.SubmittedAt = now
	}
	if row.LastUpdatedAt.IsZero() {
		row.LastUpdatedAt = row.SubmittedAt
	}
	if err := r.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("insert command: %w", err)
	}
	*cmd = row
	return row.ID, nil
}

// Pending returns pending rows oldest first; id breaks submitted_at ties.
func (r *Repo) Pending(ctx context.Context) ([]Command, error) {
	var out []Command
	err := r.DB.WithContext(ctx).
		Where("status = ?", StatusPending).
		Order("submitted_at asc").
		Order("id asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list pending commands: %w", err)
	}
	return out, nil
}

func (r *Repo) Get(ctx context.Context, id uint64) (*Command, error) {
	var c Command
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get command %d: %w", id, err)
	}
	return &c, nil
}

func (r *Repo) UpdateStatus(ctx context.Context, id uint64, u StatusUpdate) error {
	q := r.DB.WithContext(ctx).Model(&Command{}).Where("id = ?", id)
	if u.IfStatus != "" {
		q = q.Where("status = ? AND attempt = ?", u.IfStatus, u.IfAttempt)
	}
	res := q.Updates(map[string]any{
		"status":             u.Status,
		"last_updated_at":    u.UpdatedAt,
		"expected_finish_at": u.ExpectedFinishAt,
		"attempt":            u.Attempt,
		"last_error":         u.LastError,
	})
	if res.Error != nil {
		return fmt.Errorf("update command %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if u.IfStatus == "" {
			return ErrNotFound
		}
		// tell a vanished row from one that moved on
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrChanged
	}
	return nil
}

// RunningOverdue returns running rows whose expected finish is before now.
func (r *Repo) RunningOverdue(ctx context.Context, now time.Time) ([]Command, error) {
	var out []Command
	err := r.DB.WithContext(ctx).
		Where("status = ? AND expected_finish_at IS NOT NULL AND expected_finish_at < ?", StatusRunning, now.UTC()).
		Order("expected_finish_at asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list overdue commands: %w", err)
	}
	return out, nil
}

func (r *Repo) Running(ctx context.Context) ([]Command, error) {
	var out []Command
	err := r.DB.WithContext(ctx).
		Where("status = ?", StatusRunning).
		Order("id asc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list running commands: %w", err)
	}
	return out, nil
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]Command, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := r.DB.WithContext(ctx).Model(&Command{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var out []Command
	if err := q.Order("id desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	return out, nil
}

// ClearAll drops every row. Ids are not reused afterwards.
func (r *Repo) ClearAll(ctx context.Context) error {
	if err := r.DB.WithContext(ctx).Exec(`delete from commands`).Error; err != nil {
		return fmt.Errorf("clear commands: %w", err)
	}
	return nil
}
