package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"vehicle-orders/internal/domain"
	"vehicle-orders/internal/repository/activity_repo"
)

type activityRepository struct{}

func NewActivityRepository() activity_repo.ActivityRepository {
	return &activityRepository{}
}

func (r *activityRepository) CreateTx(ctx context.Context, querier domain.Querier, a *domain.AdminActivity) error {
	details := a.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}
	query := `INSERT INTO admin_activity (id, actor_id, action, subject_id, details, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := querier.ExecContext(ctx, query, a.ID, a.ActorID, a.Action, a.SubjectID, []byte(details), a.CreatedAt); err != nil {
		return fmt.Errorf("failed to record admin activity %s: %w", a.Action, err)
	}
	return nil
}
