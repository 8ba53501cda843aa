package queries

import (
	"context"
	"time"

	"github.com/OldStager01/farm-bi/pkg/database"
	"github.com/OldStager01/farm-bi/pkg/models"
)

const alertColumns = `id, type, priority, title, description, entity_type, entity_id,
	current_value, reference_value, detected_at, status`

type AlertRepository struct {
	db *database.DB
}

func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Insert(ctx context.Context, a *models.Alert) error {
	rows, err := r.db.NamedQueryContext(ctx, `
		INSERT INTO alerts
			(type, priority, title, description, entity_type, entity_id,
			 current_value, reference_value, detected_at, status)
		VALUES
			(:type, :priority, :title, :description, :entity_type, :entity_id,
			 :current_value, :reference_value, :detected_at, :status)
		RETURNING id`, a)
	if err != nil {
		return models.Persistence("insert alert", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&a.ID); err != nil {
			return models.Persistence("insert alert", err)
		}
	}
	return models.Persistence("insert alert", rows.Err())
}

// CountActiveSimilar counts active alerts with the same type and entity
// detected strictly inside (from, to).
func (r *AlertRepository) CountActiveSimilar(ctx context.Context, alertType, entityType, entityID string, from, to time.Time) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`
		SELECT COUNT(*)
		FROM alerts
		WHERE type = ? AND entity_type = ? AND entity_id = ?
		  AND status = ?
		  AND detected_at > ? AND detected_at < ?`),
		alertType, entityType, entityID, models.AlertActive, from.Unix(), to.Unix())
	if err != nil {
		return 0, models.Persistence("find similar alerts", err)
	}
	return n, nil
}

// Active lists active alerts, most urgent and newest first. An empty
// priority lists all of them.
func (r *AlertRepository) Active(ctx context.Context, priority models.AlertPriority, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE status = ?`
	args := []interface{}{models.AlertActive}
	if priority != "" {
		query += ` AND priority = ?`
		args = append(args, priority)
	}
	query += ` ORDER BY
		CASE priority WHEN 'alta' THEN 3 WHEN 'media' THEN 2 WHEN 'baja' THEN 1 ELSE 0 END DESC,
		detected_at DESC, id DESC
		LIMIT ?`
	args = append(args, limit)

	alerts := []models.Alert{}
	if err := r.db.SelectContext(ctx, &alerts, r.db.Rebind(query), args...); err != nil {
		return nil, models.Persistence("list active alerts", err)
	}
	return alerts, nil
}

// DetectedBetween lists active alerts detected in [from, to].
func (r *AlertRepository) DetectedBetween(ctx context.Context, from, to time.Time) ([]models.Alert, error) {
	alerts := []models.Alert{}
	err := r.db.SelectContext(ctx, &alerts, r.db.Rebind(`
		SELECT `+alertColumns+`
		FROM alerts
		WHERE status = ? AND detected_at >= ? AND detected_at <= ?
		ORDER BY detected_at DESC, id DESC`),
		models.AlertActive, from.Unix(), to.Unix())
	if err != nil {
		return nil, models.Persistence("list alerts", err)
	}
	return alerts, nil
}

// Resolve marks an alert resolved. It returns models.ErrNotFound when no
// active alert has the id.
func (r *AlertRepository) Resolve(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE alerts SET status = ? WHERE id = ? AND status = ?`),
		models.AlertResolved, id, models.AlertActive)
	if err != nil {
		return models.Persistence("resolve alert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Persistence("resolve alert", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
