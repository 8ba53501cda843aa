package queries

import (
	"context"
	"database/sql"
	"errors"

	"github.com/OldStager01/farm-bi/pkg/database"
	"github.com/OldStager01/farm-bi/pkg/models"
)

const snapshotColumns = `id, year, month, period_key, generated_at, generated_by,
	content_hash, version, schema_version, payload_json`

type SnapshotRepository struct {
	db *database.DB
}

func NewSnapshotRepository(db *database.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Upsert writes the snapshot of a period, replacing any previous one and
// bumping its version. ID and Version are filled from the stored row.
func (r *SnapshotRepository) Upsert(ctx context.Context, s *models.Snapshot) error {
	s.PeriodKey = s.Period().Key()
	rows, err := r.db.NamedQueryContext(ctx, `
		INSERT INTO bi_snapshots
			(year, month, period_key, generated_at, generated_by, content_hash,
			 version, schema_version, payload_json)
		VALUES
			(:year, :month, :period_key, :generated_at, :generated_by, :content_hash,
			 1, :schema_version, :payload_json)
		ON CONFLICT (year, month) DO UPDATE SET
			generated_at = excluded.generated_at,
			generated_by = excluded.generated_by,
			content_hash = excluded.content_hash,
			schema_version = excluded.schema_version,
			payload_json = excluded.payload_json,
			version = bi_snapshots.version + 1
		RETURNING id, version`, s)
	if err != nil {
		return models.Persistence("upsert snapshot", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.Persistence("upsert snapshot", err)
		}
		return models.Persistence("upsert snapshot", errors.New("no row returned"))
	}
	if err := rows.Scan(&s.ID, &s.Version); err != nil {
		return models.Persistence("upsert snapshot", err)
	}
	return nil
}

// Get returns the stored row without decoding its payload.
func (r *SnapshotRepository) Get(ctx context.Context, p models.Period) (*models.Snapshot, error) {
	var s models.Snapshot
	err := r.db.GetContext(ctx, &s, r.db.Rebind(`
		SELECT `+snapshotColumns+`
		FROM bi_snapshots
		WHERE year = ? AND month = ?`), p.Year, p.Month)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, models.Persistence("get snapshot", err)
	}
	return &s, nil
}

// Range returns the snapshots with start <= period <= end, oldest first.
func (r *SnapshotRepository) Range(ctx context.Context, start, end models.Period) ([]models.Snapshot, error) {
	snapshots := []models.Snapshot{}
	err := r.db.SelectContext(ctx, &snapshots, r.db.Rebind(`
		SELECT `+snapshotColumns+`
		FROM bi_snapshots
		WHERE period_key >= ? AND period_key <= ?
		ORDER BY period_key ASC`), start.Key(), end.Key())
	if err != nil {
		return nil, models.Persistence("list snapshots", err)
	}
	return snapshots, nil
}

// DeleteBefore removes snapshots of periods strictly before cutoff.
func (r *SnapshotRepository) DeleteBefore(ctx context.Context, cutoff models.Period) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		DELETE FROM bi_snapshots WHERE period_key < ?`), cutoff.Key())
	if err != nil {
		return 0, models.Persistence("prune snapshots", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, models.Persistence("prune snapshots", err)
	}
	return n, nil
}
