package queries

import (
	"context"
	"time"

	"github.com/OldStager01/farm-bi/pkg/database"
	"github.com/OldStager01/farm-bi/pkg/models"
)

type PeriodLock struct {
	Year     int             `json:"year" db:"year"`
	Month    int             `json:"month" db:"month"`
	Domain   string          `json:"domain" db:"domain"`
	LockedBy string          `json:"locked_by" db:"locked_by"`
	LockedAt models.UnixTime `json:"locked_at" db:"locked_at"`
}

// PeriodLockRepository freezes operational domains for closed periods.
type PeriodLockRepository struct {
	db  *database.DB
	now func() time.Time
}

func NewPeriodLockRepository(db *database.DB) *PeriodLockRepository {
	return &PeriodLockRepository{db: db, now: time.Now}
}

// Lock is idempotent: locking an already locked domain keeps the original
// actor and time.
func (r *PeriodLockRepository) Lock(ctx context.Context, p models.Period, domain, actor string) error {
	lock := PeriodLock{
		Year:     p.Year,
		Month:    p.Month,
		Domain:   domain,
		LockedBy: actor,
		LockedAt: models.NewUnixTime(r.now()),
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO period_locks (year, month, domain, locked_by, locked_at)
		VALUES (:year, :month, :domain, :locked_by, :locked_at)
		ON CONFLICT (year, month, domain) DO NOTHING`, lock)
	return models.Persistence("lock period "+domain, err)
}

func (r *PeriodLockRepository) IsLocked(ctx context.Context, p models.Period, domain string) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`
		SELECT COUNT(*) FROM period_locks WHERE year = ? AND month = ? AND domain = ?`),
		p.Year, p.Month, domain)
	if err != nil {
		return false, models.Persistence("check period lock", err)
	}
	return n > 0, nil
}

func (r *PeriodLockRepository) List(ctx context.Context, p models.Period) ([]PeriodLock, error) {
	locks := []PeriodLock{}
	err := r.db.SelectContext(ctx, &locks, r.db.Rebind(`
		SELECT year, month, domain, locked_by, locked_at
		FROM period_locks
		WHERE year = ? AND month = ?
		ORDER BY domain`), p.Year, p.Month)
	if err != nil {
		return nil, models.Persistence("list period locks", err)
	}
	return locks, nil
}
