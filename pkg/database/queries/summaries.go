package queries

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/OldStager01/farm-bi/pkg/database"
	"github.com/OldStager01/farm-bi/pkg/models"
)

const summaryColumns = `id, year, month, active_animals, pregnant_animals, animal_entries,
	animal_exits, deaths, opening_animals, total_liters, avg_liters_per_day,
	avg_liters_per_cow, productive_cows, services, births, pregnancy_rate,
	income_total, income_animals, income_milk, cost_total, cost_payroll,
	cost_treatments, cost_supplies, gross_margin, gross_margin_pct, notes,
	closed_by, closed_at`

// SummaryRepository stores period summaries and their KPI rows. A summary
// row existing for a period is what marks it closed.
type SummaryRepository struct {
	db *database.DB
}

func NewSummaryRepository(db *database.DB) *SummaryRepository {
	return &SummaryRepository{db: db}
}

// Save inserts the summary and its KPI rows in one transaction. It returns
// models.ErrAlreadyClosed when a summary for the period already exists.
func (r *SummaryRepository) Save(ctx context.Context, s *models.PeriodSummary, kpis []models.KPIValue) error {
	err := r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		rows, err := sqlx.NamedQueryContext(ctx, tx, `
			INSERT INTO period_summaries
				(year, month, active_animals, pregnant_animals, animal_entries,
				 animal_exits, deaths, opening_animals, total_liters, avg_liters_per_day,
				 avg_liters_per_cow, productive_cows, services, births, pregnancy_rate,
				 income_total, income_animals, income_milk, cost_total, cost_payroll,
				 cost_treatments, cost_supplies, gross_margin, gross_margin_pct, notes,
				 closed_by, closed_at)
			VALUES
				(:year, :month, :active_animals, :pregnant_animals, :animal_entries,
				 :animal_exits, :deaths, :opening_animals, :total_liters, :avg_liters_per_day,
				 :avg_liters_per_cow, :productive_cows, :services, :births, :pregnancy_rate,
				 :income_total, :income_animals, :income_milk, :cost_total, :cost_payroll,
				 :cost_treatments, :cost_supplies, :gross_margin, :gross_margin_pct, :notes,
				 :closed_by, :closed_at)
			ON CONFLICT (year, month) DO NOTHING
			RETURNING id`, s)
		if err != nil {
			return err
		}
		inserted := rows.Next()
		if inserted {
			err = rows.Scan(&s.ID)
		}
		rows.Close()
		if err != nil {
			return err
		}
		if !inserted {
			return models.ErrAlreadyClosed
		}

		for i := range kpis {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO kpi_values (year, month, name, value, category)
				VALUES (:year, :month, :name, :value, :category)
				ON CONFLICT (year, month, name) DO UPDATE
				SET value = excluded.value, category = excluded.category`, kpis[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, models.ErrAlreadyClosed) {
		return err
	}
	return models.Persistence("save period summary", err)
}

func (r *SummaryRepository) Get(ctx context.Context, p models.Period) (*models.PeriodSummary, error) {
	var s models.PeriodSummary
	err := r.db.GetContext(ctx, &s, r.db.Rebind(`
		SELECT `+summaryColumns+`
		FROM period_summaries
		WHERE year = ? AND month = ?`), p.Year, p.Month)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, models.Persistence("get period summary", err)
	}
	return &s, nil
}

func (r *SummaryRepository) Exists(ctx context.Context, p models.Period) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`
		SELECT COUNT(*) FROM period_summaries WHERE year = ? AND month = ?`), p.Year, p.Month)
	if err != nil {
		return false, models.Persistence("check period summary", err)
	}
	return n > 0, nil
}

// List returns closed periods newest first; year 0 lists every year.
func (r *SummaryRepository) List(ctx context.Context, year int) ([]models.PeriodSummary, error) {
	query := `SELECT ` + summaryColumns + ` FROM period_summaries`
	var args []interface{}
	if year > 0 {
		query += ` WHERE year = ?`
		args = append(args, year)
	}
	query += ` ORDER BY year DESC, month DESC`

	summaries := []models.PeriodSummary{}
	if err := r.db.SelectContext(ctx, &summaries, r.db.Rebind(query), args...); err != nil {
		return nil, models.Persistence("list period summaries", err)
	}
	return summaries, nil
}

// KPIs returns the stored KPI rows of a period. An unknown period yields an
// empty slice.
func (r *SummaryRepository) KPIs(ctx context.Context, p models.Period) ([]models.KPIValue, error) {
	kpis := []models.KPIValue{}
	err := r.db.SelectContext(ctx, &kpis, r.db.Rebind(`
		SELECT year, month, name, value, category
		FROM kpi_values
		WHERE year = ? AND month = ?
		ORDER BY name`), p.Year, p.Month)
	if err != nil {
		return nil, models.Persistence("get kpi values", err)
	}
	return kpis, nil
}
