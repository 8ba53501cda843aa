package queries

import (
	"context"
	"time"

	"github.com/OldStager01/farm-bi/pkg/database"
	"github.com/OldStager01/farm-bi/pkg/models"
)

// OperationalRepository reads the farm's operational tables. It aggregates
// the monthly summary for a close and feeds the alert rules.
type OperationalRepository struct {
	db *database.DB
}

func NewOperationalRepository(db *database.DB) *OperationalRepository {
	return &OperationalRepository{db: db}
}

const activeAtDate = `fecha_ingreso <= ?
	AND (fecha_salida IS NULL OR fecha_salida > ?)
	AND (fecha_muerte IS NULL OR fecha_muerte > ?)`

type outputTotals struct {
	Liters float64 `db:"liters"`
	Cows   int     `db:"cows"`
	Days   int     `db:"days"`
}

type serviceTotals struct {
	Total    int `db:"total"`
	Positive int `db:"positive"`
}

type incomeTotals struct {
	Total   float64 `db:"total"`
	Animals float64 `db:"animals"`
	Milk    float64 `db:"milk"`
}

// Summary aggregates one calendar month into an unsaved period summary.
func (r *OperationalRepository) Summary(ctx context.Context, p models.Period) (*models.PeriodSummary, error) {
	start := models.FormatDate(p.Start())
	end := models.FormatDate(p.End())
	dayBefore := models.FormatDate(p.Start().AddDate(0, 0, -1))

	s := &models.PeriodSummary{Year: p.Year, Month: p.Month}
	var err error

	if s.ActiveAnimals, err = r.count(ctx, "active animals",
		`SELECT COUNT(*) FROM animal WHERE `+activeAtDate, end, end, end); err != nil {
		return nil, err
	}
	if s.OpeningAnimals, err = r.count(ctx, "opening animals",
		`SELECT COUNT(*) FROM animal WHERE `+activeAtDate, dayBefore, dayBefore, dayBefore); err != nil {
		return nil, err
	}
	if s.PregnantAnimals, err = r.count(ctx, "pregnant animals",
		`SELECT COUNT(*) FROM animal WHERE gestante = 1 AND `+activeAtDate, end, end, end); err != nil {
		return nil, err
	}
	if s.AnimalEntries, err = r.count(ctx, "animal entries",
		`SELECT COUNT(*) FROM animal WHERE fecha_ingreso >= ? AND fecha_ingreso <= ?`, start, end); err != nil {
		return nil, err
	}
	if s.AnimalExits, err = r.count(ctx, "animal exits",
		`SELECT COUNT(*) FROM animal WHERE fecha_salida >= ? AND fecha_salida <= ?`, start, end); err != nil {
		return nil, err
	}
	if s.Deaths, err = r.deaths(ctx, start, end); err != nil {
		return nil, err
	}

	output, err := r.output(ctx, start, end)
	if err != nil {
		return nil, err
	}
	s.TotalLiters = output.Liters
	s.ProductiveCows = output.Cows
	if output.Days > 0 {
		s.AvgLitersPerDay = output.Liters / float64(output.Days)
	}
	if output.Cows > 0 {
		s.AvgLitersPerCow = output.Liters / float64(output.Cows)
	}

	services, err := r.services(ctx, start, end)
	if err != nil {
		return nil, err
	}
	s.Services = services.Total
	if services.Total > 0 {
		s.PregnancyRate = float64(services.Positive) / float64(services.Total) * 100
	}
	if s.Births, err = r.count(ctx, "births",
		`SELECT COUNT(*) FROM parto WHERE fecha >= ? AND fecha <= ?`, start, end); err != nil {
		return nil, err
	}

	var income incomeTotals
	if err := r.db.GetContext(ctx, &income, r.db.Rebind(`
		SELECT
			COALESCE(SUM(total), 0) AS total,
			COALESCE(SUM(CASE WHEN tipo = 'animal' THEN total ELSE 0 END), 0) AS animals,
			COALESCE(SUM(CASE WHEN tipo = 'leche' THEN total ELSE 0 END), 0) AS milk
		FROM venta
		WHERE fecha >= ? AND fecha <= ?`), start, end); err != nil {
		return nil, models.Persistence("sum income", err)
	}
	s.IncomeTotal = income.Total
	s.IncomeAnimals = income.Animals
	s.IncomeMilk = income.Milk

	if s.CostSupplies, err = r.sum(ctx, "sum expenses",
		`SELECT COALESCE(SUM(monto), 0) FROM gasto WHERE fecha >= ? AND fecha <= ?`, start, end); err != nil {
		return nil, err
	}
	if s.CostPayroll, err = r.sum(ctx, "sum payroll",
		`SELECT COALESCE(SUM(total_pagado), 0) FROM pago_nomina WHERE fecha_pago >= ? AND fecha_pago <= ?`, start, end); err != nil {
		return nil, err
	}
	if s.CostTreatments, err = r.sum(ctx, "sum treatments",
		`SELECT COALESCE(SUM(costo), 0) FROM tratamiento WHERE fecha >= ? AND fecha <= ?`, start, end); err != nil {
		return nil, err
	}
	s.CostTotal = s.CostSupplies + s.CostPayroll + s.CostTreatments

	s.Finalize()
	return s, nil
}

type categoryTotal struct {
	Category string  `db:"categoria"`
	Total    float64 `db:"total"`
}

// ExpensesByCategory sums expenses per category over [from, to].
func (r *OperationalRepository) ExpensesByCategory(ctx context.Context, from, to time.Time) (map[string]float64, error) {
	var rows []categoryTotal
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT categoria, SUM(monto) AS total
		FROM gasto
		WHERE fecha >= ? AND fecha <= ? AND categoria IS NOT NULL
		GROUP BY categoria`), models.FormatDate(from), models.FormatDate(to))
	if err != nil {
		return nil, models.Persistence("expenses by category", err)
	}
	totals := make(map[string]float64, len(rows))
	for _, row := range rows {
		totals[row.Category] = row.Total
	}
	return totals, nil
}

// DailyOutputAverage is the mean of per-day liter totals over the days in
// [from, to] that have records.
func (r *OperationalRepository) DailyOutputAverage(ctx context.Context, from, to time.Time) (float64, int, error) {
	output, err := r.output(ctx, models.FormatDate(from), models.FormatDate(to))
	if err != nil {
		return 0, 0, err
	}
	if output.Days == 0 {
		return 0, 0, nil
	}
	return output.Liters / float64(output.Days), output.Days, nil
}

// PopulationAt counts animals present on the given day.
func (r *OperationalRepository) PopulationAt(ctx context.Context, t time.Time) (int, error) {
	day := models.FormatDate(t)
	return r.count(ctx, "population", `SELECT COUNT(*) FROM animal WHERE `+activeAtDate, day, day, day)
}

func (r *OperationalRepository) DeathsBetween(ctx context.Context, from, to time.Time) (int, error) {
	return r.deaths(ctx, models.FormatDate(from), models.FormatDate(to))
}

func (r *OperationalRepository) ServiceOutcomes(ctx context.Context, from, to time.Time) (int, int, error) {
	totals, err := r.services(ctx, models.FormatDate(from), models.FormatDate(to))
	if err != nil {
		return 0, 0, err
	}
	return totals.Total, totals.Positive, nil
}

// AnimalsWithoutTreatmentSince lists codes of active animals with no
// treatment on or after cutoff.
func (r *OperationalRepository) AnimalsWithoutTreatmentSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	codes := []string{}
	err := r.db.SelectContext(ctx, &codes, r.db.Rebind(`
		SELECT a.codigo
		FROM animal a
		WHERE a.estado = 'Activo'
		  AND a.fecha_salida IS NULL AND a.fecha_muerte IS NULL
		  AND NOT EXISTS (
			SELECT 1 FROM tratamiento t
			WHERE t.animal_id = a.id AND t.fecha >= ?
		  )
		ORDER BY a.codigo`), models.FormatDate(cutoff))
	if err != nil {
		return nil, models.Persistence("animals without treatment", err)
	}
	return codes, nil
}

// EmployeesWithoutPaymentSince lists codes of active employees with no
// payroll payment on or after cutoff.
func (r *OperationalRepository) EmployeesWithoutPaymentSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	codes := []string{}
	err := r.db.SelectContext(ctx, &codes, r.db.Rebind(`
		SELECT e.codigo
		FROM empleado e
		WHERE (e.estado_actual = 'Activo' OR e.estado_actual IS NULL)
		  AND NOT EXISTS (
			SELECT 1 FROM pago_nomina p
			WHERE p.codigo_empleado = e.codigo AND p.fecha_pago >= ?
		  )
		ORDER BY e.codigo`), models.FormatDate(cutoff))
	if err != nil {
		return nil, models.Persistence("employees without payment", err)
	}
	return codes, nil
}

// RecordCoverage counts production days, expense and sale records in
// [from, to], plus records carrying negative liters or amounts.
func (r *OperationalRepository) RecordCoverage(ctx context.Context, from, to time.Time) (models.RecordCoverage, error) {
	start, end := models.FormatDate(from), models.FormatDate(to)
	var c models.RecordCoverage
	err := r.db.GetContext(ctx, &c, r.db.Rebind(`
		SELECT
			(SELECT COUNT(DISTINCT fecha) FROM produccion_leche WHERE fecha >= ? AND fecha <= ?) AS production_days,
			(SELECT COUNT(*) FROM gasto WHERE fecha >= ? AND fecha <= ?) AS expenses,
			(SELECT COUNT(*) FROM venta WHERE fecha >= ? AND fecha <= ?) AS sales,
			(SELECT COUNT(*) FROM produccion_leche WHERE fecha >= ? AND fecha <= ? AND cantidad_litros < 0)
			+ (SELECT COUNT(*) FROM gasto WHERE fecha >= ? AND fecha <= ? AND monto < 0)
			+ (SELECT COUNT(*) FROM venta WHERE fecha >= ? AND fecha <= ? AND total < 0) AS invalid`),
		start, end, start, end, start, end, start, end, start, end, start, end)
	if err != nil {
		return models.RecordCoverage{}, models.Persistence("count record coverage", err)
	}
	return c, nil
}

func (r *OperationalRepository) deaths(ctx context.Context, start, end string) (int, error) {
	return r.count(ctx, "deaths",
		`SELECT COUNT(*) FROM animal WHERE fecha_muerte >= ? AND fecha_muerte <= ?`, start, end)
}

func (r *OperationalRepository) output(ctx context.Context, start, end string) (outputTotals, error) {
	var totals outputTotals
	err := r.db.GetContext(ctx, &totals, r.db.Rebind(`
		SELECT
			COALESCE(SUM(cantidad_litros), 0) AS liters,
			COUNT(DISTINCT animal_id) AS cows,
			COUNT(DISTINCT fecha) AS days
		FROM produccion_leche
		WHERE fecha >= ? AND fecha <= ?`), start, end)
	if err != nil {
		return outputTotals{}, models.Persistence("sum output", err)
	}
	return totals, nil
}

func (r *OperationalRepository) services(ctx context.Context, start, end string) (serviceTotals, error) {
	var totals serviceTotals
	err := r.db.GetContext(ctx, &totals, r.db.Rebind(`
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN resultado = 'Positivo' THEN 1 ELSE 0 END), 0) AS positive
		FROM servicio
		WHERE fecha >= ? AND fecha <= ?`), start, end)
	if err != nil {
		return serviceTotals{}, models.Persistence("count services", err)
	}
	return totals, nil
}

func (r *OperationalRepository) count(ctx context.Context, op, query string, args ...interface{}) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(query), args...); err != nil {
		return 0, models.Persistence("count "+op, err)
	}
	return n, nil
}

func (r *OperationalRepository) sum(ctx context.Context, op, query string, args ...interface{}) (float64, error) {
	var v float64
	if err := r.db.GetContext(ctx, &v, r.db.Rebind(query), args...); err != nil {
		return 0, models.Persistence(op, err)
	}
	return v, nil
}
