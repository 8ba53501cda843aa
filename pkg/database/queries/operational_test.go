package queries_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/farm-bi/internal/testutil"
	"github.com/OldStager01/farm-bi/pkg/database"
	"github.com/OldStager01/farm-bi/pkg/database/queries"
	"github.com/OldStager01/farm-bi/pkg/models"
)

func seedFarm(t *testing.T, db *database.DB) {
	t.Helper()
	// Four animals on file: two present all month, one bought mid-month,
	// one that died on the 20th.
	testutil.Exec(t, db, `INSERT INTO animal (id, codigo, estado, gestante, fecha_ingreso) VALUES (1, 'A1', 'Activo', 1, '2024-01-10')`)
	testutil.Exec(t, db, `INSERT INTO animal (id, codigo, estado, gestante, fecha_ingreso) VALUES (2, 'A2', 'Activo', 0, '2024-03-01')`)
	testutil.Exec(t, db, `INSERT INTO animal (id, codigo, estado, gestante, fecha_ingreso) VALUES (3, 'A3', 'Activo', 0, '2025-01-15')`)
	testutil.Exec(t, db, `INSERT INTO animal (id, codigo, estado, gestante, fecha_ingreso, fecha_muerte) VALUES (4, 'A4', 'Muerto', 0, '2023-05-01', '2025-01-20')`)

	testutil.Exec(t, db, `INSERT INTO produccion_leche (animal_id, fecha, cantidad_litros) VALUES (1, '2025-01-02', 20), (2, '2025-01-02', 10), (1, '2025-01-03', 30)`)
	testutil.Exec(t, db, `INSERT INTO produccion_leche (animal_id, fecha, cantidad_litros) VALUES (1, '2024-12-31', 99)`)

	testutil.Exec(t, db, `INSERT INTO servicio (animal_id, fecha, resultado) VALUES (1, '2025-01-05', 'Positivo'), (2, '2025-01-06', 'Negativo'), (2, '2025-01-25', 'Positivo'), (3, '2025-01-28', 'Pendiente')`)
	testutil.Exec(t, db, `INSERT INTO parto (animal_id, fecha) VALUES (1, '2025-01-12')`)

	testutil.Exec(t, db, `INSERT INTO venta (fecha, tipo, total) VALUES ('2025-01-10', 'leche', 700), ('2025-01-11', 'animal', 300), ('2025-02-01', 'leche', 999)`)
	testutil.Exec(t, db, `INSERT INTO gasto (fecha, categoria, monto) VALUES ('2025-01-04', 'alimento', 200), ('2025-01-09', 'veterinario', 50)`)
	testutil.Exec(t, db, `INSERT INTO tratamiento (animal_id, fecha, costo) VALUES (1, '2025-01-08', 25)`)

	testutil.Exec(t, db, `INSERT INTO empleado (codigo, nombre, estado_actual) VALUES ('E1', 'Rosa', 'Activo'), ('E2', 'Juan', 'Activo'), ('E3', 'Old', 'Retirado')`)
	testutil.Exec(t, db, `INSERT INTO pago_nomina (codigo_empleado, fecha_pago, total_pagado) VALUES ('E1', '2025-01-30', 125)`)
}

func TestOperationalRepository_Summary(t *testing.T) {
	db := testutil.NewDB(t)
	seedFarm(t, db)
	repo := queries.NewOperationalRepository(db)

	s, err := repo.Summary(context.Background(), models.NewPeriod(2025, 1))
	require.NoError(t, err)

	assert.Equal(t, 3, s.ActiveAnimals)
	assert.Equal(t, 3, s.OpeningAnimals)
	assert.Equal(t, 1, s.PregnantAnimals)
	assert.Equal(t, 1, s.AnimalEntries)
	assert.Equal(t, 1, s.Deaths)

	assert.Equal(t, 60.0, s.TotalLiters)
	assert.Equal(t, 2, s.ProductiveCows)
	assert.Equal(t, 30.0, s.AvgLitersPerDay)
	assert.Equal(t, 30.0, s.AvgLitersPerCow)

	assert.Equal(t, 4, s.Services)
	assert.Equal(t, 50.0, s.PregnancyRate)
	assert.Equal(t, 1, s.Births)

	assert.Equal(t, 1000.0, s.IncomeTotal)
	assert.Equal(t, 700.0, s.IncomeMilk)
	assert.Equal(t, 300.0, s.IncomeAnimals)
	assert.Equal(t, 250.0, s.CostSupplies)
	assert.Equal(t, 125.0, s.CostPayroll)
	assert.Equal(t, 25.0, s.CostTreatments)
	assert.Equal(t, 400.0, s.CostTotal)
	assert.Equal(t, 600.0, s.GrossMargin)
	assert.Equal(t, 60.0, s.GrossMarginPct)
}

func TestOperationalRepository_RuleInputs(t *testing.T) {
	db := testutil.NewDB(t)
	seedFarm(t, db)
	repo := queries.NewOperationalRepository(db)
	ctx := context.Background()
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	byCategory, err := repo.ExpensesByCategory(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"alimento": 200, "veterinario": 50}, byCategory)

	avg, days, err := repo.DailyOutputAverage(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, days)
	assert.Equal(t, 30.0, avg)

	population, err := repo.PopulationAt(ctx, from)
	require.NoError(t, err)
	assert.Equal(t, 3, population)

	deaths, err := repo.DeathsBetween(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, deaths)

	total, positive, err := repo.ServiceOutcomes(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, 2, positive)

	untreated, err := repo.AnimalsWithoutTreatmentSince(ctx, from)
	require.NoError(t, err)
	assert.Equal(t, []string{"A2", "A3"}, untreated)

	unpaid, err := repo.EmployeesWithoutPaymentSince(ctx, from)
	require.NoError(t, err)
	assert.Equal(t, []string{"E2"}, unpaid)
}

func TestOperationalRepository_RecordCoverage(t *testing.T) {
	db := testutil.NewDB(t)
	seedFarm(t, db)
	testutil.Exec(t, db, `INSERT INTO gasto (fecha, categoria, monto) VALUES ('2025-01-15', 'alimento', -30)`)
	repo := queries.NewOperationalRepository(db)

	c, err := repo.RecordCoverage(context.Background(),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, models.RecordCoverage{ProductionDays: 2, Expenses: 3, Sales: 2, Invalid: 1}, c)
}
