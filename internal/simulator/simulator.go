package simulator

import (
	"context"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"

	"github.com/OldStager01/farm-bi/internal/logger"
	"github.com/OldStager01/farm-bi/pkg/database"
	"github.com/OldStager01/farm-bi/pkg/models"
)

// Config describes the simulated farm. Zero values take the defaults below.
type Config struct {
	Herd         int
	Employees    int
	LitersPerCow float64
	MilkPrice    float64
	FeedPerCow   float64
	SuppliesCost float64
	Salary       float64
	Output       Pattern
	Spend        Pattern
}

// Stats counts the rows written by one Seed call.
type Stats struct {
	Months     int `json:"months"`
	Animals    int `json:"animals"`
	Production int `json:"production_rows"`
	Sales      int `json:"sales"`
	Expenses   int `json:"expenses"`
	Payments   int `json:"payments"`
	Services   int `json:"services"`
}

// Simulator fills the operational tables with a plausible farm history so
// closes, detectors and rules can be exercised without a live system.
type Simulator struct {
	config Config
	db     *database.DB
}

func New(cfg Config, db *database.DB) *Simulator {
	if cfg.Herd <= 0 {
		cfg.Herd = 20
	}
	if cfg.Employees <= 0 {
		cfg.Employees = 3
	}
	if cfg.LitersPerCow == 0 {
		cfg.LitersPerCow = 18
	}
	if cfg.MilkPrice == 0 {
		cfg.MilkPrice = 1800
	}
	if cfg.FeedPerCow == 0 {
		cfg.FeedPerCow = 250_000
	}
	if cfg.SuppliesCost == 0 {
		cfg.SuppliesCost = 800_000
	}
	if cfg.Salary == 0 {
		cfg.Salary = 1_600_000
	}
	if cfg.Output == nil {
		cfg.Output = &SteadyPattern{}
	}
	if cfg.Spend == nil {
		cfg.Spend = &SteadyPattern{}
	}
	return &Simulator{config: cfg, db: db}
}

// Seed writes from..to inclusive in one transaction. The herd and staff are
// registered on the first day of from and reused when they already exist.
func (s *Simulator) Seed(ctx context.Context, from, to models.Period) (Stats, error) {
	if !from.Valid() || !to.Valid() || to.Before(from) {
		return Stats{}, fmt.Errorf("%w: seed range %s..%s", models.ErrInvalidPeriod, from, to)
	}
	for _, p := range []Pattern{s.config.Output, s.config.Spend} {
		if rise, ok := p.(*GradualRisePattern); ok && rise.Start.Year == 0 {
			rise.Start = from
		}
	}

	var stats Stats
	err := s.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		cows, err := s.registerHerd(ctx, tx, from, &stats)
		if err != nil {
			return err
		}
		staff, err := s.registerStaff(ctx, tx)
		if err != nil {
			return err
		}
		for p := from; !to.Before(p); p = p.AddMonths(1) {
			if err := s.seedMonth(ctx, tx, p, cows, staff, &stats); err != nil {
				return fmt.Errorf("seed %s: %w", p, err)
			}
			stats.Months++
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	logger.WithFields(map[string]interface{}{
		"from":   from.String(),
		"to":     to.String(),
		"output": s.config.Output.Name(),
		"spend":  s.config.Spend.Name(),
		"rows":   stats.Production + stats.Sales + stats.Expenses + stats.Payments + stats.Services,
	}).Info("Operational data simulated")
	return stats, nil
}

func (s *Simulator) exec(ctx context.Context, tx *sqlx.Tx, query string, args ...interface{}) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	return err
}

func (s *Simulator) registerHerd(ctx context.Context, tx *sqlx.Tx, from models.Period, stats *Stats) ([]int64, error) {
	joined := models.FormatDate(from.Start())
	for i := 1; i <= s.config.Herd; i++ {
		pregnant := 0
		if i%4 == 0 {
			pregnant = 1
		}
		if err := s.exec(ctx, tx,
			`INSERT INTO animal (codigo, estado, gestante, fecha_ingreso) VALUES (?, 'Activo', ?, ?)
			 ON CONFLICT (codigo) DO NOTHING`,
			fmt.Sprintf("SIM-%03d", i), pregnant, joined); err != nil {
			return nil, err
		}
	}

	var ids []int64
	if err := tx.SelectContext(ctx, &ids, tx.Rebind(
		`SELECT id FROM animal WHERE codigo LIKE 'SIM-%' AND estado = 'Activo' ORDER BY codigo`)); err != nil {
		return nil, err
	}
	stats.Animals = len(ids)
	return ids, nil
}

func (s *Simulator) registerStaff(ctx context.Context, tx *sqlx.Tx) ([]string, error) {
	codes := make([]string, 0, s.config.Employees)
	for i := 1; i <= s.config.Employees; i++ {
		code := fmt.Sprintf("SIM-E%02d", i)
		if err := s.exec(ctx, tx,
			`INSERT INTO empleado (codigo, nombre, estado_actual) VALUES (?, ?, 'Activo')
			 ON CONFLICT (codigo) DO NOTHING`,
			code, fmt.Sprintf("Empleado %d", i)); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func (s *Simulator) seedMonth(ctx context.Context, tx *sqlx.Tx, p models.Period, cows []int64, staff []string, stats *Stats) error {
	cfg := s.config

	perCowDay := round2(cfg.Output.Apply(cfg.LitersPerCow, p))
	var liters float64
	for day := p.Start(); !day.After(p.End()); day = day.AddDate(0, 0, 1) {
		date := models.FormatDate(day)
		for _, cow := range cows {
			if err := s.exec(ctx, tx,
				`INSERT INTO produccion_leche (animal_id, fecha, cantidad_litros) VALUES (?, ?, ?)`,
				cow, date, perCowDay); err != nil {
				return err
			}
			liters += perCowDay
			stats.Production++
		}
	}

	lastDay := models.FormatDate(p.End())
	if err := s.exec(ctx, tx,
		`INSERT INTO venta (fecha, tipo, total) VALUES (?, 'leche', ?)`,
		lastDay, round2(liters*cfg.MilkPrice)); err != nil {
		return err
	}
	stats.Sales++

	mid := models.FormatDate(p.Start().AddDate(0, 0, 14))
	expenses := map[string]float64{
		"alimento": cfg.Spend.Apply(cfg.FeedPerCow*float64(len(cows)), p),
		"insumos":  cfg.Spend.Apply(cfg.SuppliesCost, p),
	}
	for _, category := range []string{"alimento", "insumos"} {
		if err := s.exec(ctx, tx,
			`INSERT INTO gasto (fecha, categoria, monto) VALUES (?, ?, ?)`,
			mid, category, round2(expenses[category])); err != nil {
			return err
		}
		stats.Expenses++
	}

	payday := models.FormatDate(p.Start().AddDate(0, 0, 27))
	for _, code := range staff {
		if err := s.exec(ctx, tx,
			`INSERT INTO pago_nomina (codigo_empleado, fecha_pago, total_pagado) VALUES (?, ?, ?)`,
			code, payday, cfg.Salary); err != nil {
			return err
		}
		stats.Payments++
	}

	// Two services a month, rotating through the herd; every third is negative.
	for i := 0; i < 2 && len(cows) > 0; i++ {
		n := p.Key()*2 + i
		result := "Positivo"
		if n%3 == 0 {
			result = "Negativo"
		}
		if err := s.exec(ctx, tx,
			`INSERT INTO servicio (animal_id, fecha, resultado) VALUES (?, ?, ?)`,
			cows[n%len(cows)], mid, result); err != nil {
			return err
		}
		stats.Services++
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
