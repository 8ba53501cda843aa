package closing

import (
	"context"
	"errors"
	"fmt"

	"github.com/OldStager01/farm-bi/internal/cache"
	"github.com/OldStager01/farm-bi/pkg/models"
)

func ComparisonKey(a, b models.Period) string {
	return fmt.Sprintf("comparison_%s_%s", a, b)
}

// Compare reports the variation from closed period a to closed period b.
// The result is cached under the KPI tag, so the next close drops it.
func (o *Orchestrator) Compare(ctx context.Context, a, b models.Period) (models.CloseComparison, error) {
	compute := func(ctx context.Context) (models.CloseComparison, error) {
		from, err := o.closedSummary(ctx, a)
		if err != nil {
			return models.CloseComparison{}, err
		}
		to, err := o.closedSummary(ctx, b)
		if err != nil {
			return models.CloseComparison{}, err
		}
		return compareSummaries(from, to), nil
	}

	if o.deps.Cache == nil {
		return compute(ctx)
	}
	return cache.GetOrCompute(ctx, o.deps.Cache, ComparisonKey(a, b), o.config.ComparisonTTL, compute, o.deps.Cache.KPITag())
}

// ListCloses returns the closed summaries of a year, or of every year when
// year is 0, newest first.
func (o *Orchestrator) ListCloses(ctx context.Context, year int) ([]models.PeriodSummary, error) {
	return o.deps.Summaries.List(ctx, year)
}

func (o *Orchestrator) closedSummary(ctx context.Context, p models.Period) (*models.PeriodSummary, error) {
	s, err := o.deps.Summaries.Get(ctx, p)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s is not closed", models.ErrPeriodDataMissing, p)
	}
	return s, err
}

func compareSummaries(from, to *models.PeriodSummary) models.CloseComparison {
	return models.CloseComparison{
		From:                from.Period(),
		To:                  to.Period(),
		IncomeVariationPct:  round2(models.PctChange(from.IncomeTotal, to.IncomeTotal)),
		MarginVariationPct:  round2(models.PctChange(from.GrossMargin, to.GrossMargin)),
		OutputVariationPct:  round2(models.PctChange(from.TotalLiters, to.TotalLiters)),
		MarginPctDifference: round2(to.GrossMarginPct - from.GrossMarginPct),
	}
}
