package alerts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/OldStager01/farm-bi/pkg/models"
)

const day = 24 * time.Hour

// AbnormalSpend compares each expense category's spend so far this month
// with its average monthly total over the previous AverageMonths months
// that had spend in that category.
func (e *Engine) AbnormalSpend(ctx context.Context, ref time.Time) ([]*models.Alert, error) {
	period := models.PeriodOf(ref)

	sums := make(map[string]float64)
	months := make(map[string]int)
	for i := 1; i <= e.config.AverageMonths; i++ {
		p := period.AddMonths(-i)
		totals, err := e.source.ExpensesByCategory(ctx, p.Start(), p.End())
		if err != nil {
			return nil, err
		}
		for category, total := range totals {
			if total > 0 {
				sums[category] += total
				months[category]++
			}
		}
	}

	current, err := e.source.ExpensesByCategory(ctx, period.Start(), ref)
	if err != nil {
		return nil, err
	}

	var out []*models.Alert
	for _, category := range sortedKeys(current) {
		if months[category] == 0 {
			continue
		}
		avg := sums[category] / float64(months[category])
		if avg == 0 {
			continue
		}
		actual := current[category]
		pct := actual / avg * 100
		if pct <= e.config.SpendPct {
			continue
		}

		priority := models.PriorityMedium
		if pct >= e.config.SpendHighPct {
			priority = models.PriorityHigh
		}
		out = append(out, models.NewAlert(
			models.AlertAbnormalSpend,
			priority,
			"High spend in "+category,
			fmt.Sprintf("Spend in %s is %.0f%% of the historical average. Current: %.0f vs average: %.0f",
				category, pct, actual, avg),
			e.now(),
		).WithEntity(models.EntityExpenseCategory, category).WithValues(actual, avg))
	}
	return out, nil
}

// LowOutput compares average daily liters over the last OutputWindowDays
// with the average over the rest of the OutputBaseDays before ref.
func (e *Engine) LowOutput(ctx context.Context, ref time.Time) ([]*models.Alert, error) {
	windowStart := ref.Add(-time.Duration(e.config.OutputWindowDays) * day)
	baseStart := ref.Add(-time.Duration(e.config.OutputBaseDays) * day)

	baseline, _, err := e.source.DailyOutputAverage(ctx, baseStart, windowStart.Add(-day))
	if err != nil {
		return nil, err
	}
	if baseline == 0 {
		return nil, nil
	}
	recent, _, err := e.source.DailyOutputAverage(ctx, windowStart, ref)
	if err != nil {
		return nil, err
	}

	pct := recent / baseline * 100
	if pct >= e.config.OutputPct {
		return nil, nil
	}

	priority := models.PriorityMedium
	if pct < e.config.OutputHighPct {
		priority = models.PriorityHigh
	}
	return []*models.Alert{models.NewAlert(
		models.AlertLowOutput,
		priority,
		"Milk output below average",
		fmt.Sprintf("Average daily output is %.0f%% of the historical average. Current: %.1f L/day vs average: %.1f L/day",
			pct, recent, baseline),
		e.now(),
	).WithEntity(models.EntityProduction, models.PeriodOf(ref).String()).WithValues(recent, baseline)}, nil
}

// HighLoss compares deaths this month with the herd present when the
// month started.
func (e *Engine) HighLoss(ctx context.Context, ref time.Time) ([]*models.Alert, error) {
	period := models.PeriodOf(ref)

	opening, err := e.source.PopulationAt(ctx, period.Start())
	if err != nil {
		return nil, err
	}
	if opening == 0 {
		return nil, nil
	}
	deaths, err := e.source.DeathsBetween(ctx, period.Start(), ref)
	if err != nil {
		return nil, err
	}

	rate := float64(deaths) / float64(opening) * 100
	if rate <= e.config.LossPct {
		return nil, nil
	}

	priority := models.PriorityMedium
	if rate > e.config.LossHighPct {
		priority = models.PriorityHigh
	}
	return []*models.Alert{models.NewAlert(
		models.AlertHighLoss,
		priority,
		"High mortality rate",
		fmt.Sprintf("Mortality this month is %.1f%% (%d of %d animals). Maximum: %.0f%%",
			rate, deaths, opening, e.config.LossPct),
		e.now(),
	).WithEntity(models.EntityHerd, period.String()).WithValues(rate, e.config.LossPct)}, nil
}

// LowSuccessRate checks the share of positive services over the last
// SuccessWindowDays, once at least MinSample services exist.
func (e *Engine) LowSuccessRate(ctx context.Context, ref time.Time) ([]*models.Alert, error) {
	from := ref.Add(-time.Duration(e.config.SuccessWindowDays) * day)

	total, positive, err := e.source.ServiceOutcomes(ctx, from, ref)
	if err != nil {
		return nil, err
	}
	if total < e.config.MinSample {
		return nil, nil
	}

	rate := float64(positive) / float64(total) * 100
	if rate >= e.config.SuccessPct {
		return nil, nil
	}

	priority := models.PriorityMedium
	if rate <= e.config.SuccessHighPct {
		priority = models.PriorityHigh
	}
	return []*models.Alert{models.NewAlert(
		models.AlertLowSuccessRate,
		priority,
		"Pregnancy rate below target",
		fmt.Sprintf("Pregnancy rate over the last %d days is %.0f%% (%d of %d services). Target: %.0f%%",
			e.config.SuccessWindowDays, rate, positive, total, e.config.SuccessPct),
		e.now(),
	).WithEntity(models.EntityReproduction, models.PeriodOf(ref).String()).WithValues(rate, e.config.SuccessPct)}, nil
}

// StaleActions flags active employees without a recent payroll payment and
// a group of active animals without a recent treatment.
func (e *Engine) StaleActions(ctx context.Context, ref time.Time) ([]*models.Alert, error) {
	var out []*models.Alert
	period := models.PeriodOf(ref).String()

	unpaid, err := e.source.EmployeesWithoutPaymentSince(ctx, ref.Add(-time.Duration(e.config.PayrollDays)*day))
	if err != nil {
		return nil, err
	}
	if len(unpaid) > 0 {
		priority := models.PriorityMedium
		if len(unpaid) > e.config.PayrollHighCount {
			priority = models.PriorityHigh
		}
		out = append(out, models.NewAlert(
			models.AlertUnpaidStaff,
			priority,
			fmt.Sprintf("%d employees without a recent payment", len(unpaid)),
			fmt.Sprintf("%d active employees have no payroll payment in the last %d days. Check payroll.",
				len(unpaid), e.config.PayrollDays),
			e.now(),
		).WithEntity(models.EntityEmployee, period).WithValues(float64(len(unpaid)), 0))
	}

	unreviewed, err := e.source.AnimalsWithoutTreatmentSince(ctx, ref.Add(-time.Duration(e.config.ReviewDays)*day))
	if err != nil {
		return out, err
	}
	if len(unreviewed) > e.config.ReviewMinAnimals {
		out = append(out, models.NewAlert(
			models.AlertStaleReview,
			models.PriorityLow,
			fmt.Sprintf("%d animals without a veterinary review", len(unreviewed)),
			fmt.Sprintf("%d animals have no review in the last %d days. Schedule reviews.",
				len(unreviewed), e.config.ReviewDays),
			e.now(),
		).WithEntity(models.EntityAnimal, period).WithValues(float64(len(unreviewed)), 0))
	}

	return out, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
