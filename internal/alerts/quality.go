package alerts

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/OldStager01/farm-bi/pkg/models"
)

// ScoreQuality grades the coverage of a span of days. Record sets weigh 40
// points, valid values 30 (5 per invalid record), production completeness
// 20 (2 per missing day once coverage drops under minCoverage percent) and
// the problem count 10.
func ScoreQuality(c models.RecordCoverage, days int, minCoverage float64) (int, []string) {
	var problems []string
	present := 0
	for _, set := range []struct {
		name string
		n    int
	}{
		{"production", c.ProductionDays},
		{"expenses", c.Expenses},
		{"sales", c.Sales},
	} {
		if set.n > 0 {
			present++
			continue
		}
		problems = append(problems, "no "+set.name+" records")
	}

	consistency := math.Max(0, 30-5*float64(c.Invalid))
	if c.Invalid > 0 {
		problems = append(problems, fmt.Sprintf("%d records with negative values", c.Invalid))
	}

	completeness := 20.0
	if float64(c.ProductionDays) < float64(days)*minCoverage/100 {
		missing := days - c.ProductionDays
		completeness = math.Max(0, 20-2*float64(missing))
		problems = append(problems, fmt.Sprintf("production recorded on %d/%d days", c.ProductionDays, days))
	}

	score := float64(present)/3*40 + consistency + completeness + math.Max(0, 10-float64(len(problems)))
	return int(math.Min(100, score)), problems
}

// DataQuality grades the month of ref from its first day through ref. It
// stays quiet for the first QualityMinDays days of a month.
func (e *Engine) DataQuality(ctx context.Context, ref time.Time) ([]*models.Alert, error) {
	period := models.PeriodOf(ref)
	days := ref.Day()
	if days < e.config.QualityMinDays {
		return nil, nil
	}

	coverage, err := e.source.RecordCoverage(ctx, period.Start(), ref)
	if err != nil {
		return nil, err
	}
	score, problems := ScoreQuality(coverage, days, e.config.QualityCoveragePct)
	if float64(score) >= e.config.QualityHigh {
		return nil, nil
	}

	alertType, level, priority := models.AlertQualityLow, "low", models.PriorityHigh
	if float64(score) >= e.config.QualityMedium {
		alertType, level, priority = models.AlertQualityMedium, "medium", models.PriorityMedium
	}

	listed := problems
	if len(listed) > 3 {
		listed = append(listed[:3:3], "...")
	}
	return []*models.Alert{models.NewAlert(
		alertType,
		priority,
		"Data quality "+level,
		fmt.Sprintf("Period %s: score %d/100. Problems: %s", period, score, strings.Join(listed, ", ")),
		e.now(),
	).WithEntity(models.EntityDataQuality, period.String()).WithValues(float64(score), e.config.QualityHigh)}, nil
}
