package closing

import (
	"math"
	"time"

	"github.com/OldStager01/farm-bi/pkg/models"
)

// Close steps in execution order. The first three are hard: a failure stops
// the close. The rest only degrade it.
const (
	StepSummary    = "summary"
	StepLock       = "lock"
	StepSnapshot   = "snapshot"
	StepInvalidate = "invalidate_cache"
	StepDetect     = "detect_and_alert"
	StepBackup     = "backup"
)

type StepResult struct {
	Step     string        `json:"step"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`

	err error
}

// Err is the underlying error of a failed step.
func (r StepResult) Err() error {
	return r.err
}

// Report is the outcome of one close or repair run.
type Report struct {
	RunID      string                  `json:"run_id"`
	Period     models.Period           `json:"period"`
	Actor      string                  `json:"actor"`
	State      models.PeriodState      `json:"state"`
	Summary    *models.PeriodSummary   `json:"summary,omitempty"`
	Snapshot   *models.Snapshot        `json:"snapshot,omitempty"`
	Hard       []StepResult            `json:"hard"`
	Soft       []StepResult            `json:"soft"`
	Anomalies  []models.AnomalyResult  `json:"anomalies,omitempty"`
	Insights   []models.PatternInsight `json:"insights,omitempty"`
	AlertsNew  int                     `json:"alerts_new"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
}

// Degraded reports whether any soft step failed.
func (r *Report) Degraded() bool {
	for _, s := range r.Soft {
		if !s.OK {
			return true
		}
	}
	return false
}

// Step returns the result of a named step, if it ran.
func (r *Report) Step(name string) (StepResult, bool) {
	for _, s := range append(r.Hard, r.Soft...) {
		if s.Step == name {
			return s, true
		}
	}
	return StepResult{}, false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
