package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/OldStager01/farm-bi/internal/logger"
	"github.com/OldStager01/farm-bi/internal/metrics"
	"github.com/OldStager01/farm-bi/pkg/models"
)

type SummaryReader interface {
	Get(ctx context.Context, p models.Period) (*models.PeriodSummary, error)
	KPIs(ctx context.Context, p models.Period) ([]models.KPIValue, error)
}

type AlertReader interface {
	DetectedBetween(ctx context.Context, from, to time.Time) ([]models.Alert, error)
}

type Repository interface {
	Upsert(ctx context.Context, s *models.Snapshot) error
	Get(ctx context.Context, p models.Period) (*models.Snapshot, error)
	Range(ctx context.Context, start, end models.Period) ([]models.Snapshot, error)
	DeleteBefore(ctx context.Context, cutoff models.Period) (int64, error)
}

type Config struct {
	RetentionMonths int
	AlertLookback   time.Duration
	AlertCap        int
	Now             func() time.Time
}

// trendKPIs are compared against the previous period in every payload.
var trendKPIs = []string{
	models.KPIIncomeTotal,
	models.KPICostTotal,
	models.KPIGrossMargin,
	models.KPIGrossMarginPct,
	models.KPIProduction,
}

type Store struct {
	config    Config
	summaries SummaryReader
	alerts    AlertReader
	repo      Repository
	now       func() time.Time
}

func New(cfg Config, summaries SummaryReader, alerts AlertReader, repo Repository) *Store {
	if cfg.RetentionMonths == 0 {
		cfg.RetentionMonths = 24
	}
	if cfg.AlertLookback == 0 {
		cfg.AlertLookback = 30 * 24 * time.Hour
	}
	if cfg.AlertCap == 0 {
		cfg.AlertCap = 20
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		config:    cfg,
		summaries: summaries,
		alerts:    alerts,
		repo:      repo,
		now:       now,
	}
}

// GenerateSnapshot builds the payload of a closed period from its summary,
// KPIs, recent alerts and trends, and upserts it. Regenerating bumps the
// stored version; the content hash changes only when the payload does.
func (s *Store) GenerateSnapshot(ctx context.Context, period models.Period, actor string) (*models.Snapshot, error) {
	summary, err := s.summaries.Get(ctx, period)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", models.ErrPeriodDataMissing, period)
	}
	if err != nil {
		return nil, err
	}

	kpis, err := s.summaries.KPIs(ctx, period)
	if err != nil {
		return nil, err
	}
	if len(kpis) == 0 {
		kpis = summary.KPIs()
	}

	now := s.now()
	recent, err := s.alerts.DetectedBetween(ctx, now.Add(-s.config.AlertLookback), now)
	if err != nil {
		return nil, err
	}

	trends, err := s.trends(ctx, period, kpis)
	if err != nil {
		return nil, err
	}

	payload := buildPayload(period, summary, kpis, recent, trends, s.config.AlertCap)
	data, err := payload.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encode snapshot payload: %w", err)
	}

	snap := &models.Snapshot{
		Year:          period.Year,
		Month:         period.Month,
		GeneratedAt:   models.NewUnixTime(now),
		GeneratedBy:   actor,
		ContentHash:   contentHash(data),
		SchemaVersion: models.CurrentSnapshotSchema,
		PayloadJSON:   string(data),
		Payload:       payload,
	}
	if err := s.repo.Upsert(ctx, snap); err != nil {
		return nil, err
	}

	metrics.SnapshotsGenerated.Inc()
	logger.WithPeriod(period).WithFields(map[string]interface{}{
		"version": snap.Version,
		"hash":    snap.ContentHash[:12],
		"alerts":  payload.Alerts.Total,
	}).Info("Snapshot generated")

	return snap, nil
}

// GetSnapshot returns the decoded snapshot of a period, whatever schema
// version it was written with.
func (s *Store) GetSnapshot(ctx context.Context, period models.Period) (*models.Snapshot, error) {
	snap, err := s.repo.Get(ctx, period)
	if err != nil {
		return nil, err
	}
	if err := decode(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// GetSnapshotsInRange returns the snapshots of start..end inclusive in
// chronological order. Periods without a snapshot are absent.
func (s *Store) GetSnapshotsInRange(ctx context.Context, start, end models.Period) ([]models.Snapshot, error) {
	if end.Before(start) {
		return nil, nil
	}
	snaps, err := s.repo.Range(ctx, start, end)
	if err != nil {
		return nil, err
	}
	for i := range snaps {
		if err := decode(&snaps[i]); err != nil {
			return nil, err
		}
	}
	return snaps, nil
}

// PruneOlderThan deletes snapshots of periods earlier than retentionMonths
// before the current period. Zero or less uses the configured retention.
func (s *Store) PruneOlderThan(ctx context.Context, retentionMonths int) (int64, error) {
	if retentionMonths <= 0 {
		retentionMonths = s.config.RetentionMonths
	}
	cutoff := models.PeriodOf(s.now()).AddMonths(-retentionMonths)

	n, err := s.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.SnapshotsPruned.Add(float64(n))
	if n > 0 {
		logger.WithFields(map[string]interface{}{
			"cutoff":  cutoff.String(),
			"removed": n,
		}).Info("Old snapshots pruned")
	}
	return n, nil
}

func (s *Store) trends(ctx context.Context, period models.Period, kpis []models.KPIValue) (map[string]float64, error) {
	trends := make(map[string]float64, len(trendKPIs))
	for _, name := range trendKPIs {
		trends[name] = 0
	}

	prev, err := s.summaries.Get(ctx, period.Prev())
	if errors.Is(err, models.ErrNotFound) {
		return trends, nil
	}
	if err != nil {
		return nil, err
	}

	previous := make(map[string]float64)
	for _, k := range prev.KPIs() {
		previous[k.Name] = k.Value
	}
	for _, k := range kpis {
		if _, tracked := trends[k.Name]; tracked {
			trends[k.Name] = round2(models.PctChange(previous[k.Name], k.Value))
		}
	}
	return trends, nil
}

func buildPayload(period models.Period, summary *models.PeriodSummary, kpis []models.KPIValue, recent []models.Alert, trends map[string]float64, alertCap int) models.SnapshotPayload {
	entries := make(map[string]models.KPIEntry, len(kpis))
	categories := make(map[string]int)
	for _, k := range kpis {
		entries[k.Name] = models.KPIEntry{Value: k.Value, Category: k.Category}
		categories[k.Category]++
	}

	roster := buildRoster(recent, alertCap)

	return models.SnapshotPayload{
		SchemaVersion: models.CurrentSnapshotSchema,
		Period:        period,
		Summary:       *summary,
		KPIs:          entries,
		Alerts:        roster,
		Trends:        trends,
		Stats: models.PayloadStats{
			KPICount:       len(entries),
			AlertCount:     roster.Total,
			CategoryCounts: categories,
		},
	}
}

// buildRoster orders alerts by priority then recency and keeps at most
// alertCap of them. Total and ByPriority count every alert, not only the
// kept ones.
func buildRoster(alerts []models.Alert, alertCap int) models.AlertRoster {
	sorted := make([]models.Alert, len(alerts))
	copy(sorted, alerts)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if !a.DetectedAt.Equal(b.DetectedAt.Time) {
			return a.DetectedAt.After(b.DetectedAt.Time)
		}
		return a.ID > b.ID
	})

	byPriority := map[string]int{
		string(models.PriorityHigh):   0,
		string(models.PriorityMedium): 0,
		string(models.PriorityLow):    0,
	}
	for _, a := range sorted {
		byPriority[string(a.Priority)]++
	}

	if len(sorted) > alertCap {
		sorted = sorted[:alertCap]
	}

	return models.AlertRoster{
		Total:      len(alerts),
		ByPriority: byPriority,
		Top:        sorted,
	}
}

func decode(snap *models.Snapshot) error {
	payload, err := models.DecodePayload(snap.SchemaVersion, []byte(snap.PayloadJSON))
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", snap.Period(), err)
	}
	snap.Payload = payload
	return nil
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
