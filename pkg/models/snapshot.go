package models

import (
	"encoding/json"
	"fmt"
)

const (
	SnapshotSchemaV1 = 1
	SnapshotSchemaV2 = 2

	CurrentSnapshotSchema = SnapshotSchemaV2
)

// Snapshot is the stored capture of one closed period.
type Snapshot struct {
	ID            int64    `json:"id" db:"id"`
	Year          int      `json:"year" db:"year"`
	Month         int      `json:"month" db:"month"`
	PeriodKey     int      `json:"-" db:"period_key"`
	GeneratedAt   UnixTime `json:"generated_at" db:"generated_at"`
	GeneratedBy   string   `json:"generated_by" db:"generated_by"`
	ContentHash   string   `json:"content_hash" db:"content_hash"`
	Version       int      `json:"version" db:"version"`
	SchemaVersion int      `json:"schema_version" db:"schema_version"`
	PayloadJSON   string   `json:"-" db:"payload_json"`

	Payload SnapshotPayload `json:"payload" db:"-"`
}

func (s *Snapshot) Period() Period {
	return Period{Year: s.Year, Month: s.Month}
}

// KPI returns the value of a tracked KPI, if present.
func (s *Snapshot) KPI(name string) (float64, bool) {
	entry, ok := s.Payload.KPIs[name]
	if !ok {
		return 0, false
	}
	return entry.Value, true
}

// SnapshotPayload is the current payload layout.
type SnapshotPayload struct {
	SchemaVersion int                 `json:"schema_version"`
	Period        Period              `json:"period"`
	Summary       PeriodSummary       `json:"summary"`
	KPIs          map[string]KPIEntry `json:"kpis"`
	Alerts        AlertRoster         `json:"alerts"`
	Trends        map[string]float64  `json:"trends"`
	Stats         PayloadStats        `json:"stats"`
}

type KPIEntry struct {
	Value    float64 `json:"value"`
	Category string  `json:"category"`
}

// AlertRoster is the set of alerts active when the snapshot was taken.
type AlertRoster struct {
	Total      int            `json:"total"`
	ByPriority map[string]int `json:"by_priority"`
	Top        []Alert        `json:"top"`
}

type PayloadStats struct {
	KPICount       int            `json:"kpi_count"`
	AlertCount     int            `json:"alert_count"`
	CategoryCounts map[string]int `json:"category_counts"`
}

// payloadV1 is the original flat layout: KPI values without categories and
// a single margin trend figure.
type payloadV1 struct {
	Summary     PeriodSummary      `json:"summary"`
	KPIs        map[string]float64 `json:"kpis"`
	Alerts      AlertRoster        `json:"alerts"`
	MarginTrend float64            `json:"margin_variation_pct"`
}

// Marshal encodes the payload deterministically; map keys are sorted by
// encoding/json, so equal payloads produce equal bytes.
func (p SnapshotPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload decodes a stored payload of any known schema version into
// the current layout.
func DecodePayload(schemaVersion int, data []byte) (SnapshotPayload, error) {
	switch schemaVersion {
	case SnapshotSchemaV2:
		var p SnapshotPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return SnapshotPayload{}, fmt.Errorf("decode v2 payload: %w", err)
		}
		return p, nil
	case SnapshotSchemaV1, 0:
		var v1 payloadV1
		if err := json.Unmarshal(data, &v1); err != nil {
			return SnapshotPayload{}, fmt.Errorf("decode v1 payload: %w", err)
		}
		return migrateV1(v1), nil
	default:
		return SnapshotPayload{}, fmt.Errorf("unknown snapshot schema version %d", schemaVersion)
	}
}

func migrateV1(v1 payloadV1) SnapshotPayload {
	kpis := make(map[string]KPIEntry, len(v1.KPIs))
	categories := make(map[string]int)
	for name, value := range v1.KPIs {
		category := KPICategory(name)
		kpis[name] = KPIEntry{Value: value, Category: category}
		categories[category]++
	}
	return SnapshotPayload{
		SchemaVersion: SnapshotSchemaV2,
		Period:        v1.Summary.Period(),
		Summary:       v1.Summary,
		KPIs:          kpis,
		Alerts:        v1.Alerts,
		Trends:        map[string]float64{KPIGrossMargin: v1.MarginTrend},
		Stats: PayloadStats{
			KPICount:       len(kpis),
			AlertCount:     v1.Alerts.Total,
			CategoryCounts: categories,
		},
	}
}

var kpiCategories = map[string]string{
	KPIIncomeTotal:    CategoryFinancial,
	KPICostTotal:      CategoryFinancial,
	KPIGrossMargin:    CategoryFinancial,
	KPIGrossMarginPct: CategoryFinancial,
	KPIPayrollCost:    CategoryFinancial,
	KPISuppliesCost:   CategoryFinancial,
	KPIProduction:     CategoryProductive,
	KPILitersPerCow:   CategoryProductive,
	KPIActiveAnimals:  CategoryProductive,
	KPIPregnancyRate:  CategoryReproductive,
	KPIMortalityPct:   CategoryHealth,
}

// KPICategory returns the category of a known KPI, "general" otherwise.
func KPICategory(name string) string {
	if c, ok := kpiCategories[name]; ok {
		return c
	}
	return "general"
}
