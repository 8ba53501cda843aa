package models

import "strings"

// Level is the discrete severity shared by both detectors.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// AlertPriority maps a detector level to an alert priority. Low levels
// never become alerts.
func (l Level) AlertPriority() (AlertPriority, bool) {
	switch l {
	case LevelHigh:
		return PriorityHigh, true
	case LevelMedium:
		return PriorityMedium, true
	default:
		return "", false
	}
}

// AnomalyResult is the deviation of one metric against its trailing window.
type AnomalyResult struct {
	Metric       string  `json:"metric"`
	Period       Period  `json:"period"`
	Score        int     `json:"score"`
	Level        Level   `json:"level"`
	Current      float64 `json:"current"`
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std_dev"`
	ZScore       float64 `json:"z_score"`
	PctDeviation float64 `json:"pct_deviation"`
	Samples      int     `json:"samples"`
	Explanation  string  `json:"explanation"`
}

type PatternKind string

const (
	PatternSeasonality    PatternKind = "estacionalidad"
	PatternCostRamp       PatternKind = "rampa_costos"
	PatternProductionRamp PatternKind = "rampa_produccion"
)

// PatternInsight is a qualitative finding over the long window.
type PatternInsight struct {
	Metric      string      `json:"metric"`
	Kind        PatternKind `json:"kind"`
	Level       Level       `json:"level"`
	Period      Period      `json:"period"`
	Description string      `json:"description"`
	Evidence    []string    `json:"evidence"`
	Current     float64     `json:"current"`
	Reference   float64     `json:"reference"`
}

// CacheEntry is one stored analytics computation.
type CacheEntry struct {
	Key        string   `json:"key" db:"cache_key"`
	Value      string   `json:"-" db:"value_json"`
	CreatedAt  UnixTime `json:"created_at" db:"created_at"`
	TTLSeconds int64    `json:"ttl_seconds" db:"ttl_seconds"`
	Hits       int64    `json:"hits" db:"hits"`
	Tags       string   `json:"tags" db:"tags"`
}

type CacheStats struct {
	Entries   int64   `json:"entries" db:"entries"`
	TotalHits int64   `json:"total_hits" db:"total_hits"`
	AvgHits   float64 `json:"avg_hits" db:"avg_hits"`
	MaxHits   int64   `json:"max_hits" db:"max_hits"`
}

// EncodeTags joins tags into the comma-delimited form stored with an entry.
// The leading and trailing commas let a single tag be matched as ",tag,".
func EncodeTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return "," + strings.Join(tags, ",") + ","
}

func DecodeTags(s string) []string {
	s = strings.Trim(s, ",")
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// SeriesPoint is one extracted KPI value of a snapshot.
type SeriesPoint struct {
	Period Period
	Value  float64
}

// Series extracts a KPI from snapshots in order, skipping snapshots that do
// not carry it.
func Series(snaps []Snapshot, metric string) []SeriesPoint {
	points := make([]SeriesPoint, 0, len(snaps))
	for i := range snaps {
		if v, ok := snaps[i].KPI(metric); ok {
			points = append(points, SeriesPoint{Period: snaps[i].Period(), Value: v})
		}
	}
	return points
}

// MetricWords turns a KPI name into the phrase used in explanations.
func MetricWords(metric string) string {
	return strings.ReplaceAll(metric, "_", " ")
}
