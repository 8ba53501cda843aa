package models

import "time"

type AlertPriority string

const (
	PriorityLow    AlertPriority = "baja"
	PriorityMedium AlertPriority = "media"
	PriorityHigh   AlertPriority = "alta"
)

// Rank orders priorities, higher is more urgent.
func (p AlertPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (p AlertPriority) Valid() bool {
	return p.Rank() > 0
}

type AlertStatus string

const (
	AlertActive   AlertStatus = "activa"
	AlertResolved AlertStatus = "resuelta"
)

// Alert types raised by the rules engine.
const (
	AlertAbnormalSpend     = "gasto_anormal"
	AlertLowOutput         = "produccion_baja"
	AlertHighLoss          = "mortalidad_elevada"
	AlertLowSuccessRate    = "tasa_prenez_baja"
	AlertStaleReview       = "animales_sin_revision"
	AlertUnpaidStaff       = "empleados_sin_pago"
	AlertQualityMedium     = "calidad_media"
	AlertQualityLow        = "calidad_baja"
	AlertFinancialAnomaly  = "anomalia_financiera"
	AlertProductiveAnomaly = "anomalia_productiva"
	AlertPatternPrefix     = "patron_"
)

// Entity types referenced by alerts.
const (
	EntityExpenseCategory = "categoria_gasto"
	EntityProduction      = "produccion"
	EntityHerd            = "hato"
	EntityReproduction    = "reproduccion"
	EntityAnimal          = "animal"
	EntityEmployee        = "empleado"
	EntitySnapshot        = "bi_snapshot"
	EntityDataQuality     = "calidad_datos"
)

// RecordCoverage counts the operational records of a date range that the
// data quality rule judges.
type RecordCoverage struct {
	ProductionDays int `db:"production_days"`
	Expenses       int `db:"expenses"`
	Sales          int `db:"sales"`
	Invalid        int `db:"invalid"`
}

type Alert struct {
	ID             int64         `json:"id" db:"id"`
	Type           string        `json:"type" db:"type"`
	Priority       AlertPriority `json:"priority" db:"priority"`
	Title          string        `json:"title" db:"title"`
	Description    string        `json:"description" db:"description"`
	EntityType     string        `json:"entity_type" db:"entity_type"`
	EntityID       string        `json:"entity_id" db:"entity_id"`
	CurrentValue   *float64      `json:"current_value,omitempty" db:"current_value"`
	ReferenceValue *float64      `json:"reference_value,omitempty" db:"reference_value"`
	DetectedAt     UnixTime      `json:"detected_at" db:"detected_at"`
	Status         AlertStatus   `json:"status" db:"status"`
}

// DedupKey identifies alerts that must not repeat inside the dedup window.
func (a *Alert) DedupKey() string {
	return a.Type + "|" + a.EntityType + "|" + a.EntityID
}

func (a *Alert) IsActive() bool {
	return a.Status == AlertActive
}

// NewAlert builds an active alert detected at the given time.
func NewAlert(alertType string, priority AlertPriority, title, description string, detectedAt time.Time) *Alert {
	return &Alert{
		Type:        alertType,
		Priority:    priority,
		Title:       title,
		Description: description,
		DetectedAt:  NewUnixTime(detectedAt),
		Status:      AlertActive,
	}
}

func (a *Alert) WithEntity(entityType, entityID string) *Alert {
	a.EntityType = entityType
	a.EntityID = entityID
	return a
}

func (a *Alert) WithValues(current, reference float64) *Alert {
	a.CurrentValue = &current
	a.ReferenceValue = &reference
	return a
}
