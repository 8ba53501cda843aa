package models

// PeriodSummary is the frozen aggregate of one closed month. Its existence
// is what marks a period as closed.
type PeriodSummary struct {
	ID    int64 `json:"id" db:"id"`
	Year  int   `json:"year" db:"year"`
	Month int   `json:"month" db:"month"`

	ActiveAnimals   int `json:"active_animals" db:"active_animals"`
	PregnantAnimals int `json:"pregnant_animals" db:"pregnant_animals"`
	AnimalEntries   int `json:"animal_entries" db:"animal_entries"`
	AnimalExits     int `json:"animal_exits" db:"animal_exits"`
	Deaths          int `json:"deaths" db:"deaths"`
	OpeningAnimals  int `json:"opening_animals" db:"opening_animals"`

	TotalLiters     float64 `json:"total_liters" db:"total_liters"`
	AvgLitersPerDay float64 `json:"avg_liters_per_day" db:"avg_liters_per_day"`
	AvgLitersPerCow float64 `json:"avg_liters_per_cow" db:"avg_liters_per_cow"`
	ProductiveCows  int     `json:"productive_cows" db:"productive_cows"`

	Services      int     `json:"services" db:"services"`
	Births        int     `json:"births" db:"births"`
	PregnancyRate float64 `json:"pregnancy_rate" db:"pregnancy_rate"`

	IncomeTotal    float64 `json:"income_total" db:"income_total"`
	IncomeAnimals  float64 `json:"income_animals" db:"income_animals"`
	IncomeMilk     float64 `json:"income_milk" db:"income_milk"`
	CostTotal      float64 `json:"cost_total" db:"cost_total"`
	CostPayroll    float64 `json:"cost_payroll" db:"cost_payroll"`
	CostTreatments float64 `json:"cost_treatments" db:"cost_treatments"`
	CostSupplies   float64 `json:"cost_supplies" db:"cost_supplies"`
	GrossMargin    float64 `json:"gross_margin" db:"gross_margin"`
	GrossMarginPct float64 `json:"gross_margin_pct" db:"gross_margin_pct"`

	Notes    string   `json:"notes,omitempty" db:"notes"`
	ClosedBy string   `json:"closed_by" db:"closed_by"`
	ClosedAt UnixTime `json:"closed_at" db:"closed_at"`
}

func (s *PeriodSummary) Period() Period {
	return Period{Year: s.Year, Month: s.Month}
}

// Finalize derives the margin and loss figures from the raw totals.
func (s *PeriodSummary) Finalize() {
	s.GrossMargin = s.IncomeTotal - s.CostTotal
	if s.IncomeTotal != 0 {
		s.GrossMarginPct = s.GrossMargin / s.IncomeTotal * 100
	} else {
		s.GrossMarginPct = 0
	}
}

// MortalityPct is deaths over the animals present when the month opened.
func (s *PeriodSummary) MortalityPct() float64 {
	if s.OpeningAnimals <= 0 {
		return 0
	}
	return float64(s.Deaths) / float64(s.OpeningAnimals) * 100
}

// KPI categories.
const (
	CategoryFinancial    = "financiero"
	CategoryProductive   = "productivo"
	CategoryReproductive = "reproductivo"
	CategoryHealth       = "sanitario"
)

// Tracked KPI names.
const (
	KPIIncomeTotal    = "ingreso_total"
	KPICostTotal      = "costo_total"
	KPIGrossMargin    = "margen_bruto"
	KPIGrossMarginPct = "margen_bruto_pct"
	KPIProduction     = "produccion_total"
	KPILitersPerCow   = "litros_promedio_vaca"
	KPIPregnancyRate  = "tasa_prenez"
	KPIMortalityPct   = "mortalidad_pct"
	KPIPayrollCost    = "costo_nomina"
	KPISuppliesCost   = "costo_insumos"
	KPIActiveAnimals  = "animales_activos"
)

// KPIValue is one row of the per-period KPI mapping.
type KPIValue struct {
	Year     int     `json:"-" db:"year"`
	Month    int     `json:"-" db:"month"`
	Name     string  `json:"-" db:"name"`
	Value    float64 `json:"value" db:"value"`
	Category string  `json:"category" db:"category"`
}

// KPIs derives the tracked KPI mapping from a summary.
func (s *PeriodSummary) KPIs() []KPIValue {
	kpi := func(name string, value float64, category string) KPIValue {
		return KPIValue{Year: s.Year, Month: s.Month, Name: name, Value: value, Category: category}
	}
	return []KPIValue{
		kpi(KPIIncomeTotal, s.IncomeTotal, CategoryFinancial),
		kpi(KPICostTotal, s.CostTotal, CategoryFinancial),
		kpi(KPIGrossMargin, s.GrossMargin, CategoryFinancial),
		kpi(KPIGrossMarginPct, s.GrossMarginPct, CategoryFinancial),
		kpi(KPIPayrollCost, s.CostPayroll, CategoryFinancial),
		kpi(KPISuppliesCost, s.CostSupplies, CategoryFinancial),
		kpi(KPIProduction, s.TotalLiters, CategoryProductive),
		kpi(KPILitersPerCow, s.AvgLitersPerCow, CategoryProductive),
		kpi(KPIActiveAnimals, float64(s.ActiveAnimals), CategoryProductive),
		kpi(KPIPregnancyRate, s.PregnancyRate, CategoryReproductive),
		kpi(KPIMortalityPct, s.MortalityPct(), CategoryHealth),
	}
}

// CloseComparison is the variation between two closed periods.
type CloseComparison struct {
	From                Period  `json:"from"`
	To                  Period  `json:"to"`
	IncomeVariationPct  float64 `json:"income_variation_pct"`
	MarginVariationPct  float64 `json:"margin_variation_pct"`
	OutputVariationPct  float64 `json:"output_variation_pct"`
	MarginPctDifference float64 `json:"margin_pct_difference"`
}

// PctChange is the percentage change from prev to curr, 0 when prev is 0.
func PctChange(prev, curr float64) float64 {
	if prev == 0 {
		return 0
	}
	return (curr - prev) / absFloat(prev) * 100
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
