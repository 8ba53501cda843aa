package simulator

import (
	"math"
	"math/rand"

	"github.com/OldStager01/farm-bi/pkg/models"
)

// Pattern shapes a monthly base value. Simulated farms combine one pattern
// for output and one for spend.
type Pattern interface {
	Apply(base float64, p models.Period) float64
	Name() string
}

func ParsePattern(name string, seed int64) Pattern {
	switch name {
	case "seasonal":
		return &SeasonalPattern{}
	case "random":
		return NewRandomPattern(seed, 0)
	case "gradual_rise":
		return &GradualRisePattern{}
	default:
		return &SteadyPattern{}
	}
}

type SteadyPattern struct{}

func (p *SteadyPattern) Apply(base float64, _ models.Period) float64 {
	return base
}

func (p *SteadyPattern) Name() string {
	return "steady"
}

// SeasonalPattern follows the calendar: a sine over twelve months peaking
// in PeakMonth.
type SeasonalPattern struct {
	Amplitude float64
	PeakMonth int
}

func (p *SeasonalPattern) Apply(base float64, period models.Period) float64 {
	amplitude := p.Amplitude
	if amplitude == 0 {
		amplitude = 0.15
	}
	peak := p.PeakMonth
	if peak == 0 {
		peak = 5
	}
	phase := float64(period.Month-peak) / 12 * 2 * math.Pi
	return base * (1 + amplitude*math.Cos(phase))
}

func (p *SeasonalPattern) Name() string {
	return "seasonal"
}

// GradualRisePattern grows PctPerMonth from Start, capped at MaxPct.
type GradualRisePattern struct {
	Start       models.Period
	PctPerMonth float64
	MaxPct      float64
}

func (p *GradualRisePattern) Apply(base float64, period models.Period) float64 {
	if p.Start.Year == 0 || period.Before(p.Start) {
		return base
	}
	perMonth := p.PctPerMonth
	if perMonth == 0 {
		perMonth = 5
	}
	maxPct := p.MaxPct
	if maxPct == 0 {
		maxPct = 60
	}
	months := float64(period.Key() - p.Start.Key())
	return base * (1 + math.Min(months*perMonth, maxPct)/100)
}

func (p *GradualRisePattern) Name() string {
	return "gradual_rise"
}

// RandomPattern scales the base by a factor in [1-Spread, 1+Spread].
type RandomPattern struct {
	rng    *rand.Rand
	Spread float64
}

func NewRandomPattern(seed int64, spread float64) *RandomPattern {
	if spread <= 0 {
		spread = 0.2
	}
	return &RandomPattern{rng: rand.New(rand.NewSource(seed)), Spread: spread}
}

func (p *RandomPattern) Apply(base float64, _ models.Period) float64 {
	return base * (1 - p.Spread + 2*p.Spread*p.rng.Float64())
}

func (p *RandomPattern) Name() string {
	return "random"
}
