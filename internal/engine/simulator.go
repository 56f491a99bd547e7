package engine

import (
	"fmt"
	"math"
	"math/rand/v2"
)

const (
	DefaultVolatility = 0.005 // 0.5% per tick
	DefaultPriceFloor = 0.01
)

// RandSource yields uniform values in [0, 1). *rand.Rand satisfies it.
type RandSource interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// PriceSimulator produces a bounded multiplicative random walk:
// next = max(floor, prev * (1 + u)), u ~ U[-volatility, +volatility].
type PriceSimulator struct {
	volatility float64
	floor      float64
	rng        RandSource
}

// NewPriceSimulator validates the walk parameters. A nil rng uses the
// process-wide unseeded source.
func NewPriceSimulator(volatility, floor float64, rng RandSource) (*PriceSimulator, error) {
	if volatility < 0 || volatility >= 1 || math.IsNaN(volatility) {
		return nil, fmt.Errorf("volatility %v outside [0, 1)", volatility)
	}
	if floor <= 0 || math.IsNaN(floor) {
		return nil, fmt.Errorf("price floor %v must be positive", floor)
	}
	if rng == nil {
		rng = globalRand{}
	}
	return &PriceSimulator{volatility: volatility, floor: floor, rng: rng}, nil
}

// Next returns the price that follows prev.
func (s *PriceSimulator) Next(prev float64) float64 {
	u := s.rng.Float64()*2*s.volatility - s.volatility
	next := prev * (1 + u)
	if math.IsNaN(next) || next < s.floor {
		next = s.floor
	}
	return next
}

func (s *PriceSimulator) Volatility() float64 { return s.volatility }
func (s *PriceSimulator) Floor() float64      { return s.floor }
