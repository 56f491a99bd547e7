package engine

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedRand struct{ v float64 }

func (f fixedRand) Float64() float64 { return f.v }

func TestNextPriceBounds(t *testing.T) {
	low, err := NewPriceSimulator(0.005, DefaultPriceFloor, fixedRand{0})
	require.NoError(t, err)
	assert.InDelta(t, 99.5, low.Next(100), 1e-9)

	mid, err := NewPriceSimulator(0.005, DefaultPriceFloor, fixedRand{0.5})
	require.NoError(t, err)
	assert.InDelta(t, 100, mid.Next(100), 1e-9)

	high, err := NewPriceSimulator(0.005, DefaultPriceFloor, fixedRand{0.999999})
	require.NoError(t, err)
	assert.InDelta(t, 100.5, high.Next(100), 1e-4)
}

func TestNextPriceFloor(t *testing.T) {
	sim, err := NewPriceSimulator(0.5, 0.01, fixedRand{0})
	require.NoError(t, err)

	p := 1.0
	for i := 0; i < 100; i++ {
		p = sim.Next(p)
	}
	assert.Equal(t, 0.01, p)
}

func TestNewPriceSimulatorRejectsBadParams(t *testing.T) {
	_, err := NewPriceSimulator(-0.1, 0.01, nil)
	assert.Error(t, err)
	_, err = NewPriceSimulator(1, 0.01, nil)
	assert.Error(t, err)
	_, err = NewPriceSimulator(0.01, 0, nil)
	assert.Error(t, err)

	sim, err := NewPriceSimulator(0.01, 0.01, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.01, sim.Volatility())
	assert.Equal(t, 0.01, sim.Floor())
	assert.Greater(t, sim.Next(50), 0.0)
}

func TestNextPriceMovesBothWays(t *testing.T) {
	sim, err := NewPriceSimulator(DefaultVolatility, DefaultPriceFloor, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)

	up, down := 0, 0
	for i := 0; i < 10000; i++ {
		switch n := sim.Next(100); {
		case n > 100:
			up++
		case n < 100:
			down++
		}
	}
	// Symmetric perturbation: each side should land well inside 40-60%.
	assert.InDelta(t, 5000, up, 1000)
	assert.InDelta(t, 5000, down, 1000)
}
