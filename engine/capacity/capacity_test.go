package capacity_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"git.fiblab.net/sim/tripchain/v2/config"
	"git.fiblab.net/sim/tripchain/v2/engine/algo"
	"git.fiblab.net/sim/tripchain/v2/engine/capacity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 目的: 0=home 1=work 2=other(无容量约束)
type fakeDemand struct{}

var motives = []string{"home", "work", "other"}

func (fakeDemand) MotiveID(name string) (int, bool) {
	for i, m := range motives {
		if m == name {
			return i, true
		}
	}
	return 0, false
}

func (fakeDemand) MotiveConfig(motive int) config.MotiveConfig {
	c := config.DefaultMotive(motives[motive])
	c.HasOpportunities = motive == 1
	c.SinkSaturationCoeff = 2
	return c
}

func (fakeDemand) TotalDuration(motive int) float64 {
	return 100
}

func newModel(t *testing.T) *capacity.Model {
	m, err := capacity.New(fakeDemand{}, []capacity.OpportunityInput{
		{Zone: 2, Motive: "work", Volume: 30},
		{Zone: 1, Motive: "work", Volume: 10},
		{Zone: 2, Motive: "work", Volume: 10},
		{Zone: 1, Motive: "other", Volume: 10},
		{Zone: 1, Motive: "school", Volume: 10},
	})
	require.NoError(t, err)
	return m
}

func TestNew(t *testing.T) {
	m := newModel(t)
	sinks := m.Sinks(1)
	require.Len(t, sinks, 2)
	// 按区域排序，容量 = 份额*总时长*系数
	assert.Equal(t, int32(1), sinks[0].Zone)
	assert.InDelta(t, 0.2*100*2, sinks[0].Capacity, 1e-9)
	assert.InDelta(t, 0.8*100*2, sinks[1].Capacity, 1e-9)
	assert.Equal(t, sinks[1].Capacity, sinks[1].Available)
	assert.Equal(t, 1.0, sinks[1].K)

	assert.True(t, m.HasSinks(1))
	assert.False(t, m.HasSinks(2))
	assert.Equal(t, 1.0, m.SaturationFactor(5, 2))

	_, err := capacity.New(fakeDemand{}, []capacity.OpportunityInput{{Zone: 1, Motive: "work", Volume: -1}})
	assert.True(t, errors.Is(err, algo.ErrInvalidParameter))
}

func TestDecrementClamped(t *testing.T) {
	m := newModel(t)
	assert.Equal(t, 0.0, m.Decrement(1, 1, -5))
	assert.InDelta(t, 30.0, m.Decrement(1, 1, 30), 1e-9)
	assert.InDelta(t, 10.0, m.Decrement(1, 1, 30), 1e-9)
	s, _ := m.Sink(1, 1)
	assert.Equal(t, 0.0, s.Available)
	assert.Equal(t, 0.0, m.Decrement(9, 1, 1))
}

func TestAvailableBounds(t *testing.T) {
	m := newModel(t)
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		if i%7 == 0 {
			m.Apply(map[capacity.SinkKey]float64{{Zone: 2, Motive: 1}: r.Float64()*50 - 10})
		} else {
			m.Decrement(int32(1+r.Intn(2)), 1, r.NormFloat64()*20)
		}
		for _, s := range m.Sinks(1) {
			assert.GreaterOrEqual(t, s.Available, 0.0)
			assert.LessOrEqual(t, s.Available, s.Capacity)
			assert.GreaterOrEqual(t, s.K, 0.0)
			assert.LessOrEqual(t, s.K, 1.0)
		}
	}
	m.Reset()
	for _, s := range m.Sinks(1) {
		assert.Equal(t, s.Capacity, s.Available)
		assert.Equal(t, 1.0, s.K)
	}
}

func TestApply(t *testing.T) {
	m := newModel(t)
	epoch := m.Epoch()
	committed := m.Apply(map[capacity.SinkKey]float64{
		{Zone: 1, Motive: 1}: 40,
		{Zone: 2, Motive: 1}: 80,
		{Zone: 2, Motive: 2}: 80,
	})
	assert.InDelta(t, 120.0, committed, 1e-9)
	assert.Greater(t, m.Epoch(), epoch)

	// 占满: k = 1 - 1/1.5^4
	assert.InDelta(t, 1-1/math.Pow(1.5, 4), m.SaturationFactor(1, 1), 1e-9)
	// 占用一半
	assert.InDelta(t, 1-math.Pow(0.5, 4)/math.Pow(1.5, 4), m.SaturationFactor(2, 1), 1e-9)

	ratios := m.OccupationRatios()
	assert.Equal(t, 0.0, ratios[capacity.SinkKey{Zone: 1, Motive: 1}])
	assert.InDelta(t, 0.5, ratios[capacity.SinkKey{Zone: 2, Motive: 1}], 1e-9)

	// 没有实际变化时版本不变
	epoch = m.Epoch()
	m.Apply(map[capacity.SinkKey]float64{{Zone: 1, Motive: 1}: 5})
	assert.Equal(t, epoch, m.Epoch())
}
