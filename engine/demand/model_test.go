package demand_test

import (
	"errors"
	"math"
	"testing"

	"git.fiblab.net/sim/tripchain/v2/config"
	"git.fiblab.net/sim/tripchain/v2/engine/algo"
	"git.fiblab.net/sim/tripchain/v2/engine/demand"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.MaxIterations = 10
	cfg.Motives = []config.MotiveConfig{
		config.DefaultMotive("home"),
		config.DefaultMotive("work"),
		config.DefaultMotive("shopping"),
	}
	cfg.Motives[1].IsAnchor = true
	cfg.Modes = []config.ModeConfig{{Name: "walk", CostOfTime: 1}}
	return &cfg
}

func testInputs() ([]demand.GroupInput, []demand.ChainInput) {
	groups := []demand.GroupInput{
		{ID: 2, HomeZone: 1, CSP: "worker", CarBucket: "1", NPersons: 10},
		{ID: 1, HomeZone: 0, CSP: "worker", CarBucket: "0", NPersons: 20},
	}
	chains := []demand.ChainInput{
		{CSP: "worker", CarBucket: "1", Motives: []string{"work", "shopping", "home"}, Durations: []float64{8, 1, 12}, Probability: 0.5},
		{CSP: "worker", CarBucket: "1", Motives: []string{"work", "home"}, Durations: []float64{6, 14}, Probability: 0.5},
		{CSP: "worker", CarBucket: "0", Motives: []string{"shopping", "home"}, Durations: []float64{0.001, 20}, Probability: 1},
	}
	return groups, chains
}

func TestNewModel(t *testing.T) {
	groups, chains := testInputs()
	m, err := demand.NewModel(testConfig(), groups, chains)
	require.NoError(t, err)

	// 群体按id排序
	gs := m.Groups()
	require.Len(t, gs, 2)
	assert.Equal(t, int32(1), gs[0].ID)
	assert.False(t, gs[0].HasCar)
	assert.True(t, gs[1].HasCar)

	// 目的序列排序后编号，0为全天在家
	assert.Equal(t, 4, m.Sequences.Len())
	id, ok := m.Sequences.ID("shopping-home")
	assert.True(t, ok)
	assert.Equal(t, uint32(1), id)
	id, _ = m.Sequences.ID("work-home")
	assert.Equal(t, uint32(2), id)
	id, _ = m.Sequences.ID("work-shopping-home")
	assert.Equal(t, uint32(3), id)

	seq, ok := m.Sequence(3)
	require.True(t, ok)
	work, _ := m.Motives.ID("work")
	assert.Equal(t, []bool{true, false, false}, seq.Anchors)
	assert.Equal(t, work, seq.Motives[0])

	c := m.ChainsFor(gs[1])
	require.Len(t, c, 2)
	assert.Equal(t, uint32(2), c[0].Sequence.ID)
}

func TestDurations(t *testing.T) {
	groups, chains := testInputs()
	m, err := demand.NewModel(testConfig(), groups, chains)
	require.NoError(t, err)

	worker, _ := m.CSPs.ID("worker")
	work, _ := m.Motives.ID("work")
	shopping, _ := m.Motives.ID("shopping")
	assert.InDelta(t, 7.0, m.MeanDuration(worker, work), 1e-12)
	// (0.5*1 + 1*0.001) / 1.5
	assert.InDelta(t, (0.5+0.001)/1.5, m.MeanDuration(worker, shopping), 1e-12)
	// 过夜时长 (0.5*12 + 0.5*14 + 20) / 2
	assert.InDelta(t, 16.5, m.HomeNight(worker), 1e-12)

	// 总时长 = 人数*概率*时长
	assert.InDelta(t, 10*(0.5*8+0.5*6), m.TotalDuration(work), 1e-12)
	assert.InDelta(t, 10*0.5*1+20*0.001, m.TotalDuration(shopping), 1e-12)
}

func TestDurationFloor(t *testing.T) {
	groups := []demand.GroupInput{{ID: 1, CSP: "a", CarBucket: "0", NPersons: 1}}
	chains := []demand.ChainInput{
		{CSP: "a", CarBucket: "0", Motives: []string{"shopping", "home"}, Durations: []float64{0, 0}, Probability: 1},
	}
	m, err := demand.NewModel(testConfig(), groups, chains)
	require.NoError(t, err)
	shopping, _ := m.Motives.ID("shopping")
	assert.Equal(t, algo.MIN_DURATION_HOURS, m.MeanDuration(0, shopping))
	assert.Equal(t, algo.MIN_DURATION_HOURS, m.HomeNight(0))
}

func TestUtilities(t *testing.T) {
	groups, chains := testInputs()
	cfg := testConfig()
	m, err := demand.NewModel(cfg, groups, chains)
	require.NoError(t, err)
	worker, _ := m.CSPs.ID("worker")
	work, _ := m.Motives.ID("work")

	// c=1: mean*ln(d/(mean/e)) = mean*(ln(d/mean)+1)
	mean := m.MeanDuration(worker, work)
	vot := cfg.Motives[1].ValueOfTime
	assert.InDelta(t, vot*mean, m.ActivityUtility(worker, work, mean, 1), 1e-9)
	assert.InDelta(t, 0.5*vot*mean, m.ActivityUtility(worker, work, mean, 0.5), 1e-9)
	// 时长太短效用为0
	assert.Equal(t, 0.0, m.ActivityUtility(worker, work, 0.1, 1))
	assert.Equal(t, 0.0, m.ActivityUtility(worker, work, 0, 1))

	h := m.HomeNight(worker)
	assert.InDelta(t, cfg.Motives[0].ValueOfTime*h*(math.Log(24/h)+1), m.StayHomeUtility(worker), 1e-9)
	assert.Greater(t, m.HomeNightUtility(worker, 20), m.HomeNightUtility(worker, 10))
}

func TestNewModelErrors(t *testing.T) {
	groups, _ := testInputs()
	cases := map[string][]demand.ChainInput{
		"not ending at home": {{CSP: "worker", CarBucket: "1", Motives: []string{"work"}, Durations: []float64{8}, Probability: 1}},
		"duration mismatch":  {{CSP: "worker", CarBucket: "1", Motives: []string{"work", "home"}, Durations: []float64{8}, Probability: 1}},
		"unknown motive":     {{CSP: "worker", CarBucket: "1", Motives: []string{"school", "home"}, Durations: []float64{8, 1}, Probability: 1}},
		"negative prob":      {{CSP: "worker", CarBucket: "1", Motives: []string{"work", "home"}, Durations: []float64{8, 1}, Probability: -1}},
	}
	for name, chains := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := demand.NewModel(testConfig(), groups, chains)
			assert.True(t, errors.Is(err, algo.ErrInvalidParameter), err)
		})
	}

	_, err := demand.NewModel(testConfig(), []demand.GroupInput{{ID: 1, NPersons: -1}}, nil)
	assert.True(t, errors.Is(err, algo.ErrInvalidParameter))
	_, err = demand.NewModel(testConfig(), []demand.GroupInput{{ID: 1}, {ID: 1}}, nil)
	assert.True(t, errors.Is(err, algo.ErrInvalidParameter))
}
