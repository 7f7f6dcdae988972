package engine_test

import (
	"context"
	"errors"
	"testing"

	"git.fiblab.net/sim/tripchain/v2/config"
	"git.fiblab.net/sim/tripchain/v2/engine"
	"git.fiblab.net/sim/tripchain/v2/engine/algo"
	"git.fiblab.net/sim/tripchain/v2/engine/capacity"
	"git.fiblab.net/sim/tripchain/v2/engine/cost"
	"git.fiblab.net/sim/tripchain/v2/engine/demand"
	"git.fiblab.net/sim/tripchain/v2/engine/destination"
	"git.fiblab.net/sim/tripchain/v2/scenario"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(maxIterations int) *config.Config {
	cfg := config.Default()
	cfg.MaxIterations = maxIterations
	cfg.StayHomeUtilityCoeff = 0.5
	cfg.Seed = 11
	cfg.Workers = 2
	home := config.DefaultMotive("home")
	home.HasOpportunities = false
	work := config.DefaultMotive("work")
	work.IsAnchor = true
	work.Alpha, work.Beta = 0.3, 0.7
	shopping := config.DefaultMotive("shopping")
	shopping.HasOpportunities = false
	shopping.ValueOfTime = 5
	cfg.Motives = []config.MotiveConfig{home, work, shopping}
	cfg.Modes = []config.ModeConfig{
		{Name: "walk", CostOfTime: 10},
		{Name: "car", Vehicle: "car", Constant: 0.5, CostOfDistance: 0.2},
	}
	return &cfg
}

func testScenario() *scenario.Scenario {
	s := &scenario.Scenario{
		Zones: []destination.ZoneInput{
			{ID: 0, X: 0, Radius: 1000},
			{ID: 1, X: 3000, Radius: 1000},
			{ID: 2, X: 6000, Radius: 1000},
		},
		Opportunities: []capacity.OpportunityInput{
			{Zone: 1, Motive: "work", Volume: 100},
			{Zone: 2, Motive: "work", Volume: 50},
		},
		Chains: []demand.ChainInput{
			{CSP: "worker", CarBucket: "0", Motives: []string{"work", "home"}, Durations: []float64{8, 14}, Probability: 1},
			{CSP: "worker", CarBucket: "1", Motives: []string{"work", "shopping", "home"}, Durations: []float64{8, 1, 13}, Probability: 0.6},
			{CSP: "worker", CarBucket: "1", Motives: []string{"work", "home"}, Durations: []float64{8, 14}, Probability: 0.4},
		},
	}
	for i := int32(1); i <= 8; i++ {
		bucket := "1"
		if i%2 == 0 {
			bucket = "0"
		}
		s.Groups = append(s.Groups, demand.GroupInput{ID: i, HomeZone: i % 3, CSP: "worker", CarBucket: bucket, NPersons: 25})
	}
	for from := int32(0); from < 3; from++ {
		for to := int32(0); to < 3; to++ {
			d := 3.0 * float64(lo.Max([]int32{from - to, to - from}))
			if from == to {
				d = 1
			}
			s.Costs = append(s.Costs,
				scenario.CostInput{From: from, To: to, Mode: "walk", Time: d / 5, Distance: d},
				scenario.CostInput{From: from, To: to, Mode: "car", Time: d / 30, Distance: d},
			)
		}
	}
	return s
}

func TestRun(t *testing.T) {
	e, err := engine.New(testConfig(50), testScenario())
	require.NoError(t, err)
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Diagnostic.Converged)
	assert.Zero(t, res.Diagnostic.Unassigned)
	require.Len(t, res.States, 8)

	legs := 0.0
	for _, s := range res.States {
		require.NotZero(t, s.MotiveSeqID)
		require.NotZero(t, s.DestSeqID)
		require.NotZero(t, s.ModeSeqID)
		seq, ok := e.Demand().Sequence(s.MotiveSeqID)
		require.True(t, ok)
		legs += float64(seq.Len()) * s.NPersons
	}
	assert.InDelta(t, legs, res.TotalFlow(), 1e-9)

	for od, shares := range res.ModeShares {
		assert.InDelta(t, 1.0, lo.Sum(lo.Values(shares)), 1e-9, od)
	}
	for k, r := range res.Occupation {
		assert.Equal(t, "work", k.Motive)
		assert.GreaterOrEqual(t, r, 0.0)
		assert.LessOrEqual(t, r, 1.0)
	}
	// 有工作出行量流向容量点
	work := lo.PickBy(res.Flows, func(k engine.FlowKey, _ float64) bool { return k.Motive == "work" })
	assert.InDelta(t, 8*25.0, lo.Sum(lo.Values(work)), 1e-9)
}

func TestRunNoCarGroups(t *testing.T) {
	sc := testScenario()
	for i := range sc.Groups {
		sc.Groups[i].CarBucket = "0"
	}
	e, err := engine.New(testConfig(50), sc)
	require.NoError(t, err)
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	for _, shares := range res.ModeShares {
		assert.Zero(t, shares["car"])
		assert.InDelta(t, 1.0, shares["walk"], 1e-9)
	}
}

func TestRunRepeatableAndCostUpdate(t *testing.T) {
	e, err := engine.New(testConfig(50), testScenario())
	require.NoError(t, err)
	first, err := e.Run(context.Background())
	require.NoError(t, err)
	second, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.States, second.States)
	assert.Equal(t, first.Flows, second.Flows)

	// 汽车变得很慢时汽车份额下降
	cfg := testConfig(50)
	cfg.Congestion = true
	e, err = engine.New(cfg, testScenario())
	require.NoError(t, err)
	before, err := e.Run(context.Background())
	require.NoError(t, err)
	var slow []cost.Entry
	for from := int32(0); from < 3; from++ {
		for to := int32(0); to < 3; to++ {
			slow = append(slow, cost.Entry{Key: cost.Key{From: from, To: to, Mode: "car"}, Cost: cost.Cost{Time: 10, Distance: 500}})
		}
	}
	require.NoError(t, e.SetCosts(slow))
	after, err := e.Run(context.Background())
	require.NoError(t, err)
	carShare := func(r *engine.Result) float64 {
		return lo.SumBy(lo.Values(r.ModeShares), func(m map[string]float64) float64 { return m["car"] })
	}
	assert.Less(t, carShare(after), carShare(before))
}

func TestRunNonConvergence(t *testing.T) {
	e, err := engine.New(testConfig(1), testScenario())
	require.NoError(t, err)
	res, err := e.Run(context.Background())
	assert.True(t, errors.Is(err, algo.ErrNonConvergence))
	require.NotNil(t, res)
	assert.False(t, res.Diagnostic.Converged)
	assert.Equal(t, 1, res.Diagnostic.Iterations)
	assert.NotEmpty(t, res.Flows)
}

func TestSourceProbabilities(t *testing.T) {
	e, err := engine.New(testConfig(50), testScenario())
	require.NoError(t, err)
	d, err := e.SourceProbabilities(1, "work")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, lo.Sum(d.Probs), 1e-9)

	_, err = e.SourceProbabilities(1, "school")
	assert.True(t, errors.Is(err, algo.ErrInvalidParameter))
}

func TestNewInvalid(t *testing.T) {
	cfg := testConfig(10)
	sc := testScenario()
	sc.Costs = append(sc.Costs, scenario.CostInput{From: 0, To: 1, Mode: "plane"})
	_, err := engine.New(cfg, sc)
	assert.True(t, errors.Is(err, algo.ErrInvalidParameter))
}
