package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"time"

	"git.fiblab.net/sim/tripchain/v2/config"
	"git.fiblab.net/sim/tripchain/v2/engine"
	"git.fiblab.net/sim/tripchain/v2/engine/algo"
	"git.fiblab.net/sim/tripchain/v2/engine/capacity"
	"git.fiblab.net/sim/tripchain/v2/engine/demand"
	"git.fiblab.net/sim/tripchain/v2/engine/destination"
	"git.fiblab.net/sim/tripchain/v2/scenario"
	"github.com/sirupsen/logrus"
)

var (
	benchmarkZones  = flag.Int("benchmark.zones", 100, "the zone count of the synthetic scenario, laid out on a square grid")
	benchmarkGroups = flag.Int("benchmark.groups", 2000, "the demand group count of the synthetic scenario")
	benchmarkSeed   = flag.Int64("benchmark.seed", 0, "the seed for benchmark")
	benchmarkCPU    = flag.Int("benchmark.cpu", 1, "the cpu count for benchmark")
)

// 网格间距（米）
const BENCHMARK_GRID_SPACING = 2000.0

// 随机生成网格状的合成场景，出行方式取配置中的全部方式
func syntheticScenario(cfg *config.Config, nZones, nGroups int, seed int64) *scenario.Scenario {
	e := rand.New(rand.NewSource(seed))
	side := int(math.Ceil(math.Sqrt(float64(nZones))))
	sc := &scenario.Scenario{}
	for i := 0; i < nZones; i++ {
		sc.Zones = append(sc.Zones, destination.ZoneInput{
			ID:     int32(i),
			X:      float64(i%side) * BENCHMARK_GRID_SPACING,
			Y:      float64(i/side) * BENCHMARK_GRID_SPACING,
			Radius: BENCHMARK_GRID_SPACING / 2,
		})
	}
	for _, from := range sc.Zones {
		for _, to := range sc.Zones {
			dist := math.Hypot(from.X-to.X, from.Y-to.Y)/1000 + 0.5
			for _, m := range cfg.Modes {
				speed := 5.0
				if m.Vehicle != "" {
					speed = 30
				}
				sc.Costs = append(sc.Costs, scenario.CostInput{
					From: from.ID, To: to.ID, Mode: m.Name,
					Time: dist / speed, Distance: dist,
				})
				if m.ReturnMode != "" {
					sc.Costs = append(sc.Costs, scenario.CostInput{
						From: from.ID, To: to.ID, Mode: m.ReturnMode,
						Time: dist / speed, Distance: dist,
					})
				}
			}
		}
	}
	var anchors, others []string
	for _, m := range cfg.Motives {
		switch {
		case m.Name == cfg.HomeMotive:
		case m.IsAnchor:
			anchors = append(anchors, m.Name)
		default:
			others = append(others, m.Name)
		}
		if m.HasOpportunities && m.Name != cfg.HomeMotive {
			for _, z := range sc.Zones {
				sc.Opportunities = append(sc.Opportunities, capacity.OpportunityInput{
					Zone: z.ID, Motive: m.Name, Volume: e.ExpFloat64() * 100,
				})
			}
		}
	}
	csps := []string{"a", "b"}
	buckets := []string{demand.NO_CAR_BUCKET, "1"}
	for _, csp := range csps {
		for _, bucket := range buckets {
			for _, a := range anchors {
				sc.Chains = append(sc.Chains, demand.ChainInput{
					CSP: csp, CarBucket: bucket, Motives: []string{a, cfg.HomeMotive},
					Durations: []float64{7 + e.Float64()*2, 14}, Probability: 1,
				})
				for _, o := range others {
					sc.Chains = append(sc.Chains, demand.ChainInput{
						CSP: csp, CarBucket: bucket, Motives: []string{a, o, cfg.HomeMotive},
						Durations: []float64{8, 0.5 + e.Float64(), 12}, Probability: 0.5,
					})
				}
			}
			for _, o := range others {
				sc.Chains = append(sc.Chains, demand.ChainInput{
					CSP: csp, CarBucket: bucket, Motives: []string{o, cfg.HomeMotive},
					Durations: []float64{1 + e.Float64(), 20}, Probability: 0.3,
				})
			}
		}
	}
	for i := 0; i < nGroups; i++ {
		sc.Groups = append(sc.Groups, demand.GroupInput{
			ID:        int32(i),
			HomeZone:  int32(e.Intn(nZones)),
			CSP:       csps[e.Intn(len(csps))],
			CarBucket: buckets[e.Intn(len(buckets))],
			NPersons:  1 + float64(e.Intn(50)),
		})
	}
	return sc
}

func runBenchmark(ctx context.Context, cfg *config.Config) {
	log.Logger.SetLevel(logrus.WarnLevel)
	runtime.GOMAXPROCS(*benchmarkCPU)
	cfg.Workers = *benchmarkCPU
	sc := syntheticScenario(cfg, *benchmarkZones, *benchmarkGroups, *benchmarkSeed)

	start := time.Now()
	e, err := engine.New(cfg, sc)
	if err != nil {
		log.Fatalf("benchmark failed: %v", err)
	}
	initCost := time.Since(start)
	res, err := e.Run(ctx)
	if err != nil && !errors.Is(err, algo.ErrNonConvergence) {
		log.Fatalf("benchmark failed: %v", err)
	}
	runCost := time.Since(start) - initCost
	log.Error(
		"benchmark finished", "\n",
		"zones:", *benchmarkZones, "\n",
		"groups:", *benchmarkGroups, "\n",
		"init:", initCost, "\n",
		"run:", runCost, "\n",
		"iterations:", res.Diagnostic.Iterations, "\n",
		"converged:", res.Diagnostic.Converged, "\n",
		"unassigned:", res.Diagnostic.Unassigned, "\n",
		fmt.Sprintf("flow: %.1f", res.TotalFlow()), "\n",
	)
}
