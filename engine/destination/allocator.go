package destination

import (
	"fmt"
	"sort"

	"git.fiblab.net/sim/tripchain/v2/config"
	"git.fiblab.net/sim/tripchain/v2/engine/algo"
	"git.fiblab.net/sim/tripchain/v2/engine/capacity"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "destination")

// CostPerKm 每公里广义成本的来源
type CostPerKm interface {
	CostPerKm(from, to int32, allowed func(mode string) bool) (float64, bool)
}

// Motives 目的参数的来源
type Motives interface {
	MotiveConfig(motive int) config.MotiveConfig
}

// Options 分配器参数
type Options struct {
	// 最大出行距离（km），0表示不限制
	MaxDistance float64
	// 缺少OD成本时的每公里成本
	DefaultCostPerKm  float64
	CostBinResolution float64
	ProbCutoff        float64
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxDistance:       cfg.MaxDistance,
		DefaultCostPerKm:  cfg.DefaultCostPerKm,
		CostBinResolution: cfg.CostBinResolution,
		ProbCutoff:        cfg.DestProbCutoff,
	}
}

// Allocator 目的地分配器，只读取容量
type Allocator struct {
	zones   *Zones
	costs   CostPerKm
	sinks   capacity.Reader
	motives Motives
	opts    Options
}

func NewAllocator(zones *Zones, costs CostPerKm, sinks capacity.Reader, motives Motives, opts Options) (*Allocator, error) {
	if opts.DefaultCostPerKm <= 0 || opts.CostBinResolution <= 0 || opts.ProbCutoff <= 0 || opts.ProbCutoff > 1 {
		return nil, fmt.Errorf("%w: allocator options %+v", algo.ErrInvalidParameter, opts)
	}
	return &Allocator{zones: zones, costs: costs, sinks: sinks, motives: motives, opts: opts}, nil
}

func (a *Allocator) Zones() *Zones {
	return a.zones
}

// TripCost 两小区间的出行成本 = 距离 * 每公里成本，缺少OD成本时使用默认每公里成本
func (a *Allocator) TripCost(from, to int32, allowed func(mode string) bool) (float64, bool) {
	dist, ok := a.zones.Distance(from, to)
	if !ok {
		return 0, false
	}
	perKm, ok := a.costs.CostPerKm(from, to, allowed)
	if !ok {
		perKm = a.opts.DefaultCostPerKm
	}
	return dist * perKm, true
}

// Candidates 返回从origin出发某目的的候选目的地
// 受容量约束的目的使用可用容量作为机会数量，成本除以饱和系数；其余目的每个小区机会数量为1
func (a *Allocator) Candidates(origin int32, motive int, allowed func(mode string) bool) []Candidate {
	type raw struct {
		zone   int32
		volume float64
		k      float64
	}
	var targets []raw
	if a.motives.MotiveConfig(motive).HasOpportunities {
		targets = lo.FilterMap(a.sinks.Sinks(motive), func(s capacity.Sink, _ int) (raw, bool) {
			return raw{zone: s.Zone, volume: s.Available, k: s.K}, s.Available > 0 && s.K > 0
		})
	} else {
		targets = lo.Map(a.zones.IDs(), func(id int32, _ int) raw {
			return raw{zone: id, volume: 1, k: 1}
		})
	}
	cands := make([]Candidate, 0, len(targets))
	for _, t := range targets {
		if a.opts.MaxDistance > 0 {
			if dist, ok := a.zones.Distance(origin, t.zone); !ok || dist > a.opts.MaxDistance {
				continue
			}
		}
		c, ok := a.TripCost(origin, t.zone, allowed)
		if !ok {
			continue
		}
		cands = append(cands, Candidate{Zone: t.zone, Volume: t.volume, Cost: c / t.k})
	}
	return cands
}

// SinkProbabilities 从origin出发选择各目的地的概率，候选为空时返回空分布与ErrSaturatedDestinationSet
func (a *Allocator) SinkProbabilities(origin int32, motive int, mi float64, allowed func(mode string) bool) (Distribution, error) {
	cfg := a.motives.MotiveConfig(motive)
	d, err := Distribute(mi, cfg.Alpha, cfg.Beta, a.Candidates(origin, motive, allowed), a.opts.CostBinResolution, a.opts.ProbCutoff)
	if err != nil {
		log.Debugf("no reachable destination from zone %d for motive %s", origin, cfg.Name)
		return Distribution{}, fmt.Errorf("origin %d motive %s: %w", origin, cfg.Name, err)
	}
	return d, nil
}

// Source 来源小区及其出行量
type Source struct {
	Zone   int32
	Volume float64
}

// SourceProbabilities 给定目的地，各来源小区的概率 ∝ p(dest|origin) * m_i
func (a *Allocator) SourceProbabilities(dest int32, motive int, sources []Source, allowed func(mode string) bool) (Distribution, error) {
	var (
		zones []int32
		flows []float64
	)
	for _, s := range sources {
		if s.Volume <= 0 {
			continue
		}
		if a.opts.MaxDistance > 0 {
			if dist, ok := a.zones.Distance(s.Zone, dest); !ok || dist > a.opts.MaxDistance {
				continue
			}
		}
		d, err := a.SinkProbabilities(s.Zone, motive, s.Volume, allowed)
		if err != nil {
			continue
		}
		if p := d.Prob(dest); p > 0 {
			zones = append(zones, s.Zone)
			flows = append(flows, p*s.Volume)
		}
	}
	if !algo.Normalize(flows) {
		return Distribution{}, fmt.Errorf("destination %d: %w", dest, algo.ErrSaturatedDestinationSet)
	}
	order := make([]int, len(zones))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return flows[order[i]] > flows[order[j]] })
	return Distribution{
		Zones: lo.Map(order, func(i int, _ int) int32 { return zones[i] }),
		Probs: lo.Map(order, func(i int, _ int) float64 { return flows[i] }),
	}, nil
}
