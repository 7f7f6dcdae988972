package equilibrium

import (
	"context"
	"fmt"
	"math"

	"git.fiblab.net/sim/tripchain/v2/engine/algo"
	"git.fiblab.net/sim/tripchain/v2/engine/capacity"
	"git.fiblab.net/sim/tripchain/v2/engine/demand"
	"git.fiblab.net/sim/tripchain/v2/engine/destination"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("module", "equilibrium")

// 出行链抽样的哈希键
const CHAIN_SAMPLE_KEY = 0x636861696e

// State 需求群体在某次迭代的日程，第0次迭代为全天在家
type State struct {
	Iteration   int
	MotiveSeqID uint32
	// 每一步活动的小区，全天在家时为空
	Destinations []int32
	Utility      float64
	NPersons     float64
}

func (s State) StayHome() bool {
	return s.MotiveSeqID == 0
}

type Options struct {
	MaxIterations int
	Workers       int
	AnchorPenalty float64
	Sampler       destination.Sampler
	// 群体的可用出行方式过滤
	Allowed func(g demand.Group) func(mode string) bool
}

// Loop 均衡迭代，唯一写入容量模型的组件
type Loop struct {
	demand    *demand.Model
	capacity  *capacity.Model
	allocator *destination.Allocator
	opts      Options

	groups    []demand.Group
	chains    []*demand.Chain // 每个群体抽样得到的出行链，nil表示没有可选出行链
	best      []State
	lineage   [][]State
	committed []map[capacity.SinkKey]float64
	evaluated []uint64 // 上次评估时的容量版本
	iteration int
}

func NewLoop(d *demand.Model, c *capacity.Model, a *destination.Allocator, opts Options) (*Loop, error) {
	if opts.MaxIterations < 1 {
		return nil, fmt.Errorf("%w: max iterations must be positive", algo.ErrInvalidParameter)
	}
	if opts.Allowed == nil {
		opts.Allowed = func(demand.Group) func(string) bool { return nil }
	}
	l := &Loop{demand: d, capacity: c, allocator: a, opts: opts, groups: d.Groups()}
	l.Reset()
	return l, nil
}

// Reset 恢复容量并为每个群体装入全天在家的基准状态
func (l *Loop) Reset() {
	l.capacity.Reset()
	n := len(l.groups)
	l.chains = make([]*demand.Chain, n)
	l.best = make([]State, n)
	l.lineage = make([][]State, n)
	l.committed = make([]map[capacity.SinkKey]float64, n)
	l.evaluated = make([]uint64, n)
	l.iteration = 0
	for i, g := range l.groups {
		l.chains[i] = l.sampleChain(g)
		l.best[i] = State{
			MotiveSeqID: 0,
			Utility:     l.demand.StayHomeUtility(g.CSP),
			NPersons:    g.NPersons,
		}
		l.lineage[i] = []State{l.best[i]}
		l.committed[i] = make(map[capacity.SinkKey]float64)
	}
}

// 按出行链概率为群体抽样一个目的序列
func (l *Loop) sampleChain(g demand.Group) *demand.Chain {
	chains := l.demand.ChainsFor(g)
	if len(chains) == 0 || g.NPersons <= 0 {
		return nil
	}
	weights := lo.Map(chains, func(c *demand.Chain, _ int) float64 { return c.Probability })
	ids := lo.Map(chains, func(c *demand.Chain, _ int) int32 { return int32(c.Sequence.ID) })
	i, ok := l.opts.Sampler.Choose(weights, ids, uint64(g.ID), CHAIN_SAMPLE_KEY)
	if !ok {
		return nil
	}
	return chains[i]
}

type evaluation struct {
	changed    bool
	state      State
	occupation map[capacity.SinkKey]float64
	// 当前最优状态在当前容量下的效用
	rescored float64
}

// Step 执行一次迭代，返回状态发生变化的群体数
func (l *Loop) Step(ctx context.Context) (int, error) {
	l.iteration++
	epoch := l.capacity.Epoch()
	evals := make([]*evaluation, len(l.groups))

	g, ctx := errgroup.WithContext(ctx)
	if l.opts.Workers > 0 {
		g.SetLimit(l.opts.Workers)
	}
	for i := range l.groups {
		if l.chains[i] == nil || l.evaluated[i] == epoch {
			continue
		}
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			evals[i] = l.evaluate(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	// 迭代结束后统一提交容量占用
	batch := make(map[capacity.SinkKey]float64)
	changed := 0
	for i, e := range evals {
		if e == nil {
			continue
		}
		l.evaluated[i] = epoch
		l.best[i].Utility = e.rescored
		if !e.changed {
			continue
		}
		changed++
		l.best[i] = e.state
		l.lineage[i] = append(l.lineage[i], e.state)
		for k, occ := range e.occupation {
			if delta := occ - l.committed[i][k]; delta > 0 {
				batch[k] += delta
				l.committed[i][k] = occ
			}
		}
	}
	committed := l.capacity.Apply(batch)
	log.Infof("iteration %d: %d groups changed, committed %.2f", l.iteration, changed, committed)
	return changed, nil
}

func (l *Loop) evaluate(i int) *evaluation {
	grp := l.groups[i]
	chain := l.chains[i]
	allowed := l.opts.Allowed(grp)
	best := l.best[i]
	e := &evaluation{rescored: best.Utility}
	if !best.StayHome() {
		if u, ok := l.utility(grp, chain, best.Destinations, allowed); ok {
			e.rescored = u
		}
	}

	traveler := destination.Traveler{GroupID: grp.ID, Home: grp.HomeZone, NPersons: grp.NPersons, Allowed: allowed}
	zones, err := l.allocator.SampleSequence(traveler, chain.Sequence, l.demand.HomeMotive, l.opts.AnchorPenalty, l.opts.Sampler)
	if err != nil {
		log.Debugf("group %d keeps its state: %v", grp.ID, err)
		return e
	}
	u, ok := l.utility(grp, chain, zones, allowed)
	if !ok || u <= e.rescored+algo.EPS {
		return e
	}
	e.changed = true
	e.state = State{
		Iteration:    l.iteration,
		MotiveSeqID:  chain.Sequence.ID,
		Destinations: zones,
		Utility:      u,
		NPersons:     grp.NPersons,
	}
	e.occupation = l.occupation(grp, chain, zones)
	return e
}

// 日程效用 = 活动效用 + 过夜效用 - 出行成本
func (l *Loop) utility(g demand.Group, c *demand.Chain, zones []int32, allowed func(string) bool) (float64, bool) {
	last := c.Sequence.Len() - 1
	u := 0.0
	prev := g.HomeZone
	for i, z := range zones {
		motive := c.Sequence.Motives[i]
		trip, ok := l.allocator.TripCost(prev, z, allowed)
		if !ok {
			return math.Inf(-1), false
		}
		u -= trip
		if i == last {
			u += l.demand.HomeNightUtility(g.CSP, c.Durations[i])
		} else {
			u += l.demand.ActivityUtility(g.CSP, motive, c.Durations[i], l.capacity.SaturationFactor(z, motive))
		}
		prev = z
	}
	return u, true
}

// 日程在各容量点上的占用 = 人数 * 活动时长
func (l *Loop) occupation(g demand.Group, c *demand.Chain, zones []int32) map[capacity.SinkKey]float64 {
	occ := make(map[capacity.SinkKey]float64)
	for i := 0; i < c.Sequence.Len()-1; i++ {
		k := capacity.SinkKey{Zone: zones[i], Motive: c.Sequence.Motives[i]}
		if _, ok := l.capacity.Sink(k.Zone, k.Motive); ok {
			occ[k] += g.NPersons * c.Durations[i]
		}
	}
	return occ
}

// Outcome 均衡结果
type Outcome struct {
	Groups     []demand.Group
	Best       []State
	Lineage    [][]State
	Iterations int
	Converged  bool
}

// Run 迭代直到没有群体改变状态；超过次数上限时返回结果与ErrNonConvergence
func (l *Loop) Run(ctx context.Context) (*Outcome, error) {
	converged := false
	for l.iteration < l.opts.MaxIterations {
		changed, err := l.Step(ctx)
		if err != nil {
			return nil, err
		}
		if changed == 0 {
			converged = true
			break
		}
	}
	out := l.Outcome(converged)
	if !converged {
		log.Warnf("no convergence after %d iterations", l.iteration)
		return out, fmt.Errorf("after %d iterations: %w", l.iteration, algo.ErrNonConvergence)
	}
	log.Infof("converged after %d iterations", l.iteration)
	return out, nil
}

func (l *Loop) Outcome(converged bool) *Outcome {
	return &Outcome{
		Groups:     l.groups,
		Best:       append([]State(nil), l.best...),
		Lineage:    l.lineage,
		Iterations: l.iteration,
		Converged:  converged,
	}
}

func (l *Loop) Iteration() int {
	return l.iteration
}
