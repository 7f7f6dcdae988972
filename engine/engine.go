package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"git.fiblab.net/sim/tripchain/v2/config"
	"git.fiblab.net/sim/tripchain/v2/engine/algo"
	"git.fiblab.net/sim/tripchain/v2/engine/capacity"
	"git.fiblab.net/sim/tripchain/v2/engine/cost"
	"git.fiblab.net/sim/tripchain/v2/engine/demand"
	"git.fiblab.net/sim/tripchain/v2/engine/destination"
	"git.fiblab.net/sim/tripchain/v2/engine/equilibrium"
	"git.fiblab.net/sim/tripchain/v2/engine/modeseq"
	"git.fiblab.net/sim/tripchain/v2/scenario"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "engine")

// 无车群体不能使用的交通工具
const CAR_VEHICLE = "car"

// 出行方式份额聚合时每个分片的群体数
const SHARE_CHUNK_SIZE = 256

type assignment struct {
	result modeseq.Result
	err    error
}

// Engine 需求分配与出行方式序列分配
type Engine struct {
	cfg       *config.Config
	catalog   *modeseq.Catalog
	costs     *cost.Table
	demand    *demand.Model
	capacity  *capacity.Model
	allocator *destination.Allocator
	loop      *equilibrium.Loop
	assigner  *modeseq.Assigner

	// 出行链 -> 出行方式序列分布，成本表版本变化时清空
	cache        *xsync.MapOf[string, assignment]
	cacheVersion uint64
}

func New(cfg *config.Config, sc *scenario.Scenario) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	catalog, err := modeseq.NewCatalog(cfg.Modes)
	if err != nil {
		return nil, err
	}
	costs := cost.NewTable(catalog.CostParams(), cfg.Congestion)
	if err := costs.Load(sc.CostEntries()); err != nil {
		return nil, err
	}
	dm, err := demand.NewModel(cfg, sc.Groups, sc.Chains)
	if err != nil {
		return nil, err
	}
	cm, err := capacity.New(dm, sc.Opportunities)
	if err != nil {
		return nil, err
	}
	zones, err := destination.NewZones(sc.Zones)
	if err != nil {
		return nil, err
	}
	allocator, err := destination.NewAllocator(zones, costs, cm, dm, destination.OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:       cfg,
		catalog:   catalog,
		costs:     costs,
		demand:    dm,
		capacity:  cm,
		allocator: allocator,
		cache:     xsync.NewMapOf[string, assignment](),
	}
	e.loop, err = equilibrium.NewLoop(dm, cm, allocator, equilibrium.Options{
		MaxIterations: cfg.MaxIterations,
		Workers:       workers,
		AnchorPenalty: cfg.AnchorPenalty,
		Sampler:       destination.Sampler{Seed: cfg.Seed},
		Allowed:       e.allowedModes,
	})
	if err != nil {
		return nil, err
	}
	e.assigner, err = modeseq.NewAssigner(catalog, costs, modeseq.Options{
		K:           cfg.KSequences,
		MaxHeapSize: cfg.MaxHeapSize,
		ProbCutoff:  cfg.ModeProbCutoff,
		Workers:     workers,
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) excludedVehicles(g demand.Group) []string {
	if g.HasCar {
		return nil
	}
	return []string{CAR_VEHICLE}
}

func (e *Engine) allowedModes(g demand.Group) func(mode string) bool {
	if g.HasCar {
		return nil
	}
	return func(mode string) bool {
		id, ok := e.catalog.ID(mode)
		return ok && e.catalog.Mode(id).Vehicle != CAR_VEHICLE
	}
}

// SetCosts 替换拥堵成本，下次Run时使用
func (e *Engine) SetCosts(entries []cost.Entry) error {
	return e.costs.SetCosts(entries)
}

func (e *Engine) Catalog() *modeseq.Catalog {
	return e.catalog
}

func (e *Engine) Demand() *demand.Model {
	return e.demand
}

// Run 从全天在家出发迭代到均衡，再为每个群体的出行链分配出行方式序列
// 未收敛时返回完整结果与ErrNonConvergence
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.loop.Reset()
	outcome, runErr := e.loop.Run(ctx)
	if runErr != nil && !errors.Is(runErr, algo.ErrNonConvergence) {
		return nil, runErr
	}
	assignments, err := e.assign(ctx, outcome)
	if err != nil {
		return nil, err
	}
	res := e.collect(outcome, assignments)
	return res, runErr
}

func chainZones(g demand.Group, s equilibrium.State) []int32 {
	return append([]int32{g.HomeZone}, s.Destinations...)
}

// 按出行链去重后批量分配，结果按链缓存
func (e *Engine) assign(ctx context.Context, out *equilibrium.Outcome) ([]*assignment, error) {
	if v := e.costs.Version(); v != e.cacheVersion {
		e.cache.Clear()
		e.cacheVersion = v
	}
	perGroup := make([]*assignment, len(out.Groups))
	var (
		reqs []modeseq.Request
		keys []string
	)
	pending := make(map[string]bool)
	for i, g := range out.Groups {
		s := out.Best[i]
		if s.StayHome() {
			continue
		}
		req := modeseq.Request{Zones: chainZones(g, s), ExcludedVehicles: e.excludedVehicles(g)}
		key := req.Key()
		if _, ok := e.cache.Load(key); ok || pending[key] {
			continue
		}
		pending[key] = true
		reqs = append(reqs, req)
		keys = append(keys, key)
	}
	if len(reqs) > 0 {
		results, errs, err := e.assigner.AssignBatch(ctx, reqs)
		if err != nil {
			return nil, err
		}
		for i, key := range keys {
			e.cache.Store(key, assignment{result: results[i], err: errs[i]})
		}
		log.Infof("assigned mode sequences for %d zone chains", len(reqs))
	}
	for i, g := range out.Groups {
		s := out.Best[i]
		if s.StayHome() {
			continue
		}
		req := modeseq.Request{Zones: chainZones(g, s), ExcludedVehicles: e.excludedVehicles(g)}
		if a, ok := e.cache.Load(req.Key()); ok {
			perGroup[i] = &a
		}
	}
	return perGroup, nil
}

func (e *Engine) collect(out *equilibrium.Outcome, assignments []*assignment) *Result {
	res := &Result{
		Flows:      make(map[FlowKey]float64),
		Occupation: make(map[SinkKey]float64),
		States:     make([]GroupState, len(out.Groups)),
		Diagnostic: Diagnostic{Iterations: out.Iterations, Converged: out.Converged},
	}

	destKeys := lo.FilterMap(out.Best, func(s equilibrium.State, _ int) (string, bool) {
		return zonesKey(s.Destinations), !s.StayHome()
	})
	modeKeys := lo.FilterMap(assignments, func(a *assignment, _ int) (string, bool) {
		if a == nil || a.err != nil || len(a.result.Sequences) == 0 {
			return "", false
		}
		return strings.Join(e.catalog.Names(a.result.Sequences[0].Modes), modeseq.MODE_SEP), true
	})
	res.DestinationSequences = algo.NewSequenceIndex()
	res.DestinationSequences.Assign(destKeys)
	res.ModeSequences = algo.NewSequenceIndex()
	res.ModeSequences.Assign(modeKeys)

	shares := e.aggregateShares(out, assignments)
	res.ModeShares = shares.Shares()

	for i, g := range out.Groups {
		s := out.Best[i]
		gs := GroupState{
			GroupID:     g.ID,
			Iteration:   s.Iteration,
			MotiveSeqID: s.MotiveSeqID,
			Utility:     s.Utility,
			NPersons:    s.NPersons,
		}
		if !s.StayHome() {
			gs.DestSeqID, _ = res.DestinationSequences.ID(zonesKey(s.Destinations))
			seq, _ := e.demand.Sequence(s.MotiveSeqID)
			prev := g.HomeZone
			for j, z := range s.Destinations {
				motive := e.demand.Motives.Value(seq.Motives[j])
				res.Flows[FlowKey{From: prev, To: z, Motive: motive}] += s.NPersons
				prev = z
			}
			if a := assignments[i]; a != nil && a.err == nil && len(a.result.Sequences) > 0 {
				gs.ModeSeqID, _ = res.ModeSequences.ID(strings.Join(e.catalog.Names(a.result.Sequences[0].Modes), modeseq.MODE_SEP))
			} else {
				res.Diagnostic.Unassigned++
			}
		}
		res.States[i] = gs
	}
	for k, r := range e.capacity.OccupationRatios() {
		res.Occupation[SinkKey{Zone: k.Zone, Motive: e.demand.Motives.Value(k.Motive)}] = r
	}
	if res.Diagnostic.Unassigned > 0 {
		log.Warnf("%d groups have no feasible mode sequence", res.Diagnostic.Unassigned)
	}
	return res
}

// 分片聚合后按分片顺序合并
func (e *Engine) aggregateShares(out *equilibrium.Outcome, assignments []*assignment) *modeseq.ModeShare {
	total := modeseq.NewModeShare()
	for start := 0; start < len(out.Groups); start += SHARE_CHUNK_SIZE {
		end := lo.Min([]int{start + SHARE_CHUNK_SIZE, len(out.Groups)})
		part := modeseq.NewModeShare()
		for i := start; i < end; i++ {
			if a := assignments[i]; a != nil && a.err == nil {
				part.Add(e.catalog, a.result, out.Best[i].NPersons)
			}
		}
		total.Merge(part)
	}
	return total
}

func zonesKey(zones []int32) string {
	return modeseq.Request{Zones: zones}.Key()
}

// SourceProbabilities 目的地dest对某目的的来源小区分布，来源为各小区的居住人数
func (e *Engine) SourceProbabilities(dest int32, motive string) (destination.Distribution, error) {
	id, ok := e.demand.MotiveID(motive)
	if !ok {
		return destination.Distribution{}, fmt.Errorf("%w: unknown motive %q", algo.ErrInvalidParameter, motive)
	}
	volumes := make(map[int32]float64)
	for _, g := range e.demand.Groups() {
		volumes[g.HomeZone] += g.NPersons
	}
	zones := lo.Keys(volumes)
	sort.Slice(zones, func(i, j int) bool { return zones[i] < zones[j] })
	sources := lo.Map(zones, func(z int32, _ int) destination.Source {
		return destination.Source{Zone: z, Volume: volumes[z]}
	})
	return e.allocator.SourceProbabilities(dest, id, sources, nil)
}
