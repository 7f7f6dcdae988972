package modeseq

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"git.fiblab.net/sim/tripchain/v2/engine/algo"
	"git.fiblab.net/sim/tripchain/v2/engine/cost"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("module", "modeseq")

// 出行方式序列键的分隔符
const MODE_SEP = "-"

// Options top-k搜索参数
type Options struct {
	K           int
	MaxHeapSize int
	ProbCutoff  float64
	Workers     int
}

// Sequence 一个出行方式序列及其概率
type Sequence struct {
	Modes []int
	Cost  float64
	Prob  float64
}

// Result 一条出行链的出行方式序列分布，按成本升序
type Result struct {
	Zones     []int32
	Sequences []Sequence
}

// Request 批量分配中的一条出行链
type Request struct {
	Zones []int32
	// 不可使用的交通工具类别
	ExcludedVehicles []string
}

// Key 出行链的缓存键
func (r Request) Key() string {
	var b strings.Builder
	for i, z := range r.Zones {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(strconv.FormatInt(int64(z), 10))
	}
	if len(r.ExcludedVehicles) > 0 {
		b.WriteByte('|')
		b.WriteString(strings.Join(r.ExcludedVehicles, ","))
	}
	return b.String()
}

// Assigner 出行方式序列分配器，不持有可变状态，可并发调用
type Assigner struct {
	catalog *Catalog
	costs   cost.Provider
	opts    Options
}

func NewAssigner(catalog *Catalog, costs cost.Provider, opts Options) (*Assigner, error) {
	if opts.K < 1 || opts.MaxHeapSize < 1 || opts.ProbCutoff <= 0 || opts.ProbCutoff > 1 {
		return nil, fmt.Errorf("%w: assigner options %+v", algo.ErrInvalidParameter, opts)
	}
	return &Assigner{catalog: catalog, costs: costs, opts: opts}, nil
}

func (a *Assigner) Catalog() *Catalog {
	return a.catalog
}

// Assign 返回一条出行链成本最低的k个可行出行方式序列及其softmin概率
// 链在每次回家处拆分，各部分分别搜索后合并
func (a *Assigner) Assign(req Request) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("assign %v: %v", req.Zones, r)
		}
	}()
	zones := req.Zones
	n := len(zones) - 1
	if n < 1 || zones[0] != zones[n] {
		return Result{}, fmt.Errorf("%w: chain %v does not start and end at home", algo.ErrInvalidParameter, zones)
	}
	allowed := make([]bool, a.catalog.Len())
	for i := range allowed {
		allowed[i] = !lo.Contains(req.ExcludedVehicles, a.catalog.Mode(i).Vehicle)
	}
	s := &searcher{
		catalog:  a.catalog,
		costs:    a.costs,
		zones:    zones,
		subtours: FindSubtours(zones),
		allowed:  allowed,
		k:        a.opts.K,
		maxHeap:  a.opts.MaxHeapSize,
	}
	var parts [][]algo.Scored[int]
	for _, p := range splitAtHome(zones) {
		found, capped := s.run(p[0], p[1])
		if capped {
			log.Warnf("chain %v: heap size exceeds %d, keeping %d sequences", zones, a.opts.MaxHeapSize, len(found))
		}
		if len(found) == 0 {
			return Result{Zones: zones}, fmt.Errorf("chain %v legs %d-%d: %w", zones, p[0], p[1], algo.ErrNoFeasibleSequence)
		}
		parts = append(parts, found)
	}
	merged := algo.MergeKBestAll(parts, a.opts.K)
	costs := lo.Map(merged, func(s algo.Scored[int], _ int) float64 { return s.Cost })
	idx, probs := algo.TruncateCumulative(algo.SoftminCosts(costs), a.opts.ProbCutoff)
	res = Result{Zones: zones, Sequences: make([]Sequence, len(idx))}
	for j, i := range idx {
		res.Sequences[j] = Sequence{Modes: merged[i].Seq, Cost: merged[i].Cost, Prob: probs[j]}
	}
	return res, nil
}

// AssignBatch 并行分配一批互相独立的出行链，单条链的错误不影响其它链
func (a *Assigner) AssignBatch(ctx context.Context, reqs []Request) ([]Result, []error, error) {
	results := make([]Result, len(reqs))
	errs := make([]error, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	if a.opts.Workers > 0 {
		g.SetLimit(a.opts.Workers)
	}
	for i := range reqs {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i], errs[i] = a.Assign(reqs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	failed := lo.CountBy(errs, func(err error) bool { return err != nil })
	if failed > 0 {
		log.Debugf("%d of %d chains have no feasible mode sequence", failed, len(reqs))
	}
	return results, errs, nil
}
