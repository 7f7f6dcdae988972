package destination

import (
	"math"
	"sort"

	"git.fiblab.net/sim/tripchain/v2/engine/algo"
	"github.com/samber/lo"
)

// Candidate 候选目的地
type Candidate struct {
	Zone int32
	// 机会数量 m_j
	Volume float64
	// 广义出行成本 c_ij
	Cost float64
}

// Distribution 目的地概率分布，按概率降序
type Distribution struct {
	Zones []int32
	Probs []float64
}

func (d Distribution) Len() int {
	return len(d.Zones)
}

func (d Distribution) Prob(zone int32) float64 {
	if i := lo.IndexOf(d.Zones, zone); i >= 0 {
		return d.Probs[i]
	}
	return 0
}

// Distribute 介入机会模型
// p_ij = (m_i + α s_ij) m_j / ((m_i + (α+β) s_ij)(m_i + (α+β) s_ij + m_j))
// s_ij 为成本严格更低（按分箱）的候选机会之和，归一化后保留累计概率达到cutoff的最短前缀
func Distribute(mi, alpha, beta float64, candidates []Candidate, resolution, cutoff float64) (Distribution, error) {
	cands := lo.Filter(candidates, func(c Candidate, _ int) bool {
		return c.Volume > 0 && !math.IsNaN(c.Cost) && !math.IsInf(c.Cost, 0)
	})
	if len(cands) == 0 {
		return Distribution{}, algo.ErrSaturatedDestinationSet
	}
	bins := lo.Map(cands, func(c Candidate, _ int) int64 { return algo.CostBin(c.Cost, resolution) })
	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	// 同一分箱内保持输入顺序
	sort.SliceStable(order, func(a, b int) bool { return bins[order[a]] < bins[order[b]] })

	p := make([]float64, len(cands))
	s := 0.0
	for start := 0; start < len(order); {
		end := start
		binVolume := 0.0
		for end < len(order) && bins[order[end]] == bins[order[start]] {
			binVolume += cands[order[end]].Volume
			end++
		}
		for _, i := range order[start:end] {
			mj := cands[i].Volume
			denom := mi + (alpha+beta)*s
			if denom <= 0 {
				// m_i=0且前面没有机会，取m_i->0时的极限m_j/(m_i+m_j)=1
				p[i] = 1
				continue
			}
			p[i] = (mi + alpha*s) * mj / (denom * (denom + mj))
		}
		s += binVolume
		start = end
	}
	if !algo.Normalize(p) {
		return Distribution{}, algo.ErrSaturatedDestinationSet
	}
	idx, probs := algo.TruncateCumulative(p, cutoff)
	if len(idx) == 0 {
		return Distribution{}, algo.ErrSaturatedDestinationSet
	}
	return Distribution{
		Zones: lo.Map(idx, func(i int, _ int) int32 { return cands[i].Zone }),
		Probs: probs,
	}, nil
}
