package algo

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Normalize 将非负权重原地归一化，和为0时返回false且不修改
func Normalize(w []float64) bool {
	total := floats.Sum(w)
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return false
	}
	floats.Scale(1/total, w)
	return true
}

// TruncateCumulative 按概率从大到小排序，保留累计概率首次达到cutoff的最短前缀，
// 返回保留的下标（按概率降序，相同概率按原下标）和重新归一化后的概率
func TruncateCumulative(p []float64, cutoff float64) ([]int, []float64) {
	order := make([]int, len(p))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return p[order[a]] > p[order[b]]
	})
	kept := make([]int, 0, len(order))
	cum := 0.0
	for _, i := range order {
		if p[i] <= 0 {
			break
		}
		kept = append(kept, i)
		cum += p[i]
		if cum >= cutoff-EPS {
			break
		}
	}
	keptP := make([]float64, len(kept))
	for j, i := range kept {
		keptP[j] = p[i]
	}
	if !Normalize(keptP) {
		return nil, nil
	}
	return kept, keptP
}

// SoftminCosts p_i = exp(-c_i) / Σ exp(-c_j)，计算前减去最小成本避免溢出
func SoftminCosts(costs []float64) []float64 {
	if len(costs) == 0 {
		return nil
	}
	minCost := floats.Min(costs)
	p := make([]float64, len(costs))
	for i, c := range costs {
		p[i] = math.Exp(-(c - minCost))
	}
	Normalize(p)
	return p
}

// CostBin 将成本离散化到分箱，避免近似相等成本引起的排序不稳定
func CostBin(cost float64, resolution float64) int64 {
	return int64(math.Round(cost * resolution))
}
