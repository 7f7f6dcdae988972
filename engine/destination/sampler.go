package destination

import (
	"encoding/binary"
	"fmt"
	"math"

	"git.fiblab.net/sim/tripchain/v2/engine/algo"
	"git.fiblab.net/sim/tripchain/v2/engine/demand"
	"github.com/cespare/xxhash/v2"
)

// Sampler 基于哈希的确定性抽样，同一组键总是得到同一结果
type Sampler struct {
	Seed uint64
}

// 指数分布噪声 -ln(u)，u由(seed, keys...)的哈希得到
func (s Sampler) noise(keys ...uint64) float64 {
	buf := make([]byte, 8*(len(keys)+1))
	binary.LittleEndian.PutUint64(buf, s.Seed)
	for i, k := range keys {
		binary.LittleEndian.PutUint64(buf[8*(i+1):], k)
	}
	h := xxhash.Sum64(buf)
	u := (float64(h>>11) + 0.5) / (1 << 53)
	return -math.Log(u)
}

// Choose 指数竞赛抽样：选择 noise/weight 最小的下标，等价于按权重抽样
// 噪声由候选小区编号决定，与候选的排列顺序无关
func (s Sampler) Choose(weights []float64, zones []int32, keys ...uint64) (int, bool) {
	best, bestScore := -1, math.Inf(0)
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		score := s.noise(append(keys, uint64(zones[i]))...) / w
		if score < bestScore {
			best, bestScore = i, score
		}
	}
	return best, best >= 0
}

// Traveler 抽样目的地序列的出行者信息
type Traveler struct {
	GroupID  int32
	Home     int32
	NPersons float64
	// 可用出行方式过滤，nil表示全部可用
	Allowed func(mode string) bool
}

// SampleSequence 为目的序列抽样每一步的目的地
// 家总是回到居住地；锚点目的从家出发抽样；其余目的从上一地点出发抽样，
// 权重为 p * exp(-penalty * cost(目的地, 下一个已知地点))
func (a *Allocator) SampleSequence(t Traveler, seq *demand.MotiveSequence, homeMotive int, penalty float64, sampler Sampler) ([]int32, error) {
	n := seq.Len()
	zones := make([]int32, n)
	known := make([]bool, n)
	for i, motive := range seq.Motives {
		switch {
		case motive == homeMotive:
			zones[i] = t.Home
		case seq.Anchors[i]:
			d, err := a.SinkProbabilities(t.Home, motive, t.NPersons, t.Allowed)
			if err != nil {
				return nil, err
			}
			j, ok := sampler.Choose(d.Probs, d.Zones, uint64(t.GroupID), uint64(seq.ID), uint64(i))
			if !ok {
				return nil, fmt.Errorf("step %d: %w", i, algo.ErrSaturatedDestinationSet)
			}
			zones[i] = d.Zones[j]
		default:
			continue
		}
		known[i] = true
	}

	prev := t.Home
	for i, motive := range seq.Motives {
		if known[i] {
			prev = zones[i]
			continue
		}
		next := t.Home
		for j := i + 1; j < n; j++ {
			if known[j] {
				next = zones[j]
				break
			}
		}
		d, err := a.SinkProbabilities(prev, motive, t.NPersons, t.Allowed)
		if err != nil {
			return nil, err
		}
		weights := make([]float64, d.Len())
		for j, z := range d.Zones {
			c, ok := a.TripCost(z, next, t.Allowed)
			if !ok {
				continue
			}
			weights[j] = d.Probs[j] * math.Exp(-penalty*c)
		}
		j, ok := sampler.Choose(weights, d.Zones, uint64(t.GroupID), uint64(seq.ID), uint64(i))
		if !ok {
			return nil, fmt.Errorf("step %d: %w", i, algo.ErrSaturatedDestinationSet)
		}
		zones[i] = d.Zones[j]
		prev = zones[i]
	}
	return zones, nil
}
