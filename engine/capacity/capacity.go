package capacity

import (
	"fmt"
	"math"
	"sort"

	"git.fiblab.net/sim/tripchain/v2/config"
	"git.fiblab.net/sim/tripchain/v2/engine/algo"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "capacity")

// OpportunityInput 外部输入的(区域,目的)机会数量
type OpportunityInput struct {
	Zone   int32   `yaml:"zone" bson:"zone"`
	Motive string  `yaml:"motive" bson:"motive"`
	Volume float64 `yaml:"volume" bson:"volume"`
}

// Demand 构建容量所需的需求信息
type Demand interface {
	MotiveID(name string) (int, bool)
	MotiveConfig(motive int) config.MotiveConfig
	TotalDuration(motive int) float64
}

type SinkKey struct {
	Zone   int32
	Motive int
}

// Sink 目的地容量，0 <= Available <= Capacity
type Sink struct {
	SinkKey
	// 机会数量
	Opportunity float64
	Capacity    float64
	Available   float64
	// 饱和效用系数，初值1
	K float64

	beta float64
	ref  float64
}

// Reader 目的地分配器使用的只读视图
type Reader interface {
	// 返回目的的全部容量点，按区域排序
	Sinks(motive int) []Sink
	SaturationFactor(zone int32, motive int) float64
	// 每次容量变化后递增
	Epoch() uint64
}

// Model 容量模型，只由均衡迭代写入
type Model struct {
	sinks    map[SinkKey]*Sink
	byMotive map[int][]*Sink
	epoch    uint64
}

func New(d Demand, opportunities []OpportunityInput) (*Model, error) {
	m := &Model{
		sinks:    make(map[SinkKey]*Sink),
		byMotive: make(map[int][]*Sink),
	}
	for _, o := range opportunities {
		if o.Volume < 0 || math.IsNaN(o.Volume) {
			return nil, fmt.Errorf("%w: negative opportunity volume at zone %d", algo.ErrInvalidParameter, o.Zone)
		}
		motive, ok := d.MotiveID(o.Motive)
		if !ok {
			log.Warnf("opportunity with unknown motive %q ignored", o.Motive)
			continue
		}
		cfg := d.MotiveConfig(motive)
		if !cfg.HasOpportunities {
			continue
		}
		key := SinkKey{Zone: o.Zone, Motive: motive}
		if s, ok := m.sinks[key]; ok {
			s.Opportunity += o.Volume
			continue
		}
		s := &Sink{
			SinkKey:     key,
			Opportunity: o.Volume,
			beta:        cfg.SaturationFunBeta,
			ref:         cfg.SaturationFunRefLevel,
		}
		m.sinks[key] = s
		m.byMotive[motive] = append(m.byMotive[motive], s)
	}
	for motive, list := range m.byMotive {
		sort.Slice(list, func(i, j int) bool { return list[i].Zone < list[j].Zone })
		total := lo.SumBy(list, func(s *Sink) float64 { return s.Opportunity })
		demand := d.TotalDuration(motive)
		coeff := d.MotiveConfig(motive).SinkSaturationCoeff
		for _, s := range list {
			if total > 0 {
				s.Capacity = s.Opportunity / total * demand * coeff
			}
		}
	}
	m.Reset()
	log.Infof("capacity model: %d sinks over %d motives", len(m.sinks), len(m.byMotive))
	return m, nil
}

// Reset 恢复全部可用容量
func (m *Model) Reset() {
	for _, s := range m.sinks {
		s.Available = s.Capacity
		s.K = 1
		if s.Capacity <= 0 {
			s.K = 0
		}
	}
	m.epoch++
}

// Decrement 减少可用容量，下限为0，返回实际减少量
func (m *Model) Decrement(zone int32, motive int, amount float64) float64 {
	s, ok := m.sinks[SinkKey{Zone: zone, Motive: motive}]
	if !ok || amount <= 0 {
		return 0
	}
	before := s.Available
	s.Available = math.Max(0, s.Available-amount)
	return before - s.Available
}

// Apply 批量提交一轮迭代的容量占用并更新饱和系数，返回实际减少量
func (m *Model) Apply(batch map[SinkKey]float64) float64 {
	keys := lo.Keys(batch)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Motive != keys[j].Motive {
			return keys[i].Motive < keys[j].Motive
		}
		return keys[i].Zone < keys[j].Zone
	})
	committed := 0.0
	for _, k := range keys {
		if d := m.Decrement(k.Zone, k.Motive, batch[k]); d > 0 {
			committed += d
			m.sinks[k].updateSaturation()
		}
	}
	if committed > 0 {
		m.epoch++
	}
	return committed
}

// k = clip(1 - (occ/cap)^beta / ref^beta, 0, 1)
func (s *Sink) updateSaturation() {
	if s.Capacity <= 0 {
		s.K = 0
		return
	}
	occ := (s.Capacity - s.Available) / s.Capacity
	k := 1 - math.Pow(occ, s.beta)/math.Pow(s.ref, s.beta)
	s.K = math.Min(1, math.Max(0, k))
}

func (m *Model) Sinks(motive int) []Sink {
	return lo.Map(m.byMotive[motive], func(s *Sink, _ int) Sink { return *s })
}

func (m *Model) Sink(zone int32, motive int) (Sink, bool) {
	s, ok := m.sinks[SinkKey{Zone: zone, Motive: motive}]
	if !ok {
		return Sink{}, false
	}
	return *s, true
}

func (m *Model) SaturationFactor(zone int32, motive int) float64 {
	if s, ok := m.sinks[SinkKey{Zone: zone, Motive: motive}]; ok {
		return s.K
	}
	return 1
}

// HasSinks 目的是否受容量约束
func (m *Model) HasSinks(motive int) bool {
	return len(m.byMotive[motive]) > 0
}

func (m *Model) Epoch() uint64 {
	return m.epoch
}

// OccupationRatios 返回每个容量点的 available/capacity
func (m *Model) OccupationRatios() map[SinkKey]float64 {
	ratios := make(map[SinkKey]float64, len(m.sinks))
	for k, s := range m.sinks {
		if s.Capacity > 0 {
			ratios[k] = s.Available / s.Capacity
		} else {
			ratios[k] = 0
		}
	}
	return ratios
}
