package demand

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"git.fiblab.net/sim/tripchain/v2/config"
	"git.fiblab.net/sim/tripchain/v2/engine/algo"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "demand")

const SEQUENCE_SEP = "-"

// Model 需求模型：群体、出行链与平均活动时长
type Model struct {
	Motives    *algo.SortedIndex
	CSPs       *algo.SortedIndex
	CarBuckets *algo.SortedIndex
	Sequences  *algo.SequenceIndex

	HomeMotive int

	motiveCfgs []config.MotiveConfig // 按Motives编码排列
	groups     []Group
	sequences  map[uint32]*MotiveSequence
	chains     map[bucket][]*Chain

	meanDuration  map[[2]int]float64 // (csp, motive)
	homeNight     []float64          // csp
	totalDuration []float64          // motive

	minTimeConstant float64
	stayHomeCoeff   float64
}

func NewModel(cfg *config.Config, groups []GroupInput, chains []ChainInput) (*Model, error) {
	m := &Model{
		Motives: algo.NewSortedIndex(lo.Map(cfg.Motives, func(c config.MotiveConfig, _ int) string {
			return c.Name
		})),
		CSPs: algo.NewSortedIndex(append(
			lo.Map(groups, func(g GroupInput, _ int) string { return g.CSP }),
			lo.Map(chains, func(c ChainInput, _ int) string { return c.CSP })...,
		)),
		CarBuckets: algo.NewSortedIndex(append(
			lo.Map(groups, func(g GroupInput, _ int) string { return g.CarBucket }),
			lo.Map(chains, func(c ChainInput, _ int) string { return c.CarBucket })...,
		)),
		Sequences:       algo.NewSequenceIndex(),
		sequences:       make(map[uint32]*MotiveSequence),
		chains:          make(map[bucket][]*Chain),
		meanDuration:    make(map[[2]int]float64),
		minTimeConstant: cfg.MinActivityTimeConstant,
		stayHomeCoeff:   cfg.StayHomeUtilityCoeff,
	}
	m.motiveCfgs = make([]config.MotiveConfig, m.Motives.Len())
	for _, c := range cfg.Motives {
		id, _ := m.Motives.ID(c.Name)
		m.motiveCfgs[id] = c
	}
	home, ok := m.Motives.ID(cfg.HomeMotive)
	if !ok {
		return nil, fmt.Errorf("%w: home motive %q not configured", algo.ErrInvalidParameter, cfg.HomeMotive)
	}
	m.HomeMotive = home
	m.sequences[0] = &MotiveSequence{ID: 0}

	ids := make(map[int32]bool, len(groups))
	for _, in := range groups {
		if in.NPersons < 0 || math.IsNaN(in.NPersons) {
			return nil, fmt.Errorf("%w: group %d has negative person count", algo.ErrInvalidParameter, in.ID)
		}
		if ids[in.ID] {
			return nil, fmt.Errorf("%w: duplicate group id %d", algo.ErrInvalidParameter, in.ID)
		}
		ids[in.ID] = true
		csp, _ := m.CSPs.ID(in.CSP)
		car, _ := m.CarBuckets.ID(in.CarBucket)
		m.groups = append(m.groups, Group{
			ID:        in.ID,
			HomeZone:  in.HomeZone,
			CSP:       csp,
			CarBucket: car,
			HasCar:    in.CarBucket != NO_CAR_BUCKET,
			NPersons:  in.NPersons,
		})
	}
	sort.Slice(m.groups, func(i, j int) bool { return m.groups[i].ID < m.groups[j].ID })

	if err := m.buildChains(chains); err != nil {
		return nil, err
	}
	m.computeDurations()
	log.Infof("demand model: %d groups, %d motive sequences, %d csp, %d car buckets",
		len(m.groups), m.Sequences.Len()-1, m.CSPs.Len(), m.CarBuckets.Len())
	return m, nil
}

func (m *Model) buildChains(chains []ChainInput) error {
	keys := make([]string, len(chains))
	for i, in := range chains {
		if len(in.Motives) == 0 {
			return fmt.Errorf("%w: empty motive sequence", algo.ErrInvalidParameter)
		}
		if len(in.Durations) != len(in.Motives) {
			return fmt.Errorf("%w: chain %v has %d durations", algo.ErrInvalidParameter, in.Motives, len(in.Durations))
		}
		if in.Motives[len(in.Motives)-1] != m.Motives.Value(m.HomeMotive) {
			return fmt.Errorf("%w: chain %v does not end at home", algo.ErrInvalidParameter, in.Motives)
		}
		if in.Probability < 0 || lo.SomeBy(in.Durations, func(d float64) bool { return d < 0 }) {
			return fmt.Errorf("%w: chain %v has negative probability or duration", algo.ErrInvalidParameter, in.Motives)
		}
		for _, name := range in.Motives {
			if _, ok := m.Motives.ID(name); !ok {
				return fmt.Errorf("%w: unknown motive %q", algo.ErrInvalidParameter, name)
			}
		}
		keys[i] = strings.Join(in.Motives, SEQUENCE_SEP)
	}
	// 排序后分配编号
	m.Sequences.Assign(keys)
	for i, in := range chains {
		id, _ := m.Sequences.ID(keys[i])
		seq, ok := m.sequences[id]
		if !ok {
			seq = &MotiveSequence{ID: id, Key: keys[i]}
			for _, name := range in.Motives {
				motive, _ := m.Motives.ID(name)
				seq.Motives = append(seq.Motives, motive)
				seq.Anchors = append(seq.Anchors, m.motiveCfgs[motive].IsAnchor)
			}
			m.sequences[id] = seq
		}
		csp, _ := m.CSPs.ID(in.CSP)
		car, _ := m.CarBuckets.ID(in.CarBucket)
		b := bucket{csp: csp, car: car}
		m.chains[b] = append(m.chains[b], &Chain{
			CSP:         csp,
			CarBucket:   car,
			Sequence:    seq,
			Probability: in.Probability,
			Durations:   in.Durations,
		})
	}
	for _, list := range m.chains {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Sequence.ID < list[j].Sequence.ID })
	}
	return nil
}

// 平均活动时长按(csp,目的)对出行链概率加权，不含最后一步；过夜时长单独统计
func (m *Model) computeDurations() {
	type acc struct{ sum, w float64 }
	activity := make(map[[2]int]*acc)
	night := make([]acc, m.CSPs.Len())
	for _, b := range m.buckets() {
		for _, c := range m.chains[b] {
			last := c.Sequence.Len() - 1
			for i := 0; i < last; i++ {
				k := [2]int{b.csp, c.Sequence.Motives[i]}
				a, ok := activity[k]
				if !ok {
					a = &acc{}
					activity[k] = a
				}
				a.sum += c.Probability * c.Durations[i]
				a.w += c.Probability
			}
			night[b.csp].sum += c.Probability * c.Durations[last]
			night[b.csp].w += c.Probability
		}
	}
	for k, a := range activity {
		mean := 0.0
		if a.w > 0 {
			mean = a.sum / a.w
		}
		m.meanDuration[k] = math.Max(mean, algo.MIN_DURATION_HOURS)
	}
	m.homeNight = make([]float64, m.CSPs.Len())
	for csp, a := range night {
		if a.w > 0 {
			m.homeNight[csp] = math.Max(a.sum/a.w, algo.MIN_DURATION_HOURS)
		} else {
			m.homeNight[csp] = algo.DAY_HOURS
		}
	}

	m.totalDuration = make([]float64, m.Motives.Len())
	for _, g := range m.groups {
		for _, c := range m.ChainsFor(g) {
			for i := 0; i < c.Sequence.Len()-1; i++ {
				m.totalDuration[c.Sequence.Motives[i]] += g.NPersons * c.Probability * c.Durations[i]
			}
		}
	}
}

func (m *Model) buckets() []bucket {
	keys := lo.Keys(m.chains)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].csp != keys[j].csp {
			return keys[i].csp < keys[j].csp
		}
		return keys[i].car < keys[j].car
	})
	return keys
}

func (m *Model) Groups() []Group {
	return m.groups
}

// ChainsFor 返回群体可选的出行链，按目的序列编号排序
func (m *Model) ChainsFor(g Group) []*Chain {
	return m.chains[bucket{csp: g.CSP, car: g.CarBucket}]
}

func (m *Model) Sequence(id uint32) (*MotiveSequence, bool) {
	s, ok := m.sequences[id]
	return s, ok
}

func (m *Model) MotiveID(name string) (int, bool) {
	return m.Motives.ID(name)
}

func (m *Model) MotiveConfig(motive int) config.MotiveConfig {
	return m.motiveCfgs[motive]
}

// MeanDuration (csp,目的)的平均活动时长，没有观测时取下限
func (m *Model) MeanDuration(csp, motive int) float64 {
	if d, ok := m.meanDuration[[2]int{csp, motive}]; ok {
		return d
	}
	return algo.MIN_DURATION_HOURS
}

func (m *Model) HomeNight(csp int) float64 {
	return m.homeNight[csp]
}

// TotalDuration 全研究区域某目的的总活动时长（人·小时）
func (m *Model) TotalDuration(motive int) float64 {
	return m.totalDuration[motive]
}

// ActivityUtility 活动效用 k*VoT*mean*max(0, ln(d / (mean*e^-c)))
func (m *Model) ActivityUtility(csp, motive int, duration, kSaturation float64) float64 {
	mean := m.MeanDuration(csp, motive)
	return kSaturation * m.motiveCfgs[motive].ValueOfTime * m.timeUtility(mean, duration)
}

// HomeNightUtility 回家过夜效用
func (m *Model) HomeNightUtility(csp int, duration float64) float64 {
	return m.motiveCfgs[m.HomeMotive].ValueOfTime * m.timeUtility(m.homeNight[csp], duration)
}

// StayHomeUtility 全天在家的基准效用
func (m *Model) StayHomeUtility(csp int) float64 {
	return m.stayHomeCoeff * m.motiveCfgs[m.HomeMotive].ValueOfTime * m.timeUtility(m.homeNight[csp], algo.DAY_HOURS)
}

func (m *Model) timeUtility(mean, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	minDuration := mean * math.Exp(-m.minTimeConstant)
	return mean * math.Max(0, math.Log(duration/minDuration))
}
