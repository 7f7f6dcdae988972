package modeseq

import (
	"git.fiblab.net/sim/tripchain/v2/engine/cost"
)

// ModeShare 按OD聚合的出行方式出行量，Add与Merge满足交换律和结合律
type ModeShare struct {
	volumes map[cost.OD]map[string]float64
}

func NewModeShare() *ModeShare {
	return &ModeShare{volumes: make(map[cost.OD]map[string]float64)}
}

// Add 将一条出行链的结果按 volume*p 累加到每一段的OD上
func (s *ModeShare) Add(catalog *Catalog, res Result, volume float64) {
	for _, seq := range res.Sequences {
		w := volume * seq.Prob
		for leg, mode := range seq.Modes {
			s.add(cost.OD{From: res.Zones[leg], To: res.Zones[leg+1]}, catalog.Name(mode), w)
		}
	}
}

func (s *ModeShare) add(od cost.OD, mode string, v float64) {
	m, ok := s.volumes[od]
	if !ok {
		m = make(map[string]float64)
		s.volumes[od] = m
	}
	m[mode] += v
}

func (s *ModeShare) Merge(other *ModeShare) {
	for od, modes := range other.volumes {
		for mode, v := range modes {
			s.add(od, mode, v)
		}
	}
}

// Volumes OD上各出行方式的出行量
func (s *ModeShare) Volumes() map[cost.OD]map[string]float64 {
	return s.volumes
}

// Shares OD -> 出行方式 -> 份额
func (s *ModeShare) Shares() map[cost.OD]map[string]float64 {
	out := make(map[cost.OD]map[string]float64, len(s.volumes))
	for od, modes := range s.volumes {
		total := 0.0
		for _, v := range modes {
			total += v
		}
		if total <= 0 {
			continue
		}
		shares := make(map[string]float64, len(modes))
		for mode, v := range modes {
			shares[mode] = v / total
		}
		out[od] = shares
	}
	return out
}
