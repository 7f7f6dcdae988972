package engine

import (
	"git.fiblab.net/sim/tripchain/v2/engine/algo"
	"git.fiblab.net/sim/tripchain/v2/engine/cost"
)

// FlowKey (起点,终点,目的)
type FlowKey struct {
	From   int32
	To     int32
	Motive string
}

// SinkKey (小区,目的)
type SinkKey struct {
	Zone   int32
	Motive string
}

// GroupState 群体的最终日程
type GroupState struct {
	GroupID     int32
	Iteration   int
	MotiveSeqID uint32
	// 目的地序列与最可能的出行方式序列编号，0表示全天在家
	DestSeqID uint32
	ModeSeqID uint32
	Utility   float64
	NPersons  float64
}

// Diagnostic 收敛诊断
type Diagnostic struct {
	Iterations int
	Converged  bool
	// 没有可行出行方式序列的群体数
	Unassigned int
}

// Result 一次运行的输出表
type Result struct {
	Flows      map[FlowKey]float64
	ModeShares map[cost.OD]map[string]float64
	// available/capacity
	Occupation map[SinkKey]float64
	States     []GroupState
	Diagnostic Diagnostic

	DestinationSequences *algo.SequenceIndex
	ModeSequences        *algo.SequenceIndex
}

// TotalFlow 全部出行量
func (r *Result) TotalFlow() float64 {
	total := 0.0
	for _, v := range r.Flows {
		total += v
	}
	return total
}
