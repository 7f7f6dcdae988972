package modeseq

import (
	"container/heap"

	"git.fiblab.net/sim/tripchain/v2/engine/algo"
	"git.fiblab.net/sim/tripchain/v2/engine/cost"
)

// 已选出行方式，以父指针链表共享前缀
type modeNode struct {
	mode int
	prev *modeNode
}

func (n *modeNode) slice(length int) []int {
	out := make([]int, length)
	for i := length - 1; n != nil; i-- {
		out[i] = n.mode
		n = n.prev
	}
	return out
}

// 返程约束：第leg段必须使用mode
type pending struct {
	leg  int
	mode int
}

// 搜索状态，入队后不再修改，后继状态在需要时复制交通工具位置与约束
type state struct {
	leg      int
	vehicles []int32
	modes    *modeNode
	forced   []pending
}

func (s *state) forcedAt(leg int) (int, int) {
	for i, p := range s.forced {
		if p.leg == leg {
			return p.mode, i
		}
	}
	return NO_MODE, -1
}

type searcher struct {
	catalog  *Catalog
	costs    cost.Provider
	zones    []int32
	subtours map[int]Subtour
	allowed  []bool
	k        int
	maxHeap  int
}

// 在[start,end]之间做代价优先搜索，返回至多k个完整序列，按成本升序
func (s *searcher) run(start, end int) ([]algo.Scored[int], bool) {
	home := s.zones[start]
	init := &state{leg: start, vehicles: make([]int32, len(s.catalog.Vehicles()))}
	for i := range init.vehicles {
		init.vehicles[i] = home
	}
	pq := make(algo.PriorityQueue[*state], 0)
	seq := 0
	push := func(st *state, c float64) {
		heap.Push(&pq, &algo.Item[*state]{Value: st, Priority: c, Seq: seq})
		seq++
	}
	push(init, 0)

	var out []algo.Scored[int]
	capped := false
	for pq.Len() > 0 && len(out) < s.k {
		if pq.Len() > s.maxHeap {
			capped = true
			break
		}
		item := heap.Pop(&pq).(*algo.Item[*state])
		st := item.Value
		if st.leg == end {
			if len(st.forced) == 0 && allAt(st.vehicles, home) {
				out = append(out, algo.Scored[int]{Cost: item.Priority, Seq: st.modes.slice(end - start)})
			}
			continue
		}
		from, to := s.zones[st.leg], s.zones[st.leg+1]
		if want, idx := st.forcedAt(st.leg); want != NO_MODE {
			c, ok := s.costs.GeneralizedCost(from, to, s.catalog.Name(want))
			if !ok {
				// 返程方式缺少成本，该分支不可行
				continue
			}
			m := s.catalog.Mode(want)
			next := &state{
				leg:      st.leg + 1,
				vehicles: moveVehicle(st.vehicles, m.VehicleID, to),
				modes:    &modeNode{mode: want, prev: st.modes},
				forced:   removeAt(st.forced, idx),
			}
			push(next, item.Priority+c)
			continue
		}
		for id := 0; id < s.catalog.Len(); id++ {
			m := s.catalog.Mode(id)
			if m.IsReturn || !s.allowed[id] {
				continue
			}
			c, ok := s.costs.GeneralizedCost(from, to, m.Name)
			if !ok {
				continue
			}
			next := &state{
				leg:      st.leg + 1,
				vehicles: st.vehicles,
				modes:    &modeNode{mode: id, prev: st.modes},
				forced:   st.forced,
			}
			if m.NeedsVehicle() {
				if st.vehicles[m.VehicleID] != from {
					continue
				}
				if m.Multimodal && m.ReturnMode != NO_MODE {
					sub, ok := s.subtours[st.leg]
					if !ok || !sub.Mirrored(s.zones) || sub.End > end {
						continue
					}
					// 停车，不移动交通工具
					next.forced = appendPending(st.forced, pending{leg: sub.End - 1, mode: m.ReturnMode})
				} else {
					next.vehicles = moveVehicle(st.vehicles, m.VehicleID, to)
				}
			}
			push(next, item.Priority+c)
		}
	}
	return out, capped
}

func allAt(vehicles []int32, zone int32) bool {
	for _, v := range vehicles {
		if v != zone {
			return false
		}
	}
	return true
}

func moveVehicle(vehicles []int32, id int, to int32) []int32 {
	if vehicles[id] == to {
		return vehicles
	}
	out := make([]int32, len(vehicles))
	copy(out, vehicles)
	out[id] = to
	return out
}

func appendPending(list []pending, p pending) []pending {
	out := make([]pending, len(list), len(list)+1)
	copy(out, list)
	return append(out, p)
}

func removeAt(list []pending, i int) []pending {
	out := make([]pending, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}
