package modeseq

import (
	"git.fiblab.net/sim/tripchain/v2/engine/cost"
)

// Feasible 逐段模拟一个完整的出行方式分配，检查交通工具位置是否一致且每段成本存在
// 结果与top-k搜索对同一序列的可行性判断一致
func Feasible(catalog *Catalog, costs cost.Provider, zones []int32, modes []int) bool {
	n := len(zones) - 1
	if n < 1 || len(modes) != n || zones[0] != zones[n] {
		return false
	}
	subtours := FindSubtours(zones)
	vehicles := make([]int32, len(catalog.Vehicles()))
	for i := range vehicles {
		vehicles[i] = zones[0]
	}
	forced := make(map[int]int)
	for leg, id := range modes {
		if id < 0 || id >= catalog.Len() {
			return false
		}
		// 中途回家时所有交通工具都要在家
		if leg > 0 && zones[leg] == zones[0] && !settled(vehicles, forced, zones[0]) {
			return false
		}
		from, to := zones[leg], zones[leg+1]
		if _, ok := costs.GeneralizedCost(from, to, catalog.Name(id)); !ok {
			return false
		}
		m := catalog.Mode(id)
		if want, ok := forced[leg]; ok {
			if want != id {
				return false
			}
			delete(forced, leg)
			vehicles[m.VehicleID] = to
			continue
		}
		if m.IsReturn {
			return false
		}
		if !m.NeedsVehicle() {
			continue
		}
		if vehicles[m.VehicleID] != from {
			return false
		}
		if m.Multimodal && m.ReturnMode != NO_MODE {
			st, ok := subtours[leg]
			if !ok || !st.Mirrored(zones) {
				return false
			}
			forced[st.End-1] = m.ReturnMode
			continue
		}
		vehicles[m.VehicleID] = to
	}
	return settled(vehicles, forced, zones[0])
}

func settled(vehicles []int32, forced map[int]int, home int32) bool {
	return len(forced) == 0 && allAt(vehicles, home)
}

// Substitute 替换[start,end)段的出行方式并检查可行性，用于子环路局部替换
func Substitute(catalog *Catalog, costs cost.Provider, zones []int32, modes []int, start, end int, replacement []int) ([]int, bool) {
	if start < 0 || end > len(modes) || end-start != len(replacement) {
		return nil, false
	}
	out := make([]int, len(modes))
	copy(out, modes)
	copy(out[start:end], replacement)
	return out, Feasible(catalog, costs, zones, out)
}
