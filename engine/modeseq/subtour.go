package modeseq

// Subtour 从z[Start]出发回到z[End]（z[Start]==z[End]）的子环路，包含第Start到End-1段
type Subtour struct {
	Start int
	End   int
}

// Mirrored 首段与末段是同一OD的往返，至少两段
func (s Subtour) Mirrored(zones []int32) bool {
	return s.End-s.Start >= 2 && zones[s.Start+1] == zones[s.End-1]
}

// FindSubtours 一次扫描记录每个小区最近出现的位置，重复出现时得到一个子环路。
// 出行链在每次回家处拆分，家-家环路本身和跨越中途回家的环路都不算子环路；
// 返回以起始段为键的子环路
func FindSubtours(zones []int32) map[int]Subtour {
	lastSeen := make(map[int32]int, len(zones))
	subtours := make(map[int]Subtour)
	lastHome := 0
	for i, z := range zones {
		if z == zones[0] {
			lastHome = i
			continue
		}
		if j, ok := lastSeen[z]; ok && j > lastHome {
			subtours[j] = Subtour{Start: j, End: i}
		}
		lastSeen[z] = i
	}
	return subtours
}

// 在home处拆分，返回各部分的[起点,终点]下标
func splitAtHome(zones []int32) [][2]int {
	var parts [][2]int
	start := 0
	for i := 1; i < len(zones); i++ {
		if zones[i] == zones[0] {
			parts = append(parts, [2]int{start, i})
			start = i
		}
	}
	return parts
}
