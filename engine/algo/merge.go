package algo

import "container/heap"

// Scored 带成本的序列
type Scored[T any] struct {
	Cost float64
	Seq  []T
}

type mergeCursor struct{ i, j int }

// MergeKBest 合并两组按成本升序排列的序列，返回拼接后成本最小的k个组合
func MergeKBest[T any](a, b []Scored[T], k int) []Scored[T] {
	if len(a) == 0 || len(b) == 0 || k <= 0 {
		return nil
	}
	out := make([]Scored[T], 0, k)
	seen := map[mergeCursor]bool{{0, 0}: true}
	pq := make(PriorityQueue[mergeCursor], 0)
	seq := 0
	push := func(c mergeCursor) {
		heap.Push(&pq, &Item[mergeCursor]{Value: c, Priority: a[c.i].Cost + b[c.j].Cost, Seq: seq})
		seq++
	}
	push(mergeCursor{0, 0})
	for pq.Len() > 0 && len(out) < k {
		item := heap.Pop(&pq).(*Item[mergeCursor])
		c := item.Value
		joined := make([]T, 0, len(a[c.i].Seq)+len(b[c.j].Seq))
		joined = append(joined, a[c.i].Seq...)
		joined = append(joined, b[c.j].Seq...)
		out = append(out, Scored[T]{Cost: item.Priority, Seq: joined})
		for _, next := range []mergeCursor{{c.i + 1, c.j}, {c.i, c.j + 1}} {
			if next.i < len(a) && next.j < len(b) && !seen[next] {
				seen[next] = true
				push(next)
			}
		}
	}
	return out
}

// MergeKBestAll 依次合并多组序列
func MergeKBestAll[T any](parts [][]Scored[T], k int) []Scored[T] {
	if len(parts) == 0 {
		return nil
	}
	cur := parts[0]
	if len(cur) > k {
		cur = cur[:k]
	}
	for _, p := range parts[1:] {
		cur = MergeKBest(cur, p, k)
	}
	return cur
}
