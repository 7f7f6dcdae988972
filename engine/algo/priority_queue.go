package algo

// Item 优先队列中的元素
type Item[T any] struct {
	Value    T
	Priority float64
	// 在堆中的下标，由heap.Interface维护
	Index int
	// 入队序号，优先级相同时先入先出，保证结果可复现
	Seq int
}

// PriorityQueue 最小堆，实现heap.Interface
type PriorityQueue[T any] []*Item[T]

func (pq PriorityQueue[T]) Len() int { return len(pq) }

func (pq PriorityQueue[T]) Less(i, j int) bool {
	if pq[i].Priority == pq[j].Priority {
		return pq[i].Seq < pq[j].Seq
	}
	return pq[i].Priority < pq[j].Priority
}

func (pq PriorityQueue[T]) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].Index = i
	pq[j].Index = j
}

func (pq *PriorityQueue[T]) Push(x any) {
	n := len(*pq)
	item := x.(*Item[T])
	item.Index = n
	*pq = append(*pq, item)
}

func (pq *PriorityQueue[T]) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // 避免内存泄漏
	item.Index = -1
	*pq = old[0 : n-1]
	return item
}
