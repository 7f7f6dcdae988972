package algo

import (
	"sort"

	"github.com/samber/lo"
)

// SortedIndex 分类变量的编码表：取值去重排序后按下标编码，保证不同运行间编码一致
type SortedIndex struct {
	values []string
	ids    map[string]int
}

// NewSortedIndex 由观测到的所有取值构建编码表
func NewSortedIndex(values []string) *SortedIndex {
	uniq := lo.Uniq(values)
	sort.Strings(uniq)
	ids := make(map[string]int, len(uniq))
	for i, v := range uniq {
		ids[v] = i
	}
	return &SortedIndex{values: uniq, ids: ids}
}

func (x *SortedIndex) ID(v string) (int, bool) {
	id, ok := x.ids[v]
	return id, ok
}

func (x *SortedIndex) Value(id int) string {
	return x.values[id]
}

func (x *SortedIndex) Len() int {
	return len(x.values)
}

func (x *SortedIndex) Values() []string {
	return x.values
}

// SequenceIndex 序列编号表，编号在批次内排序后分配，0保留给空序列
type SequenceIndex struct {
	ids  map[string]uint32
	keys []string
}

func NewSequenceIndex() *SequenceIndex {
	return &SequenceIndex{
		ids:  map[string]uint32{"": 0},
		keys: []string{""},
	}
}

// Assign 为一批新的序列键分配编号，已存在的键保持原编号
func (x *SequenceIndex) Assign(keys []string) {
	fresh := lo.Filter(lo.Uniq(keys), func(k string, _ int) bool {
		_, ok := x.ids[k]
		return !ok
	})
	sort.Strings(fresh)
	for _, k := range fresh {
		x.ids[k] = uint32(len(x.keys))
		x.keys = append(x.keys, k)
	}
}

func (x *SequenceIndex) ID(key string) (uint32, bool) {
	id, ok := x.ids[key]
	return id, ok
}

func (x *SequenceIndex) Key(id uint32) string {
	return x.keys[id]
}

func (x *SequenceIndex) Len() int {
	return len(x.keys)
}
