package modeseq

import (
	"math/rand"
	"testing"

	"git.fiblab.net/sim/tripchain/v2/config"
	"git.fiblab.net/sim/tripchain/v2/engine/cost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomTable(t testing.TB, catalog *Catalog, zones int32, r *rand.Rand) *cost.Table {
	table := cost.NewTable(catalog.CostParams(), false)
	var entries []cost.Entry
	for from := int32(0); from < zones; from++ {
		for to := int32(0); to < zones; to++ {
			for id := 0; id < catalog.Len(); id++ {
				// 随机缺失部分成本
				if r.Float64() < 0.2 {
					continue
				}
				entries = append(entries, cost.Entry{
					Key:  cost.Key{From: from, To: to, Mode: catalog.Name(id)},
					Cost: cost.Cost{Time: r.Float64() * 10},
				})
			}
		}
	}
	require.NoError(t, table.Load(entries))
	return table
}

// 枚举全部出行方式分配，检查搜索结果与逐段模拟的可行性判断完全一致
func checkAgreement(t *testing.T, catalog *Catalog, table *cost.Table, zones []int32) {
	n := len(zones) - 1
	s := &searcher{
		catalog:  catalog,
		costs:    table,
		zones:    zones,
		subtours: FindSubtours(zones),
		allowed:  make([]bool, catalog.Len()),
		k:        1 << 20,
		maxHeap:  1 << 20,
	}
	for i := range s.allowed {
		s.allowed[i] = true
	}
	found, capped := s.run(0, n)
	require.False(t, capped)
	searched := make(map[string]bool)
	for i, f := range found {
		if i > 0 {
			assert.GreaterOrEqual(t, f.Cost, found[i-1].Cost)
		}
		searched[Request{Zones: toZones(f.Seq)}.Key()] = true
	}

	total := 1
	for i := 0; i < n; i++ {
		total *= catalog.Len()
	}
	modes := make([]int, n)
	feasible := 0
	for code := 0; code < total; code++ {
		c := code
		for i := range modes {
			modes[i] = c % catalog.Len()
			c /= catalog.Len()
		}
		ok := Feasible(catalog, table, zones, modes)
		assert.Equal(t, ok, searched[Request{Zones: toZones(modes)}.Key()], "zones=%v modes=%v", zones, modes)
		if ok {
			feasible++
		}
	}
	assert.Equal(t, feasible, len(found))
}

func toZones(modes []int) []int32 {
	out := make([]int32, len(modes))
	for i, m := range modes {
		out[i] = int32(m)
	}
	return out
}

func TestSearchAgreesWithFeasible(t *testing.T) {
	catalog, err := NewCatalog([]config.ModeConfig{
		{Name: "walk", CostOfTime: 1},
		{Name: "car", Vehicle: "car", CostOfTime: 1},
		{Name: "car_pt", Vehicle: "car", Multimodal: true, ReturnMode: "pt_car", CostOfTime: 1},
		{Name: "bike", Vehicle: "bike", CostOfTime: 1},
	})
	require.NoError(t, err)
	r := rand.New(rand.NewSource(3))
	// 不含中途回家
	chains := [][]int32{
		{0, 1, 0},
		{0, 1, 2, 1, 0},
		{0, 1, 2, 3, 2, 0},
		{0, 1, 1, 0},
		{0, 1, 2, 1, 2, 0},
	}
	for round := 0; round < 5; round++ {
		table := randomTable(t, catalog, 4, r)
		for _, zones := range chains {
			checkAgreement(t, catalog, table, zones)
		}
	}
}

// 在回家处拆分后逐段搜索，各段结果的组合与逐段模拟的可行序列一一对应
func TestSplitSearchAgreesWithFeasible(t *testing.T) {
	catalog, err := NewCatalog([]config.ModeConfig{
		{Name: "walk", CostOfTime: 1},
		{Name: "car", Vehicle: "car", CostOfTime: 1},
		{Name: "car_pt", Vehicle: "car", Multimodal: true, ReturnMode: "pt_car", CostOfTime: 1},
	})
	require.NoError(t, err)
	r := rand.New(rand.NewSource(5))
	chains := [][]int32{
		{0, 1, 0, 2, 0},
		{0, 1, 2, 1, 0, 1, 0},
		{0, 1, 0, 1, 0},
	}
	for round := 0; round < 5; round++ {
		table := randomTable(t, catalog, 3, r)
		for _, zones := range chains {
			s := &searcher{
				catalog:  catalog,
				costs:    table,
				zones:    zones,
				subtours: FindSubtours(zones),
				allowed:  []bool{true, true, true, true},
				k:        1 << 20,
				maxHeap:  1 << 20,
			}
			parts := splitAtHome(zones)
			searched := make([]map[string]bool, len(parts))
			combos := 1
			for i, p := range parts {
				found, capped := s.run(p[0], p[1])
				require.False(t, capped)
				searched[i] = make(map[string]bool)
				for _, f := range found {
					searched[i][Request{Zones: toZones(f.Seq)}.Key()] = true
				}
				combos *= len(found)
			}

			n := len(zones) - 1
			total := 1
			for i := 0; i < n; i++ {
				total *= catalog.Len()
			}
			modes := make([]int, n)
			feasible := 0
			for code := 0; code < total; code++ {
				c := code
				for i := range modes {
					modes[i] = c % catalog.Len()
					c /= catalog.Len()
				}
				if !Feasible(catalog, table, zones, modes) {
					continue
				}
				feasible++
				for i, p := range parts {
					assert.True(t, searched[i][Request{Zones: toZones(modes[p[0]:p[1]])}.Key()], "zones=%v modes=%v", zones, modes)
				}
			}
			assert.Equal(t, combos, feasible, "zones=%v", zones)
		}
	}
}

func TestSearchHeapCap(t *testing.T) {
	catalog, err := NewCatalog([]config.ModeConfig{{Name: "walk"}, {Name: "bus"}, {Name: "bike"}})
	require.NoError(t, err)
	table := cost.NewTable(catalog.CostParams(), false)
	var entries []cost.Entry
	for from := int32(0); from < 3; from++ {
		for to := int32(0); to < 3; to++ {
			for _, mode := range []string{"walk", "bus", "bike"} {
				entries = append(entries, cost.Entry{Key: cost.Key{From: from, To: to, Mode: mode}, Cost: cost.Cost{Time: 1}})
			}
		}
	}
	require.NoError(t, table.Load(entries))
	s := &searcher{
		catalog:  catalog,
		costs:    table,
		zones:    []int32{0, 1, 2, 1, 2, 1, 0},
		subtours: map[int]Subtour{},
		allowed:  []bool{true, true, true},
		k:        1000,
		maxHeap:  4,
	}
	_, capped := s.run(0, 6)
	assert.True(t, capped)
}
