package modeseq

import (
	"fmt"
	"sort"

	"git.fiblab.net/sim/tripchain/v2/config"
	"git.fiblab.net/sim/tripchain/v2/engine/algo"
	"git.fiblab.net/sim/tripchain/v2/engine/cost"
	"github.com/samber/lo"
)

const (
	NO_VEHICLE = -1
	NO_MODE    = -1
)

// Mode 出行方式
type Mode struct {
	ID   int
	Name string
	// 需要的交通工具类别
	Vehicle   string
	VehicleID int
	// 多式联运：停车换乘，之后必须用ReturnMode取车
	Multimodal bool
	IsReturn   bool
	ReturnMode int
	Params     cost.Params
}

func (m *Mode) NeedsVehicle() bool {
	return m.VehicleID != NO_VEHICLE
}

// Catalog 出行方式表，按名称排序编号；未声明的返程方式自动生成
type Catalog struct {
	modes    []Mode
	byName   map[string]int
	vehicles []string
}

func NewCatalog(cfgs []config.ModeConfig) (*Catalog, error) {
	declared := lo.SliceToMap(cfgs, func(c config.ModeConfig) (string, config.ModeConfig) { return c.Name, c })
	all := lo.Values(declared)
	returns := make(map[string]string)
	for _, c := range cfgs {
		if c.ReturnMode == "" {
			continue
		}
		if !c.Multimodal || c.Vehicle == "" {
			return nil, fmt.Errorf("%w: mode %q is not a multimodal vehicle mode", algo.ErrInvalidParameter, c.Name)
		}
		returns[c.ReturnMode] = c.Name
		if _, ok := declared[c.ReturnMode]; !ok {
			// 返程方式与去程使用相同的交通工具与成本参数
			all = append(all, config.ModeConfig{
				Name:           c.ReturnMode,
				Vehicle:        c.Vehicle,
				Constant:       c.Constant,
				CostOfTime:     c.CostOfTime,
				CostOfDistance: c.CostOfDistance,
			})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	vehicles := lo.Uniq(lo.FilterMap(all, func(c config.ModeConfig, _ int) (string, bool) {
		return c.Vehicle, c.Vehicle != ""
	}))
	sort.Strings(vehicles)

	cat := &Catalog{byName: make(map[string]int, len(all)), vehicles: vehicles}
	for i, c := range all {
		cat.byName[c.Name] = i
		cat.modes = append(cat.modes, Mode{
			ID:         i,
			Name:       c.Name,
			Vehicle:    c.Vehicle,
			VehicleID:  lo.IndexOf(vehicles, c.Vehicle),
			Multimodal: c.Multimodal,
			ReturnMode: NO_MODE,
			Params: cost.Params{
				Constant:       c.Constant,
				CostOfTime:     c.CostOfTime,
				CostOfDistance: c.CostOfDistance,
			},
		})
	}
	for i := range cat.modes {
		m := &cat.modes[i]
		if outbound, ok := returns[m.Name]; ok {
			m.IsReturn = true
			if m.Vehicle != cat.modes[cat.byName[outbound]].Vehicle {
				return nil, fmt.Errorf("%w: return mode %q uses a different vehicle than %q", algo.ErrInvalidParameter, m.Name, outbound)
			}
		}
		if c, ok := declared[m.Name]; ok && c.ReturnMode != "" {
			m.ReturnMode = cat.byName[c.ReturnMode]
		}
	}
	return cat, nil
}

func (c *Catalog) Len() int {
	return len(c.modes)
}

func (c *Catalog) Mode(id int) *Mode {
	return &c.modes[id]
}

func (c *Catalog) ID(name string) (int, bool) {
	id, ok := c.byName[name]
	return id, ok
}

func (c *Catalog) Name(id int) string {
	return c.modes[id].Name
}

// Vehicles 交通工具类别，按名称排序
func (c *Catalog) Vehicles() []string {
	return c.vehicles
}

// CostParams 供成本表使用的广义成本参数
func (c *Catalog) CostParams() map[string]cost.Params {
	return lo.SliceToMap(c.modes, func(m Mode) (string, cost.Params) { return m.Name, m.Params })
}

// Names 将出行方式编号序列转换为名称
func (c *Catalog) Names(modes []int) []string {
	return lo.Map(modes, func(id int, _ int) string { return c.modes[id].Name })
}
