package destination

import (
	"fmt"
	"math"
	"sort"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/sim/tripchain/v2/engine/algo"
)

// ZoneInput 外部输入的交通小区，坐标与半径单位为米
type ZoneInput struct {
	ID     int32   `yaml:"id" bson:"id"`
	X      float64 `yaml:"x" bson:"x"`
	Y      float64 `yaml:"y" bson:"y"`
	Radius float64 `yaml:"radius" bson:"radius"`
	// 小区内部两点间的期望距离，为0时按圆盘计算
	InternalDistance float64 `yaml:"internal_distance" bson:"internal_distance"`
}

// TransportZone 交通小区，近似为圆盘
type TransportZone struct {
	ID               int32
	Center           geometry.Point
	Radius           float64
	InternalDistance float64
}

// Zones 交通小区集合
type Zones struct {
	byID map[int32]*TransportZone
	ids  []int32
}

// 圆盘内两随机点的期望距离 128r/(45π)
func discInternalDistance(r float64) float64 {
	return 128 * r / (45 * math.Pi)
}

func NewZones(in []ZoneInput) (*Zones, error) {
	z := &Zones{byID: make(map[int32]*TransportZone, len(in))}
	for _, zi := range in {
		if zi.Radius < 0 || zi.InternalDistance < 0 {
			return nil, fmt.Errorf("%w: zone %d has negative radius", algo.ErrInvalidParameter, zi.ID)
		}
		if _, ok := z.byID[zi.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate zone id %d", algo.ErrInvalidParameter, zi.ID)
		}
		internal := zi.InternalDistance
		if internal == 0 {
			internal = discInternalDistance(zi.Radius)
		}
		z.byID[zi.ID] = &TransportZone{
			ID:               zi.ID,
			Center:           geometry.Point{X: zi.X, Y: zi.Y},
			Radius:           zi.Radius,
			InternalDistance: internal,
		}
		z.ids = append(z.ids, zi.ID)
	}
	sort.Slice(z.ids, func(i, j int) bool { return z.ids[i] < z.ids[j] })
	return z, nil
}

func (z *Zones) Get(id int32) (*TransportZone, bool) {
	zone, ok := z.byID[id]
	return zone, ok
}

// IDs 按编号排序的全部小区
func (z *Zones) IDs() []int32 {
	return z.ids
}

func (z *Zones) Len() int {
	return len(z.ids)
}

// Distance 两小区间的出行距离（km）
// 起终点各取半径的1/3加上质心距离，再乘以绕行系数 1.1+0.3*exp(-d/20)
func (z *Zones) Distance(from, to int32) (float64, bool) {
	o, ok := z.byID[from]
	if !ok {
		return 0, false
	}
	d, ok := z.byID[to]
	if !ok {
		return 0, false
	}
	var dist float64
	if from == to {
		dist = o.InternalDistance
	} else {
		dist = o.Radius/3 + geometry.Distance(o.Center, d.Center) + d.Radius/3
	}
	dist /= 1000
	return dist * (1.1 + 0.3*math.Exp(-dist/20)), true
}
