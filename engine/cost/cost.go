package cost

import (
	"fmt"
	"math"
	"sort"

	"git.fiblab.net/sim/tripchain/v2/engine/algo"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "cost")

// OD 起终点对
type OD struct {
	From int32
	To   int32
}

// Key (起点,终点,出行方式)
type Key struct {
	From int32
	To   int32
	Mode string
}

// Cost 单段出行的时间（小时）与距离（km）
type Cost struct {
	Time     float64
	Distance float64
}

// Entry 成本表中的一行
type Entry struct {
	Key
	Cost
	Congested bool
}

// Params 广义成本参数
type Params struct {
	Constant       float64
	CostOfTime     float64
	CostOfDistance float64
}

func (p Params) Generalized(c Cost) float64 {
	return p.Constant + p.CostOfTime*c.Time + p.CostOfDistance*c.Distance
}

// Provider 成本提供者
type Provider interface {
	// 返回(起点,终点,出行方式)的时间与距离
	Get(from, to int32, mode string) (Cost, bool)
	// 返回(起点,终点,出行方式)的广义成本
	GeneralizedCost(from, to int32, mode string) (float64, bool)
	// 返回(起点,终点)上有成本的全部出行方式，按名称排序
	Modes(from, to int32) []string
}

// Table 内存中的成本表
// 运行期间成本可以在迭代之间整体替换（拥堵更新），读多写少，使用RBMutex
type Table struct {
	// 自由流成本
	freeFlow map[Key]Cost
	// 拥堵成本，缺失时回退到自由流成本
	congested map[Key]Cost
	// 是否读取拥堵成本
	useCongestion bool
	// 各出行方式的广义成本参数
	params map[string]Params
	// OD -> 出行方式列表
	odModes map[OD][]string
	// 每次替换成本后递增，用于使缓存失效
	version uint64

	mu *xsync.RBMutex
}

func NewTable(params map[string]Params, useCongestion bool) *Table {
	return &Table{
		freeFlow:      make(map[Key]Cost),
		congested:     make(map[Key]Cost),
		useCongestion: useCongestion,
		params:        params,
		odModes:       make(map[OD][]string),
		mu:            xsync.NewRBMutex(),
	}
}

// Load 批量写入成本，出行方式必须存在广义成本参数；任一条目非法时不写入
func (t *Table) Load(entries []Entry) error {
	if err := t.check(entries); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range entries {
		if e.Congested {
			t.congested[e.Key] = e.Cost
		} else {
			t.freeFlow[e.Key] = e.Cost
		}
		t.addMode(OD{From: e.From, To: e.To}, e.Mode)
	}
	t.version++
	return nil
}

// SetCosts 整体替换拥堵成本（迭代之间调用），任一条目非法时保持原表不变
func (t *Table) SetCosts(entries []Entry) error {
	if err := t.check(entries); err != nil {
		return err
	}
	congested := make(map[Key]Cost, len(entries))
	for _, e := range entries {
		congested[e.Key] = e.Cost
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.congested = congested
	// 旧拥堵成本带来的出行方式一并移除
	t.odModes = make(map[OD][]string, len(t.odModes))
	for k := range t.freeFlow {
		t.addMode(OD{From: k.From, To: k.To}, k.Mode)
	}
	for k := range t.congested {
		t.addMode(OD{From: k.From, To: k.To}, k.Mode)
	}
	t.version++
	log.Debugf("replaced %d congested costs, version=%d", len(entries), t.version)
	return nil
}

// params只在构造时写入，不需要加锁
func (t *Table) check(entries []Entry) error {
	for _, e := range entries {
		if _, ok := t.params[e.Mode]; !ok {
			return fmt.Errorf("%w: cost entry with unknown mode %q", algo.ErrInvalidParameter, e.Mode)
		}
		if e.Time < 0 || e.Distance < 0 || math.IsNaN(e.Time) || math.IsNaN(e.Distance) {
			return fmt.Errorf("%w: negative cost for %v", algo.ErrInvalidParameter, e.Key)
		}
	}
	return nil
}

func (t *Table) addMode(od OD, mode string) {
	if !lo.Contains(t.odModes[od], mode) {
		modes := append(t.odModes[od], mode)
		sort.Strings(modes)
		t.odModes[od] = modes
	}
}

func (t *Table) get(key Key) (Cost, bool) {
	if t.useCongestion {
		if c, ok := t.congested[key]; ok {
			return c, true
		}
	}
	if c, ok := t.freeFlow[key]; ok {
		return c, true
	}
	// 只有拥堵成本的条目
	c, ok := t.congested[key]
	return c, ok
}

func (t *Table) Get(from, to int32, mode string) (Cost, bool) {
	token := t.mu.RLock()
	defer t.mu.RUnlock(token)
	return t.get(Key{From: from, To: to, Mode: mode})
}

func (t *Table) GeneralizedCost(from, to int32, mode string) (float64, bool) {
	token := t.mu.RLock()
	defer t.mu.RUnlock(token)
	c, ok := t.get(Key{From: from, To: to, Mode: mode})
	if !ok {
		return 0, false
	}
	return t.params[mode].Generalized(c), true
}

func (t *Table) Modes(from, to int32) []string {
	token := t.mu.RLock()
	defer t.mu.RUnlock(token)
	return t.odModes[OD{From: from, To: to}]
}

// CostPerKm 返回OD上广义成本最低的出行方式的每公里成本
func (t *Table) CostPerKm(from, to int32, allowed func(mode string) bool) (float64, bool) {
	token := t.mu.RLock()
	defer t.mu.RUnlock(token)
	best := math.Inf(0)
	for _, mode := range t.odModes[OD{From: from, To: to}] {
		if allowed != nil && !allowed(mode) {
			continue
		}
		c, _ := t.get(Key{From: from, To: to, Mode: mode})
		if c.Distance <= 0 {
			continue
		}
		if perKm := t.params[mode].Generalized(c) / c.Distance; perKm < best {
			best = perKm
		}
	}
	if math.IsInf(best, 0) {
		return 0, false
	}
	return best, true
}

// Version 成本表版本号
func (t *Table) Version() uint64 {
	token := t.mu.RLock()
	defer t.mu.RUnlock(token)
	return t.version
}

// Len 自由流成本条目数
func (t *Table) Len() int {
	token := t.mu.RLock()
	defer t.mu.RUnlock(token)
	return len(t.freeFlow)
}
