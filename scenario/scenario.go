package scenario

import (
	"fmt"
	"os"

	"git.fiblab.net/sim/tripchain/v2/engine/capacity"
	"git.fiblab.net/sim/tripchain/v2/engine/cost"
	"git.fiblab.net/sim/tripchain/v2/engine/demand"
	"git.fiblab.net/sim/tripchain/v2/engine/destination"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var log = logrus.WithField("module", "scenario")

// CostInput (起点,终点,出行方式)的时间（小时）与距离（km）
type CostInput struct {
	From      int32   `yaml:"from" bson:"from"`
	To        int32   `yaml:"to" bson:"to"`
	Mode      string  `yaml:"mode" bson:"mode"`
	Time      float64 `yaml:"time" bson:"time"`
	Distance  float64 `yaml:"distance" bson:"distance"`
	Congested bool    `yaml:"congested" bson:"congested"`
}

// Scenario 一次运行的全部外部输入
type Scenario struct {
	Zones         []destination.ZoneInput     `yaml:"zones"`
	Costs         []CostInput                 `yaml:"costs"`
	Opportunities []capacity.OpportunityInput `yaml:"opportunities"`
	Groups        []demand.GroupInput         `yaml:"groups"`
	Chains        []demand.ChainInput         `yaml:"chains"`
}

func (s *Scenario) CostEntries() []cost.Entry {
	return lo.Map(s.Costs, func(c CostInput, _ int) cost.Entry {
		return cost.Entry{
			Key:       cost.Key{From: c.From, To: c.To, Mode: c.Mode},
			Cost:      cost.Cost{Time: c.Time, Distance: c.Distance},
			Congested: c.Congested,
		}
	})
}

func (s *Scenario) check() error {
	if len(s.Zones) == 0 {
		return fmt.Errorf("scenario has no zones")
	}
	if len(s.Groups) == 0 {
		return fmt.Errorf("scenario has no demand groups")
	}
	log.Infof("scenario: %d zones, %d costs, %d opportunities, %d groups, %d chains",
		len(s.Zones), len(s.Costs), len(s.Opportunities), len(s.Groups), len(s.Chains))
	return nil
}

// LoadFile 从YAML文件读取场景
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return &s, nil
}
