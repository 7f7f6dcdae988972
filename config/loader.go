package config

import (
	"fmt"
	"os"

	"git.fiblab.net/sim/tripchain/v2/engine/algo"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Default 返回填充默认值的配置，max_iterations与目的、出行方式必须由调用者提供
func Default() Config {
	return Config{
		KSequences:              algo.DEFAULT_K_SEQUENCES,
		MaxHeapSize:             algo.DEFAULT_MAX_HEAP_SIZE,
		ModeProbCutoff:          algo.DEFAULT_MODE_PROB_CUTOFF,
		DestProbCutoff:          algo.DEFAULT_DEST_PROB_CUTOFF,
		CostBinResolution:       algo.DEFAULT_COST_BIN_RESOLUTION,
		DefaultCostPerKm:        1,
		MinActivityTimeConstant: 1,
		StayHomeUtilityCoeff:    1,
		AnchorPenalty:           0.01,
		HomeMotive:              "home",
	}
}

// DefaultMotive 返回填充默认值的目的参数
func DefaultMotive(name string) MotiveConfig {
	return MotiveConfig{
		Name:                  name,
		HasOpportunities:      true,
		Beta:                  1,
		ValueOfTime:           10,
		SinkSaturationCoeff:   1,
		SaturationFunBeta:     4,
		SaturationFunRefLevel: 1.5,
	}
}

// UnmarshalYAML 未给出的字段使用DefaultMotive的默认值
func (m *MotiveConfig) UnmarshalYAML(node *yaml.Node) error {
	type raw MotiveConfig
	v := raw(DefaultMotive(""))
	if err := node.Decode(&v); err != nil {
		return err
	}
	*m = MotiveConfig(v)
	return nil
}

// Load 从YAML文件读取并校验配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse 解析YAML内容，缺省字段使用Default中的值
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验字段范围与跨字段约束，错误包装为algo.ErrInvalidParameter
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterStructValidation(validateMotive, MotiveConfig{})
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", algo.ErrInvalidParameter, err)
	}
	if dup := lo.FindDuplicates(lo.Map(c.Motives, func(m MotiveConfig, _ int) string { return m.Name })); len(dup) > 0 {
		return fmt.Errorf("%w: duplicated motives %v", algo.ErrInvalidParameter, dup)
	}
	if !lo.ContainsBy(c.Motives, func(m MotiveConfig) bool { return m.Name == c.HomeMotive }) {
		return fmt.Errorf("%w: home motive %q is not declared", algo.ErrInvalidParameter, c.HomeMotive)
	}
	names := lo.Map(c.Modes, func(m ModeConfig, _ int) string { return m.Name })
	if dup := lo.FindDuplicates(names); len(dup) > 0 {
		return fmt.Errorf("%w: duplicated modes %v", algo.ErrInvalidParameter, dup)
	}
	for _, m := range c.Modes {
		if m.ReturnMode == "" {
			continue
		}
		if !m.Multimodal || m.Vehicle == "" {
			return fmt.Errorf("%w: mode %q declares a return mode but is not a multimodal vehicle mode", algo.ErrInvalidParameter, m.Name)
		}
		if m.ReturnMode == m.Name {
			return fmt.Errorf("%w: mode %q is its own return mode", algo.ErrInvalidParameter, m.Name)
		}
	}
	return nil
}

func validateMotive(sl validator.StructLevel) {
	m := sl.Current().Interface().(MotiveConfig)
	if m.Alpha+m.Beta > 1+algo.EPS {
		sl.ReportError(m.Beta, "Beta", "Beta", "alpha_beta_sum", "1")
	}
}

// Motive 按名称查找目的参数
func (c *Config) Motive(name string) (MotiveConfig, bool) {
	return lo.Find(c.Motives, func(m MotiveConfig) bool { return m.Name == name })
}
