package config

// MotiveConfig 出行目的参数
type MotiveConfig struct {
	Name string `yaml:"name" validate:"required"`
	// 是否为锚点目的（如工作、上学），锚点从家出发抽样
	IsAnchor bool `yaml:"is_anchor"`
	// 是否有容量约束的目的地
	HasOpportunities bool `yaml:"has_opportunities"`
	// 机会模型参数，alpha+beta<=1
	Alpha float64 `yaml:"alpha" validate:"gte=0,lte=1"`
	Beta  float64 `yaml:"beta" validate:"gte=0,lte=1"`
	// 活动的时间价值
	ValueOfTime float64 `yaml:"value_of_time" validate:"gte=0"`
	// 目的地容量放大系数
	SinkSaturationCoeff float64 `yaml:"sink_saturation_coeff" validate:"gte=0"`
	// 饱和函数形状参数与参考水平
	SaturationFunBeta     float64 `yaml:"saturation_fun_beta" validate:"gt=0"`
	SaturationFunRefLevel float64 `yaml:"saturation_fun_ref_level" validate:"gt=0"`
}

// ModeConfig 出行方式参数
type ModeConfig struct {
	Name string `yaml:"name" validate:"required"`
	// 需要的交通工具类别，为空表示不需要
	Vehicle string `yaml:"vehicle"`
	// 是否为多式联运（停车后换乘，返程取车）
	Multimodal bool `yaml:"multimodal"`
	// 多式联运方式对应的返程方式名
	ReturnMode string `yaml:"return_mode"`
	// 广义成本 = constant + cost_of_time*time + cost_of_distance*distance
	Constant       float64 `yaml:"constant" validate:"gte=0"`
	CostOfTime     float64 `yaml:"cost_of_time" validate:"gte=0"`
	CostOfDistance float64 `yaml:"cost_of_distance" validate:"gte=0"`
}

// Config 模型全局参数
type Config struct {
	// 均衡迭代次数上限，必须显式配置
	MaxIterations int `yaml:"max_iterations" validate:"required,gt=0"`
	// 每条出行链保留的出行方式序列数
	KSequences int `yaml:"k_sequences" validate:"gte=1"`
	// top-k搜索最大堆大小
	MaxHeapSize int `yaml:"max_heap_size" validate:"gte=1"`
	// 出行方式序列与目的地概率截断阈值
	ModeProbCutoff float64 `yaml:"mode_prob_cutoff" validate:"gt=0,lte=1"`
	DestProbCutoff float64 `yaml:"dest_prob_cutoff" validate:"gt=0,lte=1"`
	// 成本分箱分辨率
	CostBinResolution float64 `yaml:"cost_bin_resolution" validate:"gt=0"`
	// 目的地最大距离（km），0表示不限制
	MaxDistance float64 `yaml:"max_distance" validate:"gte=0"`
	// 缺少OD成本时使用的每公里成本
	DefaultCostPerKm float64 `yaml:"default_cost_per_km" validate:"gt=0"`
	// 最短活动时长常数，d_min = mean * exp(-c)
	MinActivityTimeConstant float64 `yaml:"min_activity_time_constant" validate:"gte=0"`
	// 全天在家的效用系数
	StayHomeUtilityCoeff float64 `yaml:"stay_home_utility_coeff" validate:"gte=0"`
	// 非锚点目的地抽样时朝向下一个锚点的成本惩罚
	AnchorPenalty float64 `yaml:"anchor_penalty" validate:"gte=0"`
	// 是否使用拥堵成本
	Congestion bool `yaml:"congestion"`
	// 随机种子
	Seed uint64 `yaml:"seed"`
	// 并行worker数，0表示CPU数
	Workers int `yaml:"workers" validate:"gte=0"`
	// 家的目的名
	HomeMotive string `yaml:"home_motive" validate:"required"`

	Motives []MotiveConfig `yaml:"motives" validate:"required,min=1,dive"`
	Modes   []ModeConfig   `yaml:"modes" validate:"required,min=1,dive"`
}
