package algo

import "errors"

const (
	// 出行方式序列概率分布保留的累计概率
	DEFAULT_MODE_PROB_CUTOFF = 0.98
	// 目的地概率分布保留的累计概率
	DEFAULT_DEST_PROB_CUTOFF = 0.95

	// 成本分箱的分辨率，cost_bin = round(cost * 100)
	DEFAULT_COST_BIN_RESOLUTION = 100

	// 每条出行链保留的出行方式序列数
	DEFAULT_K_SEQUENCES = 6
	// 单次top-k搜索允许的最大堆大小
	DEFAULT_MAX_HEAP_SIZE = 100000

	// 数值误差容忍
	EPS = 1e-9

	// 一天的小时数
	DAY_HOURS = 24.0
	// 活动时长下限，2分钟（单位：小时）
	MIN_DURATION_HOURS = 120.0 / 3600.0
)

var (
	// 错误：缺少(起点,终点,出行方式)的成本
	ErrMissingCost = errors.New("missing cost")
	// 错误：top-k搜索没有找到任何可行的出行方式序列
	ErrNoFeasibleSequence = errors.New("no feasible mode sequence")
	// 错误：候选目的地为空或全部饱和
	ErrSaturatedDestinationSet = errors.New("saturated destination set")
	// 错误：均衡迭代超出次数上限仍未收敛
	ErrNonConvergence = errors.New("equilibrium did not converge")
	// 错误：非法参数
	ErrInvalidParameter = errors.New("invalid parameter")
)
