package demand

// 无车家庭的车辆分档取值
const NO_CAR_BUCKET = "0"

// GroupInput 外部输入的需求群体
type GroupInput struct {
	ID        int32   `yaml:"id" bson:"id"`
	HomeZone  int32   `yaml:"home_zone" bson:"home_zone"`
	CSP       string  `yaml:"csp" bson:"csp"`
	CarBucket string  `yaml:"car_bucket" bson:"car_bucket"`
	NPersons  float64 `yaml:"n_persons" bson:"n_persons"`
}

// ChainInput 外部输入的出行链概率，按(csp,车辆分档)给出
type ChainInput struct {
	CSP       string   `yaml:"csp" bson:"csp"`
	CarBucket string   `yaml:"car_bucket" bson:"car_bucket"`
	Motives   []string `yaml:"motives" bson:"motives"`
	// 每一步活动的时长（小时），最后一步为回家过夜的时长
	Durations   []float64 `yaml:"durations" bson:"durations"`
	Probability float64   `yaml:"probability" bson:"probability"`
}

// Group 需求群体，构建后不可变
type Group struct {
	ID        int32
	HomeZone  int32
	CSP       int
	CarBucket int
	HasCar    bool
	NPersons  float64
}

// MotiveSequence 出行目的序列，编号由全部序列排序后分配，0为全天在家
type MotiveSequence struct {
	ID      uint32
	Key     string
	Motives []int
	Anchors []bool
}

func (s *MotiveSequence) Len() int {
	return len(s.Motives)
}

// Chain (群体类别,目的序列)及其概率与每步时长
type Chain struct {
	CSP         int
	CarBucket   int
	Sequence    *MotiveSequence
	Probability float64
	Durations   []float64
}

type bucket struct {
	csp int
	car int
}
