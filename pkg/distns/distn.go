package distns

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// 用户参数的键名
const (
	ParamLoc   = "loc"
	ParamScale = "scale"
)

// UserParams 用户可读的参数（例如 loc/scale），每个键对应长度为 n 的数组
type UserParams map[string][]float64

// Distribution 分布接口
//
// ParamsToUser/ParamsToInternal/CDF/Fit 属于“类级别”操作，不读取接收者的内部参数；
// Mean/Sample 读取构造时传入的内部参数。
type Distribution interface {
	Name() string
	// NumParams 内部参数的列数
	NumParams() int
	ParamsToUser(internal *mat.Dense) UserParams
	ParamsToInternal(loc, scale []float64) *mat.Dense
	CDF(y, loc, scale []float64) []float64
	// Fit 对一维样本做极大似然拟合，返回内部参数向量
	Fit(y []float64) []float64
	Mean() []float64
	// Sample 每个观测抽取 m 个样本，返回 (m, n) 矩阵
	Sample(m int) *mat.Dense
	// Scores 该分布支持的评分规则
	Scores() []Score
}

// Score 评分规则接口：提供自然梯度所需的度量（Fisher 信息等）
type Score interface {
	Name() string
	Metric(internal *mat.Dense) []*mat.SymDense
}

// Scorer 在 Score 的基础上提供评分值与对内部参数的梯度
type Scorer interface {
	Score
	Score(internal *mat.Dense, y []float64) []float64
	// DScore 返回 (n, NumParams) 的梯度矩阵
	DScore(internal *mat.Dense, y []float64) *mat.Dense
}

// broadcastLen 返回广播后的长度：长度为 1 的参数可以与任意长度匹配
func broadcastLen(args ...[]float64) int {
	n := 1
	for _, a := range args {
		switch {
		case len(a) == 1:
		case n == 1:
			n = len(a)
		case len(a) != n:
			panic(fmt.Sprintf("distns: length mismatch %d vs %d", len(a), n))
		}
	}
	for _, a := range args {
		if len(a) == 0 {
			return 0
		}
	}
	return n
}

// at 按广播规则取第 i 个元素
func at(a []float64, i int) float64 {
	if len(a) == 1 {
		return a[0]
	}
	return a[i]
}
