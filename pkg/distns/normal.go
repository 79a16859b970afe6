package distns

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// NormalName 正态分布在注册表中的名称
const NormalName = "normal"

// Normal 正态分布
//
// 两个参数 loc、scale 分别是均值与标准差。内部参数为 [loc, log(scale)]，
// scale 经指数映射后恒为正。支持 LogScore 与 CRPScore。
type Normal struct {
	params *mat.Dense
	src    rand.Source
}

// NewNormal 用 (n, 2) 的内部参数创建正态分布实例
// src 为 nil 时采样使用全局随机源
func NewNormal(internal *mat.Dense, src rand.Source) *Normal {
	return &Normal{params: internal, src: src}
}

func (Normal) Name() string { return NormalName }

func (Normal) NumParams() int { return 2 }

func (Normal) Scores() []Score {
	return []Score{NormalLogScore{}, NormalCRPScore{}}
}

// Params 返回内部参数（不拷贝）
func (d *Normal) Params() *mat.Dense { return d.params }

// ParamsToUser 内部参数 -> {loc, scale}，loc 为第 0 列，scale = exp(第 1 列)
func (Normal) ParamsToUser(internal *mat.Dense) UserParams {
	n, _ := internal.Dims()
	loc := make([]float64, n)
	scale := make([]float64, n)
	for i := 0; i < n; i++ {
		loc[i] = internal.At(i, 0)
		scale[i] = math.Exp(internal.At(i, 1))
	}
	return UserParams{ParamLoc: loc, ParamScale: scale}
}

// ParamsToInternal {loc, scale} -> (n, 2) 内部参数 [loc, log(scale)]
// scale <= 0 时得到 NaN/-Inf，不报错
func (Normal) ParamsToInternal(loc, scale []float64) *mat.Dense {
	n := broadcastLen(loc, scale)
	if n == 0 {
		return &mat.Dense{}
	}
	data := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		data = append(data, at(loc, i), math.Log(at(scale, i)))
	}
	return mat.NewDense(n, 2, data)
}

// CDF P(X <= y)，参数按广播规则对齐
func (Normal) CDF(y, loc, scale []float64) []float64 {
	return normalEval(y, loc, scale, distuv.Normal.CDF)
}

// PDF 概率密度
func (Normal) PDF(y, loc, scale []float64) []float64 {
	return normalEval(y, loc, scale, distuv.Normal.Prob)
}

// LogPDF 对数概率密度
func (Normal) LogPDF(y, loc, scale []float64) []float64 {
	return normalEval(y, loc, scale, distuv.Normal.LogProb)
}

func normalEval(y, loc, scale []float64, fn func(distuv.Normal, float64) float64) []float64 {
	n := broadcastLen(y, loc, scale)
	out := make([]float64, n)
	for i := range out {
		out[i] = fn(distuv.Normal{Mu: at(loc, i), Sigma: at(scale, i)}, at(y, i))
	}
	return out
}

// Fit 极大似然估计：均值与总体标准差（分母为 n），再映射回内部参数
// 空样本返回 [NaN, NaN]；常数样本的 log(scale) 为 -Inf
func (d Normal) Fit(y []float64) []float64 {
	if len(y) == 0 {
		return []float64{math.NaN(), math.NaN()}
	}
	mean, variance := stat.PopMeanVariance(y, nil)
	return d.ParamsToInternal([]float64{mean}, []float64{math.Sqrt(variance)}).RawRowView(0)
}

// Mean 分布的均值，即 loc
func (d *Normal) Mean() []float64 {
	if d.params == nil {
		return nil
	}
	n, _ := d.params.Dims()
	loc := make([]float64, n)
	for i := range loc {
		loc[i] = d.params.At(i, 0)
	}
	return loc
}

// Sample 对每个观测抽取 m 个独立样本，返回 (m, n) 矩阵
func (d *Normal) Sample(m int) *mat.Dense {
	if d.params == nil {
		return &mat.Dense{}
	}
	user := d.ParamsToUser(d.params)
	loc, scale := user[ParamLoc], user[ParamScale]
	n := len(loc)
	if m <= 0 || n == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(m, n, nil)
	for j := 0; j < n; j++ {
		dist := distuv.Normal{Mu: loc[j], Sigma: scale[j], Src: d.src}
		for i := 0; i < m; i++ {
			out.Set(i, j, dist.Rand())
		}
	}
	return out
}
