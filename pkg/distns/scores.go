package distns

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// 评分规则名称
const (
	LogScoreName = "log"
	CRPScoreName = "crps"
)

var (
	normal    Normal
	stdNormal = distuv.UnitNormal
)

// NormalLogScore 正态分布的对数评分（负对数似然）
type NormalLogScore struct{}

func (NormalLogScore) Name() string { return LogScoreName }

// Metric 关于 (loc, log scale) 的 Fisher 信息：diag(1/scale², 2)
// scale 为 0 时对应项为 +Inf，不做保护
func (NormalLogScore) Metric(internal *mat.Dense) []*mat.SymDense {
	scale := normal.ParamsToUser(internal)[ParamScale]
	fi := make([]*mat.SymDense, len(scale))
	for i, s := range scale {
		fi[i] = mat.NewSymDense(2, []float64{1 / (s * s), 0, 0, 2})
	}
	return fi
}

// Score -logpdf(y)
func (NormalLogScore) Score(internal *mat.Dense, y []float64) []float64 {
	user := normal.ParamsToUser(internal)
	logp := normal.LogPDF(y, user[ParamLoc], user[ParamScale])
	for i := range logp {
		logp[i] = -logp[i]
	}
	return logp
}

// DScore 每行 [(loc-y)/var, 1-(loc-y)²/var]
func (NormalLogScore) DScore(internal *mat.Dense, y []float64) *mat.Dense {
	user := normal.ParamsToUser(internal)
	loc, scale := user[ParamLoc], user[ParamScale]
	n := broadcastLen(y, loc)
	if n == 0 {
		return &mat.Dense{}
	}
	d := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		diff := at(loc, i) - at(y, i)
		variance := at(scale, i) * at(scale, i)
		d.Set(i, 0, diff/variance)
		d.Set(i, 1, 1-diff*diff/variance)
	}
	return d
}

// NormalCRPScore 正态分布的连续分级概率评分（CRPS）
type NormalCRPScore struct{}

func (NormalCRPScore) Name() string { return CRPScoreName }

// Metric 1/(2√π) · diag(2, scale²)
func (NormalCRPScore) Metric(internal *mat.Dense) []*mat.SymDense {
	scale := normal.ParamsToUser(internal)[ParamScale]
	c := 1 / (2 * math.Sqrt(math.Pi))
	fi := make([]*mat.SymDense, len(scale))
	for i, s := range scale {
		fi[i] = mat.NewSymDense(2, []float64{2 * c, 0, 0, s * s * c})
	}
	return fi
}

// Score scale·(z(2Φ(z)-1) + 2φ(z) - 1/√π)，z = (y-loc)/scale
func (NormalCRPScore) Score(internal *mat.Dense, y []float64) []float64 {
	user := normal.ParamsToUser(internal)
	loc, scale := user[ParamLoc], user[ParamScale]
	n := broadcastLen(y, loc)
	out := make([]float64, n)
	for i := range out {
		out[i] = crps(at(y, i), at(loc, i), at(scale, i))
	}
	return out
}

// DScore 每行 [-(2Φ(z)-1), score + (y-loc)·D0]
func (NormalCRPScore) DScore(internal *mat.Dense, y []float64) *mat.Dense {
	user := normal.ParamsToUser(internal)
	loc, scale := user[ParamLoc], user[ParamScale]
	n := broadcastLen(y, loc)
	if n == 0 {
		return &mat.Dense{}
	}
	d := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		yi, li, si := at(y, i), at(loc, i), at(scale, i)
		z := (yi - li) / si
		d0 := -(2*stdNormal.CDF(z) - 1)
		d.Set(i, 0, d0)
		d.Set(i, 1, crps(yi, li, si)+(yi-li)*d0)
	}
	return d
}

func crps(y, loc, scale float64) float64 {
	z := (y - loc) / scale
	return scale * (z*(2*stdNormal.CDF(z)-1) + 2*stdNormal.Prob(z) - 1/math.Sqrt(math.Pi))
}
