package api

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Float JSON 数字；NaN/±Inf 编码为字符串 "NaN" / "+Inf" / "-Inf"
// 数值层按约定静默传播非有限值，传输层需要能原样表达
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (f *Float) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = Float(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Floats 转换 []float64
func Floats(xs []float64) []Float {
	out := make([]Float, len(xs))
	for i, x := range xs {
		out[i] = Float(x)
	}
	return out
}

// Float64s 转换回 []float64
func Float64s(xs []Float) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}

// Rows 矩阵按行展开
func Rows(m mat.Matrix) [][]Float {
	r, c := m.Dims()
	out := make([][]Float, r)
	for i := range out {
		out[i] = make([]Float, c)
		for j := range out[i] {
			out[i][j] = Float(m.At(i, j))
		}
	}
	return out
}

// Matrix 按行构造矩阵；列数不一致时返回 false
func Matrix(rows [][]Float, cols int) (*mat.Dense, bool) {
	if len(rows) == 0 {
		return &mat.Dense{}, true
	}
	data := make([]float64, 0, len(rows)*cols)
	for _, row := range rows {
		if len(row) != cols {
			return nil, false
		}
		for _, v := range row {
			data = append(data, float64(v))
		}
	}
	return mat.NewDense(len(rows), cols, data), true
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type DistributionInfo struct {
	Name   string   `json:"name"`
	Scores []string `json:"scores"`
}

type UserRequest struct {
	Params [][]Float `json:"params"`
}

type UserResponse struct {
	Loc   []Float `json:"loc"`
	Scale []Float `json:"scale"`
}

type InternalRequest struct {
	Loc   []Float `json:"loc"`
	Scale []Float `json:"scale"`
}

type InternalResponse struct {
	Params [][]Float `json:"params"`
}

type CDFRequest struct {
	Y     []Float `json:"y"`
	Loc   []Float `json:"loc"`
	Scale []Float `json:"scale"`
}

type CDFResponse struct {
	CDF []Float `json:"cdf"`
}

type MetricRequest struct {
	Params [][]Float `json:"params"`
	Score  string    `json:"score,omitempty"` // 为空时使用服务默认评分规则
}

type MetricResponse struct {
	Score  string      `json:"score"`
	Metric [][][]Float `json:"metric"` // (n, 2, 2)
}

type ScoreRequest struct {
	Params [][]Float `json:"params"`
	Y      []Float   `json:"y"`
	Score  string    `json:"score,omitempty"`
}

type ScoreResponse struct {
	Score       string    `json:"score"`
	Values      []Float   `json:"values"`
	Grad        [][]Float `json:"grad"`
	NaturalGrad [][]Float `json:"natural_grad"`
}

type SampleRequest struct {
	Params [][]Float `json:"params"`
	M      int       `json:"m"`
	Seed   *uint64   `json:"seed,omitempty"` // 为空时使用服务配置的种子
}

type SampleResponse struct {
	Samples [][]Float `json:"samples"` // (m, n)
}

type FitRequest struct {
	Y []Float `json:"y"`
}

type Fit struct {
	ID           string    `json:"id"`
	Distribution string    `json:"distribution"`
	Params       []Float   `json:"params"`
	Loc          Float     `json:"loc"`
	Scale        Float     `json:"scale"`
	N            int       `json:"n"`
	CreatedAt    time.Time `json:"created_at"`
}
