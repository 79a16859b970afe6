package distns

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// NaturalGradient 逐行求解 FI_i · g_i = ∇_i，返回 (n, p) 的自然梯度
// 度量矩阵不正定时返回错误
func NaturalGradient(s Scorer, internal *mat.Dense, y []float64) (*mat.Dense, error) {
	grad := s.DScore(internal, y)
	metric := s.Metric(internal)
	n, p := grad.Dims()
	if n == 0 {
		return &mat.Dense{}, nil
	}
	if len(metric) != n && len(metric) != 1 {
		return nil, fmt.Errorf("metric rows %d do not match gradient rows %d", len(metric), n)
	}

	out := mat.NewDense(n, p, nil)
	var chol mat.Cholesky
	var g mat.VecDense
	for i := 0; i < n; i++ {
		fi := metric[0]
		if len(metric) > 1 {
			fi = metric[i]
		}
		if ok := chol.Factorize(fi); !ok {
			return nil, fmt.Errorf("metric at row %d is not positive definite", i)
		}
		if err := chol.SolveVecTo(&g, grad.RowView(i)); err != nil {
			return nil, fmt.Errorf("solve row %d: %w", i, err)
		}
		out.SetRow(i, g.RawVector().Data)
	}
	return out, nil
}
