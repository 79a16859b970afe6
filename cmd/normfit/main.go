package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"gonum.org/v1/gonum/mat"

	"github.com/betbot/ngdist/pkg/config"
	"github.com/betbot/ngdist/pkg/distns"
	"github.com/betbot/ngdist/pkg/logger"
)

// 样式定义
var (
	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func main() {
	_ = godotenv.Load()
	logger.InitWithWriter(os.Stderr, "warn")

	// 默认值来自环境变量（NGDIST_SCORE / NGDIST_SEED）
	cfg, err := config.LoadFromFile("")
	if err != nil {
		fail(err)
	}

	var (
		seed  = flag.Uint64("seed", cfg.Sampling.Seed, "random seed for samples (0 = random)")
		m     = flag.Int("m", 5, "number of samples to draw from the fit")
		score = flag.String("score", cfg.Score, "scoring rule: log | crps")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: normfit [-seed N] [-m M] [-score log|crps] y1 y2 ...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	y, err := parseValues(flag.Args())
	if err != nil {
		fail(err)
	}
	if len(y) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if *m < 0 {
		fail(fmt.Errorf("m must not be negative"))
	}

	normal := distns.NewNormal(nil, nil)
	sc, err := distns.ScorerFor(normal, *score)
	if err != nil {
		fail(err)
	}

	params := normal.Fit(y)
	if err := checkFinite(params); err != nil {
		fail(err)
	}
	internal := mat.NewDense(1, len(params), params)
	user := normal.ParamsToUser(internal)
	loc, scale := user[distns.ParamLoc][0], user[distns.ParamScale][0]

	var src rand.Source
	if *seed != 0 {
		src = rand.NewPCG(*seed, *seed)
	}
	samples := distns.NewNormal(internal, src).Sample(*m)

	fi := sc.Metric(internal)[0]
	cdf := normal.CDF(y, []float64{loc}, []float64{scale})
	scores := sc.Score(internal, y)

	var b strings.Builder
	fmt.Fprintln(&b, titleStyle.Render(fmt.Sprintf("Normal fit (n=%d)", len(y))))
	row(&b, "loc", fmt.Sprintf("%.6g", loc))
	row(&b, "scale", fmt.Sprintf("%.6g", scale))
	row(&b, "internal", fmt.Sprintf("[%.6g, %.6g]", params[0], params[1]))
	row(&b, "metric ("+sc.Name()+")", fmt.Sprintf("[[%.6g, %.6g], [%.6g, %.6g]]",
		fi.At(0, 0), fi.At(0, 1), fi.At(1, 0), fi.At(1, 1)))
	row(&b, "mean score", fmt.Sprintf("%.6g", mean(scores)))

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, titleStyle.Render("CDF"))
	for i, v := range y {
		row(&b, fmt.Sprintf("F(%.6g)", v), fmt.Sprintf("%.6f", cdf[i]))
	}

	if *m > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, titleStyle.Render(fmt.Sprintf("Samples (m=%d)", *m)))
		parts := make([]string, 0, *m)
		for i := 0; i < *m; i++ {
			parts = append(parts, fmt.Sprintf("%.6g", samples.At(i, 0)))
		}
		fmt.Fprintln(&b, valueStyle.Render(strings.Join(parts, "  ")))
	}

	fmt.Println(boxStyle.Render(strings.TrimRight(b.String(), "\n")))
}

func row(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-14s", label)), valueStyle.Render(value))
}

func parseValues(args []string) ([]float64, error) {
	out := make([]float64, 0, len(args))
	for _, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", a, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// checkFinite 拟合参数含 NaN/Inf 时视为退化样本（常数样本或输入含 Inf/NaN）
func checkFinite(params []float64) error {
	for _, p := range params {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("degenerate sample: fitted parameters are not finite")
		}
	}
	return nil
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func fail(err error) {
	logger.Errorf("normfit: %v", err)
	fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
	os.Exit(1)
}
