package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/betbot/ngdist/pkg/api"
)

// Client ngdist HTTP 服务的类型化客户端
type Client struct {
	client *resty.Client
}

func NewClient(host string) *Client {
	host = strings.TrimSuffix(host, "/")

	client := resty.New().
		SetBaseURL(host).
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(retryIdempotent)

	return &Client{client: client}
}

// retryIdempotent 只重试 GET 的连接错误和 5xx；POST /fit 会写入记录，重试可能产生重复
func retryIdempotent(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
		return false
	}
	return err != nil || resp.StatusCode() >= http.StatusInternalServerError
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	r := c.client.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", "ngdist-go-client")
	r.SetError(&api.ErrorResponse{})
	return r
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	resp, err := c.newRequest(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(out).
		Post(endpoint)
	return parseHTTPError(endpoint, resp, err)
}

func (c *Client) get(ctx context.Context, endpoint string, params map[string]string, out any) error {
	resp, err := c.newRequest(ctx).
		SetQueryParams(params).
		SetResult(out).
		Get(endpoint)
	return parseHTTPError(endpoint, resp, err)
}

// HTTPError 非 2xx 响应
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func parseHTTPError(endpoint string, resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrapf(err, "request %s", endpoint)
	}
	if resp.IsSuccess() {
		return nil
	}
	msg := strings.TrimSpace(string(resp.Body()))
	if e, ok := resp.Error().(*api.ErrorResponse); ok && e.Error != "" {
		msg = e.Error
	}
	return errors.WithStack(&HTTPError{StatusCode: resp.StatusCode(), Message: msg})
}

func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil, nil)
}

func (c *Client) Distributions(ctx context.Context) ([]api.DistributionInfo, error) {
	var out []api.DistributionInfo
	if err := c.get(ctx, "/api/distributions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ParamsToUser 内部参数 (n, 2) 转换为 loc/scale
func (c *Client) ParamsToUser(ctx context.Context, params [][]float64) (*api.UserResponse, error) {
	var out api.UserResponse
	if err := c.post(ctx, "/api/normal/user", api.UserRequest{Params: toRows(params)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ParamsToInternal(ctx context.Context, loc, scale []float64) ([][]float64, error) {
	var out api.InternalResponse
	req := api.InternalRequest{Loc: api.Floats(loc), Scale: api.Floats(scale)}
	if err := c.post(ctx, "/api/normal/internal", req, &out); err != nil {
		return nil, err
	}
	return fromRows(out.Params), nil
}

func (c *Client) CDF(ctx context.Context, y, loc, scale []float64) ([]float64, error) {
	var out api.CDFResponse
	req := api.CDFRequest{Y: api.Floats(y), Loc: api.Floats(loc), Scale: api.Floats(scale)}
	if err := c.post(ctx, "/api/normal/cdf", req, &out); err != nil {
		return nil, err
	}
	return api.Float64s(out.CDF), nil
}

// Metric score 为空时使用服务端默认评分规则
func (c *Client) Metric(ctx context.Context, params [][]float64, score string) (*api.MetricResponse, error) {
	var out api.MetricResponse
	if err := c.post(ctx, "/api/normal/metric", api.MetricRequest{Params: toRows(params), Score: score}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Score(ctx context.Context, params [][]float64, y []float64, score string) (*api.ScoreResponse, error) {
	var out api.ScoreResponse
	req := api.ScoreRequest{Params: toRows(params), Y: api.Floats(y), Score: score}
	if err := c.post(ctx, "/api/normal/score", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sample 返回 (m, n) 样本；seed 为 nil 时由服务端决定随机源
func (c *Client) Sample(ctx context.Context, params [][]float64, m int, seed *uint64) ([][]float64, error) {
	var out api.SampleResponse
	req := api.SampleRequest{Params: toRows(params), M: m, Seed: seed}
	if err := c.post(ctx, "/api/normal/sample", req, &out); err != nil {
		return nil, err
	}
	return fromRows(out.Samples), nil
}

func (c *Client) Fit(ctx context.Context, y []float64) (*api.Fit, error) {
	var out api.Fit
	if err := c.post(ctx, "/api/normal/fit", api.FitRequest{Y: api.Floats(y)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListFits(ctx context.Context, limit int) ([]api.Fit, error) {
	var params map[string]string
	if limit > 0 {
		params = map[string]string{"limit": fmt.Sprint(limit)}
	}
	var out []api.Fit
	if err := c.get(ctx, "/api/fits", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetFit(ctx context.Context, id string) (*api.Fit, error) {
	var out api.Fit
	if err := c.get(ctx, "/api/fits/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func toRows(xs [][]float64) [][]api.Float {
	out := make([][]api.Float, len(xs))
	for i, row := range xs {
		out[i] = api.Floats(row)
	}
	return out
}

func fromRows(rows [][]api.Float) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = api.Float64s(row)
	}
	return out
}
