package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// PrometheusAdapter runs a range query against /api/v1/query_range.
// VictoriaMetrics and other Prometheus-compatible backends use the same
// endpoint and response shape.
//
// If the query returns several series, values with the same timestamp are
// summed.
type PrometheusAdapter struct {
	// ServerURL is the base URL, e.g. http://prometheus:9090.
	ServerURL string
	// Query is the PromQL (or MetricsQL) expression.
	Query string
	// StepSeconds is the query resolution, DefaultStepSeconds when <= 0.
	StepSeconds int
	// Kind names the backend; "prometheus" when empty.
	Kind string
	// HTTPClient is optional; a client with a 10s timeout is used when nil.
	HTTPClient *http.Client

	now func() time.Time
}

func (p *PrometheusAdapter) Name() string {
	if p.Kind == "" {
		return "prometheus"
	}
	return p.Kind
}

// Collect implements Adapter.
func (p *PrometheusAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if p.ServerURL == "" || p.Query == "" {
		return nil, fmt.Errorf("%s adapter: ServerURL and Query are required", p.Name())
	}
	if windowSeconds <= 0 {
		return nil, fmt.Errorf("%s adapter: window must be positive", p.Name())
	}

	now := time.Now
	if p.now != nil {
		now = p.now
	}
	start, end := window(windowSeconds, now())
	step := stepOrDefault(p.StepSeconds)

	u, err := url.Parse(p.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u.Path = "/api/v1/query_range"
	q := u.Query()
	q.Set("query", p.Query)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))
	q.Set("step", strconv.Itoa(step))
	u.RawQuery = q.Encode()

	cli := p.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: status %d: %s", p.Name(), resp.StatusCode, body)
	}

	var rr RangeResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&rr); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", p.Name(), err)
	}
	if rr.Status != "success" {
		if rr.Error != "" {
			return nil, fmt.Errorf("%s: %s", p.Name(), rr.Error)
		}
		return nil, fmt.Errorf("%s status: %s", p.Name(), rr.Status)
	}

	points, err := SumRangeResult(rr.Data.Result)
	if err != nil {
		return nil, err
	}
	return &DataFrame{Name: p.Query, Points: points}, nil
}

// RangeResponse is the body of a query_range call.
type RangeResponse struct {
	Status string    `json:"status"`
	Error  string    `json:"error,omitempty"`
	Data   RangeData `json:"data"`
}

// RangeData holds the matrix result.
type RangeData struct {
	ResultType string        `json:"resultType"`
	Result     []RangeSeries `json:"result"`
}

// RangeSeries is one series of the matrix. Each value is
// [<unix seconds>, "<value>"].
type RangeSeries struct {
	Metric map[string]string `json:"metric"`
	Values [][]any           `json:"values"`
}

// SumRangeResult merges the series of a matrix, summing values that share
// a timestamp, and returns the points in time order.
func SumRangeResult(series []RangeSeries) ([]Point, error) {
	acc := make(map[int64]float64)
	for _, s := range series {
		for _, pair := range s.Values {
			if len(pair) != 2 {
				return nil, fmt.Errorf("invalid value pair length: %d", len(pair))
			}
			ts, err := toFloat(pair[0])
			if err != nil {
				return nil, fmt.Errorf("timestamp: %w", err)
			}
			v, err := toFloat(pair[1])
			if err != nil {
				return nil, fmt.Errorf("value: %w", err)
			}
			acc[int64(ts)] += v
		}
	}

	points := make([]Point, 0, len(acc))
	for ts, v := range acc {
		points = append(points, Point{TS: time.Unix(ts, 0).UTC(), Value: v})
	}
	sortPoints(points)
	return points, nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
