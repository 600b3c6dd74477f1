package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
)

// Timestamp formats understood by HTTPAdapter.
const (
	TimestampRFC3339   = "rfc3339"
	TimestampDate      = "date"
	TimestampUnix      = "unix"
	TimestampUnixMilli = "unix_milli"
)

// maxResponseBytes caps the body read from a JSON source.
const maxResponseBytes = 16 << 20

// HTTPAdapter calls any JSON endpoint and extracts a series with gjson
// paths.
//
// Body and header values are text templates with these variables:
//
//	{{.WindowSeconds}} {{.Step}}
//	{{.Start}} {{.End}}                 unix seconds
//	{{.StartRFC3339}} {{.EndRFC3339}}
//
// plus everything in TemplateVars. For example:
//
//	adapter := &HTTPAdapter{
//	    URL:           "https://api.example.com/daily-sales",
//	    Headers:       map[string]string{"Authorization": "Bearer {{.Token}}"},
//	    TemplateVars:  map[string]string{"Token": token},
//	    ValuePath:     "data.#.amount",
//	    TimestampPath: "data.#.day",
//	    TimestampFormat: TimestampDate,
//	}
type HTTPAdapter struct {
	URL    string
	Method string // GET when empty
	Body   string

	Headers      map[string]string
	TemplateVars map[string]string

	// ValuePath and TimestampPath must select arrays of the same length,
	// e.g. "data.#.value".
	ValuePath     string
	TimestampPath string
	// TimestampFormat is one of the Timestamp* constants, rfc3339 when empty.
	TimestampFormat string

	StepSeconds int

	// SeriesName names the imported column; ValuePath is used when empty.
	SeriesName string

	HTTPClient *http.Client

	now func() time.Time
}

func (h *HTTPAdapter) Name() string { return "http" }

// ValidateConfig checks the fields Collect needs.
func (h *HTTPAdapter) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.ValuePath == "" {
		return errors.New("valuePath is required")
	}
	if h.TimestampPath == "" {
		return errors.New("timestampPath is required")
	}
	switch h.TimestampFormat {
	case "", TimestampRFC3339, TimestampDate, TimestampUnix, TimestampUnixMilli:
	default:
		return fmt.Errorf("invalid timestampFormat: %s (must be rfc3339, date, unix, or unix_milli)", h.TimestampFormat)
	}
	return nil
}

// Collect implements Adapter.
func (h *HTTPAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if err := h.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}

	now := time.Now
	if h.now != nil {
		now = h.now
	}
	start, end := window(windowSeconds, now())
	step := stepOrDefault(h.StepSeconds)

	vars := map[string]any{
		"WindowSeconds": windowSeconds,
		"Start":         start.Unix(),
		"End":           end.Unix(),
		"Step":          step,
		"StartRFC3339":  start.Format(time.RFC3339),
		"EndRFC3339":    end.Format(time.RFC3339),
	}
	for k, v := range h.TemplateVars {
		vars[k] = v
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if h.Body != "" {
		rendered, err := renderTemplate(h.Body, vars)
		if err != nil {
			return nil, fmt.Errorf("render body template: %w", err)
		}
		body = strings.NewReader(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, vars)
		if err != nil {
			return nil, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := cli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, msg)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if !gjson.ValidBytes(payload) {
		return nil, errors.New("response is not valid JSON")
	}

	points, err := h.extract(payload)
	if err != nil {
		return nil, err
	}

	name := h.SeriesName
	if name == "" {
		name = h.ValuePath
	}
	return &DataFrame{Name: name, Points: points}, nil
}

func (h *HTTPAdapter) extract(payload []byte) ([]Point, error) {
	values := gjson.GetBytes(payload, h.ValuePath)
	if !values.Exists() {
		return nil, fmt.Errorf("value path %q not found in response", h.ValuePath)
	}
	stamps := gjson.GetBytes(payload, h.TimestampPath)
	if !stamps.Exists() {
		return nil, fmt.Errorf("timestamp path %q not found in response", h.TimestampPath)
	}

	vals, tss := values.Array(), stamps.Array()
	if len(vals) != len(tss) {
		return nil, fmt.Errorf("value count (%d) != timestamp count (%d)", len(vals), len(tss))
	}

	points := make([]Point, len(vals))
	for i := range vals {
		ts, err := h.parseTimestamp(tss[i])
		if err != nil {
			return nil, fmt.Errorf("parse timestamp[%d]: %w", i, err)
		}
		v, err := parseValue(vals[i])
		if err != nil {
			return nil, fmt.Errorf("parse value[%d]: %w", i, err)
		}
		points[i] = Point{TS: ts, Value: v}
	}
	sortPoints(points)
	return points, nil
}

// parseValue accepts JSON numbers and numeric strings. Anything else
// becomes NaN so that validation reports the column as non-numeric.
func parseValue(r gjson.Result) (float64, error) {
	switch r.Type {
	case gjson.Number:
		return r.Float(), nil
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return math.NaN(), nil
		}
		return f, nil
	case gjson.Null:
		return math.NaN(), nil
	default:
		return 0, fmt.Errorf("unexpected %s", r.Type)
	}
}

func (h *HTTPAdapter) parseTimestamp(r gjson.Result) (time.Time, error) {
	switch h.TimestampFormat {
	case "", TimestampRFC3339:
		return time.Parse(time.RFC3339, r.String())
	case TimestampDate:
		return time.Parse(time.DateOnly, r.String())
	case TimestampUnix:
		return time.Unix(int64(r.Float()), 0).UTC(), nil
	case TimestampUnixMilli:
		return time.UnixMilli(int64(r.Float())).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", h.TimestampFormat)
	}
}

func renderTemplate(text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
