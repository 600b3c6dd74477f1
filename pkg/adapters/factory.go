package adapters

import (
	"encoding/json"
	"fmt"
)

// Kinds accepted by New.
const (
	KindPrometheus      = "prometheus"
	KindVictoriaMetrics = "victoriametrics"
	KindHTTP            = "http"
)

// New creates an adapter from its kind and a flat string configuration, as
// received by the import endpoint.
//
// prometheus and victoriametrics take "url" and "query"; http takes "url",
// "valuePath", "timestampPath" and optionally "method", "body",
// "timestampFormat", "name", and JSON objects in "headers" and
// "templateVars".
func New(kind string, config map[string]string, stepSeconds int) (Adapter, error) {
	switch kind {
	case KindPrometheus:
		return newPrometheus(kind, config, stepSeconds, "http://localhost:9090")
	case KindVictoriaMetrics:
		return newPrometheus(kind, config, stepSeconds, "http://localhost:8428")
	case KindHTTP:
		return newHTTP(config, stepSeconds)
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s (must be prometheus, victoriametrics, or http)", kind)
	}
}

func newPrometheus(kind string, config map[string]string, stepSeconds int, defaultURL string) (Adapter, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("%s adapter requires 'query' config", kind)
	}
	url := config["url"]
	if url == "" {
		url = defaultURL
	}
	return &PrometheusAdapter{
		ServerURL:   url,
		Query:       query,
		StepSeconds: stepSeconds,
		Kind:        kind,
	}, nil
}

func newHTTP(config map[string]string, stepSeconds int) (Adapter, error) {
	a := &HTTPAdapter{
		URL:             config["url"],
		Method:          config["method"],
		Body:            config["body"],
		ValuePath:       config["valuePath"],
		TimestampPath:   config["timestampPath"],
		TimestampFormat: config["timestampFormat"],
		SeriesName:      config["name"],
		StepSeconds:     stepSeconds,
	}
	if a.URL == "" {
		return nil, fmt.Errorf("http adapter requires 'url' config")
	}
	if a.ValuePath == "" || a.TimestampPath == "" {
		return nil, fmt.Errorf("http adapter requires 'valuePath' and 'timestampPath' config")
	}

	if raw := config["headers"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &a.Headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}
	if raw := config["templateVars"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &a.TemplateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	if err := a.ValidateConfig(); err != nil {
		return nil, err
	}
	return a, nil
}
