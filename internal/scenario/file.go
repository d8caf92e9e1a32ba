package scenario

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/galias/stressline/pkg/jsonschema"
)

// Target resolution modes.
const (
	ResolveIteration = "iteration"
	ResolveOnce      = "once"
)

//go:embed schema.json
var schemaJSON string

var fileSchema = jsonschema.MustCompile("scenario.schema.json", schemaJSON)

// File is the on-disk form of a scenario, in YAML or JSON.
type File struct {
	Name         string              `json:"name,omitempty" yaml:"name,omitempty"`
	Target       TargetConfig        `json:"target" yaml:"target"`
	Stages       []StageConfig       `json:"stages,omitempty" yaml:"stages,omitempty"`
	Thresholds   map[string][]string `json:"thresholds" yaml:"thresholds"`
	Pause        string              `json:"pause,omitempty" yaml:"pause,omitempty"`
	GracefulStop string              `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
	Checks       []CheckConfig       `json:"checks,omitempty" yaml:"checks,omitempty"`
	HTTP         HTTPConfig          `json:"http" yaml:"http"`
}

// TargetConfig selects the request URL.
type TargetConfig struct {
	// URL is a fixed target. When empty, APP_URL is read instead.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Resolve is "iteration" (default) or "once"
	Resolve string `json:"resolve,omitempty" yaml:"resolve,omitempty"`
}

// StageConfig is the file form of a Stage.
type StageConfig struct {
	Duration string `json:"duration" yaml:"duration"`
	Target   int    `json:"target" yaml:"target"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
}

// HTTPConfig is the file form of HTTPOptions.
type HTTPConfig struct {
	Timeout            string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	InsecureSkipVerify bool   `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
	MaxConnsPerHost    int    `json:"maxConnsPerHost,omitempty" yaml:"maxConnsPerHost,omitempty"`
	UserAgent          string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
}

// DefaultFile returns the built-in stress scenario in file form.
func DefaultFile() *File {
	f := &File{}
	f.ApplyDefaults()
	return f
}

// LoadFile reads and decodes a scenario file.
//
// The format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseFile(data, path)
}

// ParseFile decodes scenario data and checks it against the scenario schema.
// The format is taken from the extension of path and defaults to YAML.
func ParseFile(data []byte, path string) (*File, error) {
	var doc interface{}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON scenario: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML scenario: %w", err)
		}
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}

	// Round-trip through JSON so the schema sees the same types for both formats.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize scenario: %w", err)
	}
	var normalized interface{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, fmt.Errorf("failed to normalize scenario: %w", err)
	}

	if schemaErrs := fileSchema.Validate(normalized); len(schemaErrs) > 0 {
		errs := &ValidationErrors{}
		for _, e := range schemaErrs {
			errs.Add("schema", e.Error())
		}
		return nil, errs
	}

	// Bare numbers are seconds; the typed fields hold the string form.
	stringifyDurations(normalized)
	raw, err = json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize scenario: %w", err)
	}

	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	return &f, nil
}

func stringifyDurations(doc interface{}) {
	root, ok := doc.(map[string]interface{})
	if !ok {
		return
	}
	stringifyField(root, "pause")
	stringifyField(root, "gracefulStop")
	if http, ok := root["http"].(map[string]interface{}); ok {
		stringifyField(http, "timeout")
	}
	if stages, ok := root["stages"].([]interface{}); ok {
		for _, s := range stages {
			if stage, ok := s.(map[string]interface{}); ok {
				stringifyField(stage, "duration")
			}
		}
	}
}

func stringifyField(m map[string]interface{}, key string) {
	if n, ok := m[key].(float64); ok {
		m[key] = strconv.FormatInt(int64(n), 10)
	}
}

// ApplyDefaults fills unset fields with the built-in stress scenario values.
// A thresholds map that is present but empty is left empty.
func (f *File) ApplyDefaults() {
	if f.Name == "" {
		f.Name = DefaultName
	}
	if f.Target.Resolve == "" {
		f.Target.Resolve = ResolveIteration
	}
	if len(f.Stages) == 0 {
		for _, s := range DefaultStages() {
			f.Stages = append(f.Stages, StageConfig{
				Duration: s.Duration.String(),
				Target:   s.Target,
				Name:     s.Name,
			})
		}
	}
	if f.Thresholds == nil {
		f.Thresholds = DefaultThresholds()
	}
	if f.Pause == "" {
		f.Pause = DefaultPause.String()
	}
	if f.GracefulStop == "" {
		f.GracefulStop = DefaultGracefulStop.String()
	}
	if f.HTTP.Timeout == "" {
		f.HTTP.Timeout = DefaultHTTPTimeout.String()
	}
	if f.HTTP.UserAgent == "" {
		f.HTTP.UserAgent = DefaultUserAgent
	}
}

// Validate reports every semantic problem in f.
//
// Returns nil if valid, or a *ValidationErrors.
func (f *File) Validate() error {
	errs := &ValidationErrors{}

	if f.Target.URL != "" {
		if err := ValidateTargetURL(f.Target.URL); err != nil {
			errs.Add("target.url", err.Error())
		}
	}
	switch f.Target.Resolve {
	case "", ResolveIteration, ResolveOnce:
	default:
		errs.Addf("target.resolve", "must be %q or %q, got %q", ResolveIteration, ResolveOnce, f.Target.Resolve)
	}

	if len(f.Stages) == 0 {
		errs.Add("stages", "at least one stage is required")
	}
	var total time.Duration
	for i, s := range f.Stages {
		field := fmt.Sprintf("stages[%d]", i)
		d, err := ParseDurationString(s.Duration)
		switch {
		case err != nil:
			errs.Add(field+".duration", err.Error())
		case d < 0:
			errs.Add(field+".duration", "must not be negative")
		default:
			total += d
		}
		if s.Target < 0 {
			errs.Add(field+".target", "must not be negative")
		}
	}
	if len(f.Stages) > 0 && total == 0 {
		errs.Add("stages", "total duration must be positive")
	}

	if _, err := ParseThresholds(f.Thresholds); err != nil {
		errs.Add("thresholds", err.Error())
	}

	validateDuration(errs, "pause", f.Pause)
	validateDuration(errs, "gracefulStop", f.GracefulStop)
	validateDuration(errs, "http.timeout", f.HTTP.Timeout)
	if f.HTTP.MaxConnsPerHost < 0 {
		errs.Add("http.maxConnsPerHost", "must not be negative")
	}

	for i, c := range f.Checks {
		if _, err := c.Build(); err != nil {
			errs.Add(fmt.Sprintf("checks[%d]", i), err.Error())
		}
	}

	return errs.Err()
}

func validateDuration(errs *ValidationErrors, field, value string) {
	d, err := ParseDurationString(value)
	if err != nil {
		errs.Add(field, err.Error())
		return
	}
	if d < 0 {
		errs.Add(field, "must not be negative")
	}
}

// Build validates f and converts it into a runnable Scenario. Defaults are
// not applied; call ApplyDefaults first.
func (f *File) Build() (*Scenario, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	stages := make([]Stage, 0, len(f.Stages))
	for _, s := range f.Stages {
		d, _ := ParseDurationString(s.Duration)
		stages = append(stages, Stage{Duration: d, Target: s.Target, Name: s.Name})
	}
	thresholds, _ := ParseThresholds(f.Thresholds)
	pause, _ := ParseDurationString(f.Pause)
	gracefulStop, _ := ParseDurationString(f.GracefulStop)
	timeout, _ := ParseDurationString(f.HTTP.Timeout)

	checks := make([]Check, 0, len(f.Checks))
	for _, c := range f.Checks {
		check, _ := c.Build()
		checks = append(checks, check)
	}

	var target Target = EnvTarget{}
	if f.Target.URL != "" {
		target = ConstantTarget(f.Target.URL)
	}
	if f.Target.Resolve == ResolveOnce {
		target = Once(target)
	}

	return &Scenario{
		Options: Options{
			Name:         f.Name,
			Stages:       stages,
			Thresholds:   thresholds,
			GracefulStop: gracefulStop,
			HTTP: HTTPOptions{
				Timeout:            timeout,
				InsecureSkipVerify: f.HTTP.InsecureSkipVerify,
				MaxConnsPerHost:    f.HTTP.MaxConnsPerHost,
				UserAgent:          f.HTTP.UserAgent,
			},
		},
		Workload: Workload(target, checks, pause),
		Target:   target,
	}, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
//
// An empty string is zero.
func ParseDurationString(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var seconds int
	if _, err := fmt.Sscanf(s, "%d", &seconds); err == nil && fmt.Sprint(seconds) == strings.TrimSpace(s) {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}
