package scenario

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/galias/stressline/pkg/jsonpath"
)

// StatusCheckName is the name of the default status check.
const StatusCheckName = "status was 200"

// Check is a named boolean assertion over a response.
type Check struct {
	Name string
	Fn   func(res *Response) bool
}

// StatusIs checks that the response status equals code.
func StatusIs(code int) Check {
	name := fmt.Sprintf("status was %d", code)
	return Check{
		Name: name,
		Fn: func(res *Response) bool {
			return res != nil && res.Status == code
		},
	}
}

// StatusOK is the "status was 200" check.
func StatusOK() Check {
	return StatusIs(http.StatusOK)
}

// CheckConfig is the file form of a check.
//
// Exactly one of Status, JSONPath or BodyContains must be set.
type CheckConfig struct {
	// Name of the check (defaults to a description of the condition)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Status is the expected response status code
	Status int `json:"status,omitempty" yaml:"status,omitempty"`

	// JSONPath must exist in the response body
	JSONPath string `json:"jsonPath,omitempty" yaml:"jsonPath,omitempty"`

	// Equals is the expected value at JSONPath (optional)
	Equals string `json:"equals,omitempty" yaml:"equals,omitempty"`

	// BodyContains must appear in the response body
	BodyContains string `json:"bodyContains,omitempty" yaml:"bodyContains,omitempty"`
}

// Build converts the configuration into a Check.
func (c CheckConfig) Build() (Check, error) {
	set := 0
	if c.Status != 0 {
		set++
	}
	if c.JSONPath != "" {
		set++
	}
	if c.BodyContains != "" {
		set++
	}
	if set != 1 {
		return Check{}, fmt.Errorf("exactly one of status, jsonPath or bodyContains is required")
	}

	var check Check
	switch {
	case c.Status != 0:
		check = StatusIs(c.Status)
	case c.JSONPath != "":
		check = jsonPathCheck(c.JSONPath, c.Equals)
	default:
		needle := []byte(c.BodyContains)
		check = Check{
			Name: fmt.Sprintf("body contains %q", c.BodyContains),
			Fn: func(res *Response) bool {
				return res != nil && bytes.Contains(res.Body, needle)
			},
		}
	}

	if c.Name != "" {
		check.Name = c.Name
	}
	return check, nil
}

func jsonPathCheck(path, equals string) Check {
	name := fmt.Sprintf("%s exists", path)
	if equals != "" {
		name = fmt.Sprintf("%s == %s", path, equals)
	}
	return Check{
		Name: name,
		Fn: func(res *Response) bool {
			if res == nil || len(res.Body) == 0 {
				return false
			}
			value, err := jsonpath.Extract(res.Body, path)
			if err != nil {
				return false
			}
			return equals == "" || value == equals
		},
	}
}
