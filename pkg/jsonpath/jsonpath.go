// Package jsonpath evaluates a small JSONPath subset against response bodies.
package jsonpath

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	ErrEmptyDocument = errors.New("empty JSON document")
	ErrEmptyPath     = errors.New("empty JSONPath expression")
)

// Extract returns the value at path in body as a string. Null values are
// returned as "null".
//
// Supported forms are $.a.b, $.a[0].b, $['a'] and $[0].
func Extract(body []byte, path string) (string, error) {
	result, err := Get(body, path)
	if err != nil {
		return "", err
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// Exists reports whether path resolves to a value in body.
func Exists(body []byte, path string) bool {
	_, err := Get(body, path)
	return err == nil
}

// Get returns the raw gjson result at path.
func Get(body []byte, path string) (gjson.Result, error) {
	if len(body) == 0 {
		return gjson.Result{}, ErrEmptyDocument
	}
	if path == "" {
		return gjson.Result{}, ErrEmptyPath
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid JSON document")
	}

	result := gjson.GetBytes(body, toGjsonPath(path))
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("path not found: %s", path)
	}
	return result, nil
}

// toGjsonPath converts $.users[0].name to users.0.name.
func toGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	r := strings.NewReplacer(
		"['", ".", "']", "",
		`["`, ".", `"]`, "",
		"[", ".", "]", "",
	)
	return strings.TrimPrefix(r.Replace(path), ".")
}
