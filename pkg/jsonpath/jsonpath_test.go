package jsonpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = `{
	"name": "frontend",
	"status": "ok",
	"build": {"version": "1.4.2", "healthy": true},
	"replicas": [
		{"zone": "ap-southeast-1a", "ready": true},
		{"zone": "ap-southeast-1b", "ready": false}
	],
	"scores": [10, 20, 30],
	"owner": null
}`

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "simple property", path: "$.status", want: "ok"},
		{name: "without dollar", path: "name", want: "frontend"},
		{name: "nested property", path: "$.build.version", want: "1.4.2"},
		{name: "boolean", path: "$.build.healthy", want: "true"},
		{name: "array element", path: "$.replicas[1].zone", want: "ap-southeast-1b"},
		{name: "scalar array", path: "$.scores[2]", want: "30"},
		{name: "bracket notation", path: "$['build']['version']", want: "1.4.2"},
		{name: "double quoted bracket", path: `$["status"]`, want: "ok"},
		{name: "null value", path: "$.owner", want: "null"},
		{name: "missing property", path: "$.missing", wantErr: true},
		{name: "index out of range", path: "$.scores[5]", wantErr: true},
		{name: "empty path", path: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract([]byte(doc), tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_InvalidDocument(t *testing.T) {
	_, err := Extract(nil, "$.status")
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = Extract([]byte("<html>"), "$.status")
	assert.Error(t, err)
}

func TestExists(t *testing.T) {
	assert.True(t, Exists([]byte(doc), "$.replicas[0].ready"))
	assert.True(t, Exists([]byte(doc), "$.owner"))
	assert.False(t, Exists([]byte(doc), "$.replicas[9]"))
}

func TestToGjsonPath(t *testing.T) {
	assert.Equal(t, "@this", toGjsonPath("$"))
	assert.Equal(t, "a.0.b", toGjsonPath("$.a[0].b"))
	assert.Equal(t, "0.id", toGjsonPath("$[0].id"))
	assert.Equal(t, "a.b", toGjsonPath("$['a']['b']"))
}
