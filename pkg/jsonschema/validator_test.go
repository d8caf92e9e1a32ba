package jsonschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stageSchema = `{
	"type": "object",
	"properties": {
		"duration": { "type": "string" },
		"target": { "type": "integer", "minimum": 0 }
	},
	"required": ["duration", "target"],
	"additionalProperties": false
}`

func TestCompile(t *testing.T) {
	_, err := Compile("stage.json", stageSchema)
	require.NoError(t, err)

	_, err = Compile("broken.json", `{"type": 12}`)
	assert.Error(t, err)

	_, err = Compile("invalid.json", `{not json`)
	assert.Error(t, err)
}

func TestSchema_ValidateJSON(t *testing.T) {
	schema := MustCompile("stage.json", stageSchema)

	tests := []struct {
		name     string
		json     string
		wantErrs int
		contains string
	}{
		{name: "valid", json: `{"duration": "30s", "target": 300}`},
		{name: "missing target", json: `{"duration": "30s"}`, wantErrs: 1, contains: "target"},
		{name: "negative target", json: `{"duration": "30s", "target": -1}`, wantErrs: 1, contains: "/target"},
		{name: "wrong type", json: `{"duration": 30, "target": 1}`, wantErrs: 1, contains: "/duration"},
		{name: "unknown property", json: `{"duration": "1s", "target": 1, "rate": 2}`, wantErrs: 1, contains: "rate"},
		{name: "invalid json", json: `{`, wantErrs: 1, contains: "invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := schema.ValidateJSON([]byte(tt.json))
			if tt.wantErrs == 0 {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, tt.wantErrs)
			assert.Contains(t, errs.Error(), tt.contains)
		})
	}
}

func TestSchema_ValidateMultipleErrors(t *testing.T) {
	schema := MustCompile("stage.json", stageSchema)

	errs := schema.Validate(map[string]interface{}{
		"duration": 5.0,
		"target":   "many",
	})
	assert.Len(t, errs, 2)
}

func TestValidationErrors_Error(t *testing.T) {
	assert.Equal(t, "", ValidationErrors{}.Error())
	errs := ValidationErrors{assert.AnError, assert.AnError}
	assert.Contains(t, errs.Error(), "; ")
}

func TestMustCompile_Panics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("bad.json", `{"type": 12}`) })
}
