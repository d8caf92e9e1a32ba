package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOK(t *testing.T) {
	check := StatusOK()
	assert.Equal(t, StatusCheckName, check.Name)
	assert.True(t, check.Fn(&Response{Status: 200}))
	assert.False(t, check.Fn(&Response{Status: 503}))
	assert.False(t, check.Fn(&Response{Status: 0}))
	assert.False(t, check.Fn(nil))
}

func TestCheckConfig_Build(t *testing.T) {
	body := []byte(`{"status":"ok","build":{"version":"1.4.2"}}`)

	tests := []struct {
		name     string
		cfg      CheckConfig
		wantName string
		res      *Response
		want     bool
	}{
		{
			name:     "status",
			cfg:      CheckConfig{Status: 204},
			wantName: "status was 204",
			res:      &Response{Status: 204},
			want:     true,
		},
		{
			name:     "named status",
			cfg:      CheckConfig{Name: "is created", Status: 201},
			wantName: "is created",
			res:      &Response{Status: 200},
			want:     false,
		},
		{
			name:     "json path exists",
			cfg:      CheckConfig{JSONPath: "$.build.version"},
			wantName: "$.build.version exists",
			res:      &Response{Status: 200, Body: body},
			want:     true,
		},
		{
			name:     "json path equals",
			cfg:      CheckConfig{JSONPath: "status", Equals: "ok"},
			wantName: "status == ok",
			res:      &Response{Status: 200, Body: body},
			want:     true,
		},
		{
			name:     "json path differs",
			cfg:      CheckConfig{JSONPath: "status", Equals: "degraded"},
			wantName: "status == degraded",
			res:      &Response{Status: 200, Body: body},
			want:     false,
		},
		{
			name:     "json path on empty body",
			cfg:      CheckConfig{JSONPath: "status"},
			wantName: "status exists",
			res:      &Response{Status: 0},
			want:     false,
		},
		{
			name:     "body contains",
			cfg:      CheckConfig{BodyContains: "1.4.2"},
			wantName: `body contains "1.4.2"`,
			res:      &Response{Status: 200, Body: body},
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check, err := tt.cfg.Build()
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, check.Name)
			assert.Equal(t, tt.want, check.Fn(tt.res))
		})
	}
}

func TestCheckConfig_BuildInvalid(t *testing.T) {
	_, err := CheckConfig{}.Build()
	assert.Error(t, err)

	_, err = CheckConfig{Status: 200, BodyContains: "ok"}.Build()
	assert.Error(t, err)
}
