//go:build !integration

package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOptimizerConfig(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		keys []string
		want map[string]any
	}{
		{
			name: "wrapped integer",
			raw:  `{"bidderTimeout": {"n": 1000}, "sessionSeconds": 12}`,
			keys: []string{"bidderTimeout"},
			want: map[string]any{"bidderTimeout": int64(1000)},
		},
		{
			name: "bare values",
			raw:  `{"bidderTimeout": 1500, "granularity": "dense", "floor": 0.25}`,
			keys: []string{"bidderTimeout", "floor", "granularity"},
			want: map[string]any{"bidderTimeout": int64(1500), "floor": 0.25, "granularity": "dense"},
		},
		{
			name: "exponent that is integral",
			raw:  `{"bidderTimeout": 1e3}`,
			keys: []string{"bidderTimeout"},
			want: map[string]any{"bidderTimeout": int64(1000)},
		},
		{
			name: "missing key",
			raw:  `{"other": 1}`,
			keys: []string{"bidderTimeout"},
			want: map[string]any{},
		},
		{
			name: "empty document",
			raw:  ``,
			keys: []string{"bidderTimeout"},
			want: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeOptimizerConfig([]byte(tt.raw), tt.keys)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeOptimizerConfig_Invalid(t *testing.T) {
	_, err := decodeOptimizerConfig([]byte(`{"bidderTimeout":`), []string{"bidderTimeout"})
	assert.Error(t, err)
}
