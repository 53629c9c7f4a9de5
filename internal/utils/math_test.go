package utils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLamports(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "0.01", want: 10_000_000},
		{in: "1", want: 1_000_000_000},
		{in: "0.000000001", want: 1},
		{in: "2.5", want: 2_500_000_000},
		{in: "0.0000000001", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "99999999999999999999", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLamports(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromLamportsIsExact(t *testing.T) {
	assert.True(t, FromLamports(10_000_000).Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, "0.01", FromLamports(10_000_000).String())

	back, err := ToLamports(FromLamports(123_456_789))
	require.NoError(t, err)
	assert.Equal(t, int64(123_456_789), back)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, ClampLimit(0, 10, 100))
	assert.Equal(t, 5, ClampLimit(5, 10, 100))
	assert.Equal(t, 100, ClampLimit(500, 10, 100))
}
