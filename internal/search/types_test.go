package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noterag/noterag/internal/noteerr"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeHybrid, false},
		{"hybrid", ModeHybrid, false},
		{"vector", ModeVector, false},
		{"bm25", ModeBM25, false},
		{" Query ", ModeQuery, false},
		{"semantic", "", true},
		{"fts", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.True(t, noteerr.IsMalformedInput(err), "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}
