package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStatus() StatusInfo {
	return StatusInfo{
		DataDir: "/home/u/.noterag",
		Vaults: []VaultStatus{
			{Name: "work", Files: 120, Chunks: 890},
			{Name: "personal", Files: 45, Chunks: 310},
		},
		Documents:     165,
		LastIndexed:   time.Now().Add(-2 * time.Hour),
		VectorSize:    4 * 1024 * 1024,
		TextSize:      1 * 1024 * 1024,
		TotalSize:     5 * 1024 * 1024,
		EmbedderModel: "mxbai-embed-large",
		EmbedderDims:  1024,
		GatewayStatus: "ready",
	}
}

func TestStatusInfo_JSONSerialization(t *testing.T) {
	// Given: a populated status
	info := sampleStatus()

	// When: round-tripping through JSON
	data, err := json.Marshal(info)
	require.NoError(t, err)

	var decoded StatusInfo
	require.NoError(t, json.Unmarshal(data, &decoded))

	// Then: fields survive with snake_case keys
	assert.Contains(t, string(data), `"data_dir"`)
	assert.Contains(t, string(data), `"gateway_status"`)
	assert.Equal(t, info.Documents, decoded.Documents)
	assert.Equal(t, info.Vaults, decoded.Vaults)

	// Then: the empty watcher field is omitted
	assert.NotContains(t, string(data), "watcher_status")
}

func TestStatusRenderer_Render_Basic(t *testing.T) {
	// Given: a status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering
	err := r.Render(sampleStatus())
	require.NoError(t, err)

	// Then: the report covers vaults, storage, and the embedder
	output := buf.String()
	assert.Contains(t, output, "Index Status")
	assert.Contains(t, output, "/home/u/.noterag")
	assert.Contains(t, output, "work:")
	assert.Contains(t, output, "120 notes, 890 chunks")
	assert.Contains(t, output, "personal:")
	assert.Contains(t, output, "Documents:")
	assert.Contains(t, output, "165")
	assert.Contains(t, output, "2 hours ago")
	assert.Contains(t, output, "mxbai-embed-large (1024 dims)")
	assert.Contains(t, output, "ready")
}

func TestStatusRenderer_Render_NoColorHasNoANSI(t *testing.T) {
	// Given: a no-color renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering
	require.NoError(t, r.Render(sampleStatus()))

	// Then: no ANSI escape codes
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestStatusRenderer_Render_GatewayOffline(t *testing.T) {
	// Given: a status with the gateway down
	info := sampleStatus()
	info.GatewayStatus = "offline"

	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering
	require.NoError(t, r.Render(info))

	// Then: the state is shown
	assert.Contains(t, buf.String(), "offline")
}

func TestStatusRenderer_Render_WatcherLine(t *testing.T) {
	// Given: a status with a running watcher
	info := sampleStatus()
	info.WatcherStatus = "running"

	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering
	require.NoError(t, r.Render(info))

	// Then: the watcher line appears
	assert.Contains(t, buf.String(), "Watcher: running")
}

func TestStatusRenderer_Render_SkipsZeroLastIndexed(t *testing.T) {
	// Given: a status that has never been indexed
	info := sampleStatus()
	info.LastIndexed = time.Time{}

	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering
	require.NoError(t, r.Render(info))

	// Then: no last-indexed line
	assert.NotContains(t, buf.String(), "Last indexed")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	// Given: a status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering JSON
	require.NoError(t, r.RenderJSON(sampleStatus()))

	// Then: output parses back
	var decoded StatusInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "/home/u/.noterag", decoded.DataDir)
	assert.Len(t, decoded.Vaults, 2)
}

func TestFormatAge(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"just now", now.Add(-30 * time.Second), "just now"},
		{"minutes", now.Add(-5 * time.Minute), "5 minutes ago"},
		{"one hour", now.Add(-1 * time.Hour), "1 hour ago"},
		{"days", now.Add(-3 * 24 * time.Hour), "3 days ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatAge(tt.t))
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3*1024*1024 + 512*1024, "3.5 MB"},
		{2 * 1024 * 1024 * 1024, "2.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBytes(tt.bytes))
		})
	}
}
