package index

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noterag/noterag/internal/config"
	"github.com/noterag/noterag/internal/noteerr"
)

func waitForJob(t *testing.T, mgr *Manager) JobStatus {
	t.Helper()
	require.Eventually(t, func() bool {
		st, ok := mgr.Status()
		return ok && st.State != JobRunning
	}, 5*time.Second, 10*time.Millisecond)
	st, ok := mgr.Status()
	require.True(t, ok)
	return st
}

func TestManager_RunsJobToCompletion(t *testing.T) {
	// Given: three notes and an idle manager
	f := newIndexFixture(t)
	for i := 1; i <= 3; i++ {
		f.writeWorkNote(t, fmt.Sprintf("note-%d.md", i),
			fmt.Sprintf("Note %d.\n\nWrap-up from the platform sync with owners for each follow-up item.", i))
	}
	mgr := NewManager(f.indexer(t))

	// When: starting a full pass in the background
	id, err := mgr.Start(ModeFull, config.VaultWork)
	require.NoError(t, err)
	assert.Len(t, id, 36)

	// Then: the job finishes with the pass totals
	st := waitForJob(t, mgr)
	assert.Equal(t, JobCompleted, st.State)
	assert.Equal(t, id, st.ID)
	assert.Equal(t, "full", st.Mode)
	assert.Equal(t, "work", st.Vault)
	assert.Equal(t, "work", st.CurrentVault)
	assert.Equal(t, 3, st.Chunks)
	assert.Equal(t, 3, st.FilesDone)
	assert.Equal(t, 3, st.FilesTotal)
	assert.Empty(t, st.Error)
	assert.False(t, st.StartedAt.IsZero())
	assert.GreaterOrEqual(t, st.ElapsedSeconds, 0)

	// And: the snapshot serializes with snake_case keys for the API
	raw, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"state":"completed"`)
	assert.Contains(t, string(raw), `"files_total":3`)
}

func TestManager_SingleFlightAndRestart(t *testing.T) {
	// Given: an embedder that blocks until released
	f := newIndexFixture(t)
	gate := make(chan struct{})
	f.embedder.gate = gate
	f.writeWorkNote(t, "one.md",
		"Release notes draft covering the schema change and the client migration window.")
	f.writeWorkNote(t, "two.md",
		"Postmortem outline for the cache stampede with the mitigation timeline attached.")
	mgr := NewManager(f.indexer(t))

	id1, err := mgr.Start(ModeIncremental, config.VaultWork)
	require.NoError(t, err)

	// A second start while the first runs is refused.
	_, err = mgr.Start(ModeFull, config.VaultAll)
	require.Error(t, err)
	assert.True(t, noteerr.IsTransient(err))
	assert.Contains(t, err.Error(), "already running")

	// Releasing the embedder lets the first job finish.
	close(gate)
	st := waitForJob(t, mgr)
	assert.Equal(t, JobCompleted, st.State)
	assert.Equal(t, 2, st.Chunks)

	// A fresh job is accepted once the previous one is done. Nothing
	// changed on disk, so the incremental pass writes nothing.
	id2, err := mgr.Start(ModeIncremental, config.VaultWork)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	st = waitForJob(t, mgr)
	assert.Equal(t, JobCompleted, st.State)
	assert.Equal(t, id2, st.ID)
	assert.Equal(t, 0, st.Chunks)
}

func TestManager_CancelStopsRunningJob(t *testing.T) {
	// Given: a job stuck inside its first embedding
	f := newIndexFixture(t)
	f.embedder.gate = make(chan struct{})
	reached := make(chan struct{})
	var once sync.Once
	f.embedder.setHook(func(int) { once.Do(func() { close(reached) }) })
	f.writeWorkNote(t, "stuck.md",
		"A note whose embedding will hang until the job is cancelled from outside.")
	ix := f.indexer(t)
	mgr := NewManager(ix)

	id, err := mgr.Start(ModeFull, config.VaultWork)
	require.NoError(t, err)
	select {
	case <-reached:
	case <-time.After(5 * time.Second):
		t.Fatal("indexing never reached the embedder")
	}

	// When: cancelling
	st, err := mgr.Cancel()
	require.NoError(t, err)
	assert.Equal(t, id, st.ID)

	// Then: the job lands in the cancelled state with nothing written
	st = waitForJob(t, mgr)
	assert.Equal(t, JobCancelled, st.State)
	assert.Equal(t, 0, st.Chunks)
	assert.Empty(t, st.Error)
	require.Eventually(t, func() bool { return ix.State() == StateIdle },
		5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, f.chunkCount(t, "work"))

	// Cancelling again has nothing to stop.
	_, err = mgr.Cancel()
	assert.True(t, noteerr.IsMalformedInput(err))
}

func TestManager_StatusBeforeAnyJob(t *testing.T) {
	f := newIndexFixture(t)
	mgr := NewManager(f.indexer(t))

	st, ok := mgr.Status()
	assert.False(t, ok)
	assert.Equal(t, JobStatus{}, st)

	_, err := mgr.Cancel()
	assert.True(t, noteerr.IsMalformedInput(err))
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeIncremental, false},
		{"incremental", ModeIncremental, false},
		{"full", ModeFull, false},
		{" FULL ", ModeFull, false},
		{"weekly", "", true},
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
