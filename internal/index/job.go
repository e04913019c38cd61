package index

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noterag/noterag/internal/config"
	"github.com/noterag/noterag/internal/noteerr"
)

// Mode selects between a full rebuild and an incremental pass.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// ParseMode validates an index mode from the CLI or HTTP surface.
// Empty means incremental.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeIncremental):
		return ModeIncremental, nil
	case string(ModeFull):
		return ModeFull, nil
	default:
		return "", noteerr.Errorf(noteerr.KindMalformedInput, "index.mode",
			"unknown index mode %q (want full or incremental)", s)
	}
}

// JobState is the lifecycle state of a background indexing job.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobCancelled JobState = "cancelled"
	JobFailed    JobState = "failed"
)

// JobStatus is an immutable snapshot of an indexing job. File counts
// cover the vault currently being walked; Chunks is the pass total.
type JobStatus struct {
	ID             string    `json:"id"`
	Mode           string    `json:"mode"`
	Vault          string    `json:"vault"`
	State          JobState  `json:"state"`
	CurrentVault   string    `json:"current_vault,omitempty"`
	FilesDone      int       `json:"files_done"`
	FilesTotal     int       `json:"files_total"`
	Chunks         int       `json:"chunks"`
	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	Error          string    `json:"error,omitempty"`
}

// job tracks one background pass.
type job struct {
	id     string
	mode   Mode
	vault  config.VaultName
	cancel context.CancelFunc

	mu         sync.Mutex
	state      JobState
	started    time.Time
	finished   time.Time
	vaultNow   config.VaultName
	filesDone  int
	filesTotal int
	chunks     int
	chunksBy   map[config.VaultName]int
	errMsg     string
}

func (j *job) snapshot() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	elapsed := time.Since(j.started)
	if !j.finished.IsZero() {
		elapsed = j.finished.Sub(j.started)
	}

	return JobStatus{
		ID:             j.id,
		Mode:           string(j.mode),
		Vault:          string(j.vault),
		State:          j.state,
		CurrentVault:   string(j.vaultNow),
		FilesDone:      j.filesDone,
		FilesTotal:     j.filesTotal,
		Chunks:         j.chunks,
		StartedAt:      j.started,
		ElapsedSeconds: int(elapsed.Seconds()),
		Error:          j.errMsg,
	}
}

func (j *job) observe(p Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != JobRunning {
		return
	}

	j.chunksBy[p.Vault] = p.Chunks
	sum := 0
	for _, c := range j.chunksBy {
		sum += c
	}
	j.chunks = sum
	j.vaultNow = p.Vault
	j.filesDone = p.FilesDone
	j.filesTotal = p.FilesTotal
}

// finish records the pass outcome. The returned chunk count is
// authoritative over progress accumulation.
func (j *job) finish(chunks int, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.finished = time.Now()
	j.chunks = chunks
	switch {
	case err == nil:
		j.state = JobCompleted
	case noteerr.IsCancelled(err):
		j.state = JobCancelled
	default:
		j.state = JobFailed
		j.errMsg = err.Error()
	}
}

// Manager runs indexing passes as background jobs, one at a time. The
// HTTP surface triggers passes through it so requests return
// immediately with a job id to poll.
type Manager struct {
	indexer *Indexer

	mu      sync.Mutex
	current *job
}

// NewManager creates a Manager and subscribes it to the indexer's
// progress stream.
func NewManager(ix *Indexer) *Manager {
	m := &Manager{indexer: ix}
	ix.OnProgress(m.observe)
	return m
}

// Start launches a background pass and returns its job id. Only one
// job runs at a time; starting while one is running is an error.
func (m *Manager) Start(mode Mode, v config.VaultName) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.snapshot().State == JobRunning {
		return "", noteerr.Errorf(noteerr.KindTransient, "index.job",
			"an indexing job is already running (%s)", m.current.id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		id:       uuid.NewString(),
		mode:     mode,
		vault:    v,
		cancel:   cancel,
		state:    JobRunning,
		started:  time.Now(),
		chunksBy: map[config.VaultName]int{},
	}
	m.current = j

	go m.run(ctx, j)

	slog.Info("index_job_started",
		slog.String("job_id", j.id),
		slog.String("mode", string(mode)),
		slog.String("vault", string(v)))
	return j.id, nil
}

func (m *Manager) run(ctx context.Context, j *job) {
	defer j.cancel()

	var (
		chunks int
		err    error
	)
	switch j.mode {
	case ModeFull:
		chunks, err = m.indexer.FullReindex(ctx, j.vault)
	default:
		chunks, err = m.indexer.IncrementalIndex(ctx, j.vault)
	}
	j.finish(chunks, err)

	status := j.snapshot()
	if status.State == JobFailed {
		slog.Error("index_job_failed",
			slog.String("job_id", j.id),
			slog.String("error", status.Error))
		return
	}
	slog.Info("index_job_finished",
		slog.String("job_id", j.id),
		slog.String("state", string(status.State)),
		slog.Int("chunks", status.Chunks),
		slog.Int("elapsed_seconds", status.ElapsedSeconds))
}

// observe forwards indexer progress to the running job. Passes started
// outside the manager have no current running job and are ignored.
func (m *Manager) observe(p Progress) {
	m.mu.Lock()
	j := m.current
	m.mu.Unlock()
	if j != nil {
		j.observe(p)
	}
}

// Status returns the current or most recent job. The bool is false
// when no job has run yet.
func (m *Manager) Status() (JobStatus, bool) {
	m.mu.Lock()
	j := m.current
	m.mu.Unlock()
	if j == nil {
		return JobStatus{}, false
	}
	return j.snapshot(), true
}

// Cancel stops the running job at its next yield point and returns its
// status. Completed work is kept.
func (m *Manager) Cancel() (JobStatus, error) {
	m.mu.Lock()
	j := m.current
	m.mu.Unlock()

	if j == nil || j.snapshot().State != JobRunning {
		return JobStatus{}, noteerr.Errorf(noteerr.KindMalformedInput, "index.job",
			"no indexing job is running")
	}

	// Kill the context before setting the flag so a pass stopped by
	// either signal reports itself cancelled, not completed.
	j.cancel()
	m.indexer.RequestCancel()
	return j.snapshot(), nil
}
