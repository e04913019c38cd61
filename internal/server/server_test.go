package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noterag/noterag/internal/config"
	"github.com/noterag/noterag/internal/embed"
	"github.com/noterag/noterag/internal/index"
	"github.com/noterag/noterag/internal/search"
	"github.com/noterag/noterag/internal/store"
	"github.com/noterag/noterag/internal/telemetry"
)

// stubEmbedder returns one fixed vector so ranking flows from the
// lexical branch. A gate, when set, blocks calls until closed or the
// context dies, which keeps an indexing job in flight on demand.
type stubEmbedder struct {
	mu   sync.Mutex
	gate chan struct{}
}

var _ embed.Embedder = (*stubEmbedder)(nil)

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	gate := e.gate
	e.mu.Unlock()
	if gate != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-gate:
		}
	}
	return []float32{1, 0, 0, 0}, nil
}

func (e *stubEmbedder) Dimensions() int                    { return 4 }
func (e *stubEmbedder) ModelName() string                  { return "stub-embed" }
func (e *stubEmbedder) Available(ctx context.Context) bool { return true }
func (e *stubEmbedder) Close() error                       { return nil }

func (e *stubEmbedder) setGate(gate chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate = gate
}

// stubAnswerer answers every prompt with a canned string.
type stubAnswerer struct{ reply string }

func (a *stubAnswerer) Complete(ctx context.Context, prompt string) (string, error) {
	return a.reply, nil
}

const cannedAnswer = "Use the blue deploy pipeline."

type serverFixture struct {
	cfg      *config.Config
	embedder *stubEmbedder
	indexer  *index.Indexer
	metrics  *telemetry.Collector
	handler  http.Handler
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	vectors, err := store.NewHNSWStore("", store.DefaultVectorConfig(4))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	fts, err := store.NewSQLiteFTS("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = fts.Close() })

	cfg := config.NewConfig()
	cfg.DataDir = t.TempDir()
	cfg.Vaults.Work = filepath.Join(t.TempDir(), "work")
	cfg.Vaults.Personal = filepath.Join(t.TempDir(), "personal")
	require.NoError(t, os.MkdirAll(cfg.Vaults.Work, 0o755))
	require.NoError(t, os.MkdirAll(cfg.Vaults.Personal, 0o755))

	embedder := &stubEmbedder{}
	searcher, err := search.NewSearcher(cfg, vectors, embedder,
		search.WithFTS(fts),
		search.WithAnswerer(&stubAnswerer{reply: cannedAnswer}))
	require.NoError(t, err)

	ix, err := index.NewIndexer(index.Deps{
		Config:   cfg,
		Vectors:  vectors,
		FTS:      fts,
		Embedder: embedder,
	})
	require.NoError(t, err)

	metrics := telemetry.NewCollector(nil)
	t.Cleanup(func() { _ = metrics.Close() })

	srv, err := New(Deps{
		Config:   cfg,
		Searcher: searcher,
		Jobs:     index.NewManager(ix),
		Vectors:  vectors,
		FTS:      fts,
		Metrics:  metrics,
	})
	require.NoError(t, err)

	return &serverFixture{
		cfg:      cfg,
		embedder: embedder,
		indexer:  ix,
		metrics:  metrics,
		handler:  srv.Handler(),
	}
}

// seed writes three notes and indexes them synchronously: two work
// meetings with Sarah and one personal note.
func (f *serverFixture) seed(t *testing.T) {
	t.Helper()
	writeNote(t, f.cfg.Vaults.Work, "meetings/2026-01-05-kubernetes.md", `---
title: 1:1 with Sarah
date: 2026-01-05
people: [Sarah]
category: meeting
---
Discussed the kubernetes migration timeline and the cluster capacity budget for next quarter.
`)
	writeNote(t, f.cfg.Vaults.Work, "meetings/2026-01-12-planning.md", `---
title: Planning with Sarah
date: 2026-01-12
people: [Sarah]
category: meeting
---
Sarah walked through the deploy pipeline rollout plan for the new region.

- Sarah will send the capacity report
`)
	writeNote(t, f.cfg.Vaults.Personal, "garden.md", `---
title: Garden plan
date: 2026-01-10
category: note
---
Sketching the spring garden layout with tomatoes and herbs along the fence line.
`)

	_, err := f.indexer.FullReindex(context.Background(), config.VaultAll)
	require.NoError(t, err)
}

func writeNote(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *serverFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (f *serverFixture) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst),
		"body: %s", rec.Body.String())
}

type errBody struct {
	Error string `json:"error"`
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e errBody
	unmarshal(t, rec, &e)
	return e.Error
}

func TestHealthz(t *testing.T) {
	f := newServerFixture(t)

	rec := f.get(t, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestSearch_MissingQuery(t *testing.T) {
	f := newServerFixture(t)

	rec := f.get(t, "/api/search")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "missing query parameter q")
}

func TestSearch_InvalidParameters(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		name string
		path string
		want string
	}{
		{"mode", "/api/search?q=x&mode=cosine", "unknown search mode"},
		{"vault", "/api/search?q=x&vault=archive", "unknown vault"},
		{"limit", "/api/search?q=x&limit=ten", "limit must be a non-negative integer"},
		{"negative limit", "/api/search?q=x&limit=-1", "limit must be a non-negative integer"},
		{"rerank", "/api/search?q=x&rerank=maybe", "rerank must be a boolean"},
		{"expand", "/api/search?q=x&expand=2x", "expand must be a boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get(t, tt.path)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, errorMessage(t, rec), tt.want)
		})
	}
}

func TestSearch_ReturnsIndexedNotes(t *testing.T) {
	// Given: three indexed notes across both vaults
	f := newServerFixture(t)
	f.seed(t)

	// When: searching for terms only one note contains
	rec := f.get(t, "/api/search?q=kubernetes+migration")

	// Then: that note ranks first and the envelope echoes the request
	require.Equal(t, http.StatusOK, rec.Code)
	var resp searchResponse
	unmarshal(t, rec, &resp)
	assert.Equal(t, "kubernetes migration", resp.Query)
	assert.Equal(t, "hybrid", resp.Mode)
	require.GreaterOrEqual(t, resp.Count, 1)
	require.Len(t, resp.Results, resp.Count)
	assert.Contains(t, resp.Results[0].FilePath, "kubernetes")
	assert.Equal(t, "1:1 with Sarah", resp.Results[0].Title)
}

func TestSearch_VaultFilterWithLexicalMode(t *testing.T) {
	f := newServerFixture(t)
	f.seed(t)

	// The garden note lives in the personal vault only.
	rec := f.get(t, "/api/search?q=garden&vault=personal&mode=bm25")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp searchResponse
	unmarshal(t, rec, &resp)
	require.GreaterOrEqual(t, resp.Count, 1)
	assert.Equal(t, "personal", resp.Results[0].Vault)

	rec = f.get(t, "/api/search?q=garden&vault=work&mode=bm25")
	require.Equal(t, http.StatusOK, rec.Code)
	unmarshal(t, rec, &resp)
	assert.Equal(t, 0, resp.Count)
}

func TestSearch_EmptyResultsIsArray(t *testing.T) {
	f := newServerFixture(t)

	rec := f.get(t, "/api/search?q=nothingindexed&mode=bm25")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"results":[]`)
}

func TestSearch_RecordsTelemetry(t *testing.T) {
	f := newServerFixture(t)
	f.seed(t)

	rec := f.get(t, "/api/search?q=kubernetes&vault=work")
	require.Equal(t, http.StatusOK, rec.Code)

	snap := f.metrics.Snapshot()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ModeCounts["hybrid"])
	assert.Equal(t, int64(1), snap.VaultCounts["work"])
}

func TestQuery_AnswersWithSources(t *testing.T) {
	// Given: indexed notes and a canned gateway
	f := newServerFixture(t)
	f.seed(t)

	// When: asking about content the planning note covers
	rec := f.post(t, "/api/query", `{"question": "what is the deploy pipeline rollout plan?"}`)

	// Then: the answer comes back with citations
	require.Equal(t, http.StatusOK, rec.Code)
	var ans search.Answer
	unmarshal(t, rec, &ans)
	assert.Equal(t, cannedAnswer, ans.Answer)
	require.NotEmpty(t, ans.Sources)
	assert.NotEmpty(t, ans.Sources[0].File)
}

func TestQuery_RequiresQuestion(t *testing.T) {
	f := newServerFixture(t)

	rec := f.post(t, "/api/query", `{}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "question is required")
}

func TestQuery_RejectsUnknownFields(t *testing.T) {
	f := newServerFixture(t)

	rec := f.post(t, "/api/query", `{"question": "x", "top_k": 5}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "invalid request body")
}

func TestQuery_InvalidVault(t *testing.T) {
	f := newServerFixture(t)

	rec := f.post(t, "/api/query", `{"question": "x", "vault": "archive"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "unknown vault")
}

func TestPerson_SummarizesIndexedMeetings(t *testing.T) {
	f := newServerFixture(t)
	f.seed(t)

	rec := f.get(t, "/api/person/Sarah")

	require.Equal(t, http.StatusOK, rec.Code)
	var pc search.PersonContext
	unmarshal(t, rec, &pc)
	assert.Equal(t, "Sarah", pc.Person)
	assert.Equal(t, 2, pc.MeetingCount)
	assert.Equal(t, "2026-01-12", pc.LastMeeting)
	assert.Contains(t, pc.RecentTopics, "Planning with Sarah")
}

func TestPerson_DecodesPathSegment(t *testing.T) {
	f := newServerFixture(t)

	rec := f.get(t, "/api/person/Sarah%20Chen")

	require.Equal(t, http.StatusOK, rec.Code)
	var pc search.PersonContext
	unmarshal(t, rec, &pc)
	assert.Equal(t, "Sarah Chen", pc.Person)
	assert.Equal(t, 0, pc.MeetingCount)
}

func TestActions_FiltersByPerson(t *testing.T) {
	f := newServerFixture(t)
	f.seed(t)

	rec := f.get(t, "/api/actions?person=Sarah")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp actionsResponse
	unmarshal(t, rec, &resp)
	assert.Equal(t, "Sarah", resp.Person)
	require.GreaterOrEqual(t, resp.Count, 1)
	assert.Contains(t, resp.Items[0].Item, "capacity report")
}

func TestActions_InvalidLimit(t *testing.T) {
	f := newServerFixture(t)

	rec := f.get(t, "/api/actions?person=Sarah&limit=all")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "limit must be a non-negative integer")
}

func (f *serverFixture) jobStatus(t *testing.T) (index.JobStatus, int) {
	t.Helper()
	rec := f.get(t, "/api/index/status")
	if rec.Code != http.StatusOK {
		return index.JobStatus{}, rec.Code
	}
	var st index.JobStatus
	unmarshal(t, rec, &st)
	return st, rec.Code
}

func TestIndexJob_StartReturnsJobID(t *testing.T) {
	f := newServerFixture(t)
	f.seed(t)

	rec := f.post(t, "/api/index", `{"mode": "full", "vault": "work"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	unmarshal(t, rec, &resp)
	assert.NotEmpty(t, resp["job_id"])

	require.Eventually(t, func() bool {
		st, code := f.jobStatus(t)
		return code == http.StatusOK && st.State == index.JobCompleted
	}, 5*time.Second, 10*time.Millisecond)

	st, _ := f.jobStatus(t)
	assert.Equal(t, resp["job_id"], st.ID)
	assert.Equal(t, "full", st.Mode)
	assert.Equal(t, "work", st.Vault)
}

func TestIndexJob_EmptyBodyMeansIncrementalEverything(t *testing.T) {
	f := newServerFixture(t)

	rec := f.post(t, "/api/index", "")

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool {
		st, code := f.jobStatus(t)
		return code == http.StatusOK && st.State == index.JobCompleted
	}, 5*time.Second, 10*time.Millisecond)

	st, _ := f.jobStatus(t)
	assert.Equal(t, "incremental", st.Mode)
	assert.Equal(t, "all", st.Vault)
}

func TestIndexJob_SecondStartConflicts(t *testing.T) {
	// Given: a running job held open by a blocked embedder
	f := newServerFixture(t)
	writeNote(t, f.cfg.Vaults.Work, "note.md",
		"A note long enough to pass the minimum content threshold for indexing.")
	gate := make(chan struct{})
	f.embedder.setGate(gate)
	t.Cleanup(func() { close(gate) })

	rec := f.post(t, "/api/index", `{"mode": "full"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// When: starting again while it runs
	rec = f.post(t, "/api/index", `{"mode": "full"}`)

	// Then: the second start is refused
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "already running")

	// And cancel stops the pass
	rec = f.post(t, "/api/index/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool {
		st, code := f.jobStatus(t)
		return code == http.StatusOK && st.State == index.JobCancelled
	}, 5*time.Second, 10*time.Millisecond)
}

func TestIndexJob_InvalidMode(t *testing.T) {
	f := newServerFixture(t)

	rec := f.post(t, "/api/index", `{"mode": "weekly"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "unknown index mode")
}

func TestIndexJob_StatusBeforeAnyJob(t *testing.T) {
	f := newServerFixture(t)

	rec := f.get(t, "/api/index/status")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "no indexing job has run yet")
}

func TestIndexJob_CancelWithoutRunningJob(t *testing.T) {
	f := newServerFixture(t)

	rec := f.post(t, "/api/index/cancel", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "no indexing job is running")
}

func TestStats_ReportsStoreAndQueryCounts(t *testing.T) {
	// Given: indexed notes and one recorded search
	f := newServerFixture(t)
	f.seed(t)
	rec := f.get(t, "/api/search?q=kubernetes")
	require.Equal(t, http.StatusOK, rec.Code)

	// When: fetching stats
	rec = f.get(t, "/api/stats")

	// Then: per-vault counts, the document total, and the query log
	// all show up
	require.Equal(t, http.StatusOK, rec.Code)
	var resp statsResponse
	unmarshal(t, rec, &resp)
	assert.Equal(t, 2, resp.Vaults["work"].Files)
	assert.Equal(t, 1, resp.Vaults["personal"].Files)
	assert.GreaterOrEqual(t, resp.Vaults["work"].Chunks, 2)
	assert.Equal(t, 3, resp.Documents)
	require.NotNil(t, resp.Queries)
	assert.Equal(t, int64(1), resp.Queries.TotalQueries)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newServerFixture(t)

	rec := f.post(t, "/api/search?q=x", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNew_RequiresCoreDependencies(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}
