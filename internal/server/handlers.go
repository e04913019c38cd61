package server

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/noterag/noterag/internal/index"
	"github.com/noterag/noterag/internal/noteerr"
	"github.com/noterag/noterag/internal/search"
	"github.com/noterag/noterag/internal/telemetry"
)

type searchResponse struct {
	Query   string           `json:"query"`
	Mode    string           `json:"mode"`
	Count   int              `json:"count"`
	Results []*search.Result `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing query parameter q"))
		return
	}
	opts, err := searchOptions(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	results, err := s.searcher.Search(r.Context(), query, opts)
	if err != nil {
		writeError(w, httpStatus(err), err)
		return
	}
	s.record(query, opts, len(results), time.Since(start))

	if results == nil {
		results = []*search.Result{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Query:   query,
		Mode:    string(opts.Mode),
		Count:   len(results),
		Results: results,
	})
}

// searchOptions builds search options from the query string. Unset
// parameters keep the resolved defaults.
func searchOptions(q url.Values) (search.Options, error) {
	opts := search.NewOptions()

	mode, err := search.ParseMode(q.Get("mode"))
	if err != nil {
		return opts, err
	}
	opts.Mode = mode

	vault, err := index.ParseVault(q.Get("vault"))
	if err != nil {
		return opts, err
	}
	opts.Vault = vault

	opts.Category = strings.TrimSpace(q.Get("category"))
	opts.Person = strings.TrimSpace(q.Get("person"))

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, noteerr.Errorf(noteerr.KindMalformedInput, "server.search",
				"limit must be a non-negative integer, got %q", raw)
		}
		opts.Limit = n
	}
	if raw := q.Get("rerank"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, noteerr.Errorf(noteerr.KindMalformedInput, "server.search",
				"rerank must be a boolean, got %q", raw)
		}
		opts.Rerank = b
	}
	if raw := q.Get("expand"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, noteerr.Errorf(noteerr.KindMalformedInput, "server.search",
				"expand must be a boolean, got %q", raw)
		}
		opts.ExpandQuery = b
	}
	return opts, nil
}

type queryRequest struct {
	Question string `json:"question"`
	Vault    string `json:"vault"`
	Mode     string `json:"mode"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, httpStatus(err), err)
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(w, http.StatusBadRequest, errors.New("question is required"))
		return
	}

	opts := search.NewOptions()
	mode, err := search.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opts.Mode = mode
	vault, err := index.ParseVault(req.Vault)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opts.Vault = vault

	start := time.Now()
	ans, err := s.searcher.Answer(r.Context(), question, opts)
	if err != nil {
		writeError(w, httpStatus(err), err)
		return
	}
	s.record(question, opts, len(ans.Sources), time.Since(start))
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handlePerson(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, errors.New("person name is required"))
		return
	}
	pc, err := s.searcher.PersonContext(r.Context(), name)
	if err != nil {
		writeError(w, httpStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, pc)
}

type actionsResponse struct {
	Person string              `json:"person,omitempty"`
	Count  int                 `json:"count"`
	Items  []search.ActionItem `json:"items"`
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	person := strings.TrimSpace(q.Get("person"))

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, noteerr.Errorf(noteerr.KindMalformedInput,
				"server.actions", "limit must be a non-negative integer, got %q", raw))
			return
		}
		limit = n
	}

	items, err := s.searcher.ActionItems(r.Context(), person, limit)
	if err != nil {
		writeError(w, httpStatus(err), err)
		return
	}
	if items == nil {
		items = []search.ActionItem{}
	}
	writeJSON(w, http.StatusOK, actionsResponse{Person: person, Count: len(items), Items: items})
}

type indexRequest struct {
	Mode  string `json:"mode"`
	Vault string `json:"vault"`
}

// handleIndexStart launches a background pass. An empty body means an
// incremental pass over both vaults.
func (s *Server) handleIndexStart(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, httpStatus(err), err)
		return
	}
	mode, err := index.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	vault, err := index.ParseVault(req.Vault)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.jobs.Start(mode, vault)
	if err != nil {
		// Start only fails when a pass is already in flight.
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := s.jobs.Status()
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no indexing job has run yet"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleIndexCancel(w http.ResponseWriter, r *http.Request) {
	st, err := s.jobs.Cancel()
	if err != nil {
		writeError(w, httpStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type vaultStats struct {
	Files  int `json:"files"`
	Chunks int `json:"chunks"`
}

type statsResponse struct {
	Vaults    map[string]vaultStats `json:"vaults"`
	Documents int                   `json:"documents"`
	Queries   *telemetry.Snapshot   `json:"queries,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	tables, err := s.vectors.Stats(r.Context())
	if err != nil {
		writeError(w, httpStatus(err), err)
		return
	}

	resp := statsResponse{Vaults: make(map[string]vaultStats, len(tables))}
	for name, t := range tables {
		resp.Vaults[name] = vaultStats{Files: t.Files, Chunks: t.Chunks}
	}
	if s.fts != nil {
		n, err := s.fts.DocumentCount(r.Context())
		if err != nil {
			writeError(w, httpStatus(err), err)
			return
		}
		resp.Documents = n
	}
	if s.metrics != nil {
		resp.Queries = s.metrics.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

// record feeds the query log when telemetry is wired.
func (s *Server) record(query string, opts search.Options, results int, latency time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.Record(telemetry.Event{
		Query:   query,
		Mode:    string(opts.Mode),
		Vault:   string(opts.Vault),
		Results: results,
		Latency: latency,
	})
}
