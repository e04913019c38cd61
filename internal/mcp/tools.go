package mcp

import (
	"context"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/noterag/noterag/internal/index"
	"github.com/noterag/noterag/internal/search"
)

// SearchNotesInput is the input schema for the search_notes tool.
type SearchNotesInput struct {
	Query    string `json:"query" jsonschema:"the search query to run against the notes"`
	Vault    string `json:"vault,omitempty" jsonschema:"vault to search: work, personal, or all (default all)"`
	Mode     string `json:"mode,omitempty" jsonschema:"retrieval mode: vector, bm25, hybrid, or query (default hybrid)"`
	Category string `json:"category,omitempty" jsonschema:"only notes of this category, e.g. meeting or journal"`
	Person   string `json:"person,omitempty" jsonschema:"only notes listing this person in frontmatter"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchNotesOutput is the output schema for the search_notes tool.
type SearchNotesOutput struct {
	Results []NoteResult `json:"results" jsonschema:"ranked search results"`
}

// NoteResult is one hit in a search_notes response.
type NoteResult struct {
	Score    float64  `json:"score" jsonschema:"relevance score, higher is better"`
	FilePath string   `json:"file_path" jsonschema:"absolute path of the note"`
	Title    string   `json:"title" jsonschema:"note title"`
	Excerpt  string   `json:"excerpt" jsonschema:"matched content excerpt"`
	Date     string   `json:"date,omitempty" jsonschema:"note date, YYYY-MM-DD"`
	People   []string `json:"people,omitempty" jsonschema:"people listed in the note"`
	Category string   `json:"category,omitempty" jsonschema:"note category"`
	Vault    string   `json:"vault" jsonschema:"vault the note lives in"`
}

func (s *Server) searchNotes(ctx context.Context, _ *mcp.CallToolRequest, in SearchNotesInput) (
	*mcp.CallToolResult,
	SearchNotesOutput,
	error,
) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, SearchNotesOutput{}, NewInvalidParamsError("query is required")
	}
	opts, err := toOptions(in.Vault, in.Mode)
	if err != nil {
		return nil, SearchNotesOutput{}, MapError(err)
	}
	opts.Category = in.Category
	opts.Person = in.Person
	opts.Limit = in.Limit

	results, err := s.searcher.Search(ctx, in.Query, opts)
	if err != nil {
		return nil, SearchNotesOutput{}, MapError(err)
	}

	out := SearchNotesOutput{Results: make([]NoteResult, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, NoteResult{
			Score:    r.Score,
			FilePath: r.FilePath,
			Title:    r.Title,
			Excerpt:  r.Excerpt,
			Date:     r.Date,
			People:   r.People,
			Category: r.Category,
			Vault:    r.Vault,
		})
	}
	return nil, out, nil
}

// toOptions resolves vault and mode selectors onto default options.
// The zero limit stays zero so the engine applies its configured
// default and cap.
func toOptions(vaultSel, modeSel string) (search.Options, error) {
	opts := search.NewOptions()
	vault, err := index.ParseVault(vaultSel)
	if err != nil {
		return opts, err
	}
	opts.Vault = vault
	mode, err := search.ParseMode(modeSel)
	if err != nil {
		return opts, err
	}
	opts.Mode = mode
	return opts, nil
}

// QueryNotesInput is the input schema for the query_notes tool.
type QueryNotesInput struct {
	Question string `json:"question" jsonschema:"the question to answer from the notes"`
	Vault    string `json:"vault,omitempty" jsonschema:"vault to draw from: work, personal, or all (default all)"`
	Mode     string `json:"mode,omitempty" jsonschema:"retrieval mode for the context search (default hybrid)"`
}

// QueryNotesOutput is the output schema for the query_notes tool.
type QueryNotesOutput struct {
	Answer  string       `json:"answer" jsonschema:"generated answer grounded in the notes"`
	Sources []NoteSource `json:"sources" jsonschema:"notes the answer drew on"`
}

// NoteSource is one citation in a query_notes response.
type NoteSource struct {
	File    string `json:"file" jsonschema:"note path"`
	Title   string `json:"title" jsonschema:"note title"`
	Excerpt string `json:"excerpt" jsonschema:"cited excerpt"`
}

func (s *Server) queryNotes(ctx context.Context, _ *mcp.CallToolRequest, in QueryNotesInput) (
	*mcp.CallToolResult,
	QueryNotesOutput,
	error,
) {
	if strings.TrimSpace(in.Question) == "" {
		return nil, QueryNotesOutput{}, NewInvalidParamsError("question is required")
	}
	opts, err := toOptions(in.Vault, in.Mode)
	if err != nil {
		return nil, QueryNotesOutput{}, MapError(err)
	}

	ans, err := s.searcher.Answer(ctx, in.Question, opts)
	if err != nil {
		return nil, QueryNotesOutput{}, MapError(err)
	}

	out := QueryNotesOutput{
		Answer:  ans.Answer,
		Sources: make([]NoteSource, 0, len(ans.Sources)),
	}
	for _, src := range ans.Sources {
		out.Sources = append(out.Sources, NoteSource{
			File:    src.File,
			Title:   src.Title,
			Excerpt: src.Excerpt,
		})
	}
	return nil, out, nil
}

// PersonContextInput is the input schema for the person_context tool.
type PersonContextInput struct {
	Person string `json:"person" jsonschema:"name of the person as written in note frontmatter"`
}

// PersonContextOutput is the output schema for the person_context tool.
type PersonContextOutput struct {
	Person         string        `json:"person"`
	MeetingCount   int           `json:"meeting_count" jsonschema:"distinct work notes involving this person"`
	LastMeeting    string        `json:"last_meeting,omitempty" jsonschema:"date of the most recent meeting"`
	RecentTopics   []string      `json:"recent_topics"`
	OpenActions    []string      `json:"open_actions" jsonschema:"lines that read like their action items"`
	RecentMeetings []MeetingInfo `json:"recent_meetings"`
}

// MeetingInfo is one entry in PersonContextOutput.RecentMeetings.
type MeetingInfo struct {
	Date    string `json:"date,omitempty"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

func (s *Server) personContext(ctx context.Context, _ *mcp.CallToolRequest, in PersonContextInput) (
	*mcp.CallToolResult,
	PersonContextOutput,
	error,
) {
	person := strings.TrimSpace(in.Person)
	if person == "" {
		return nil, PersonContextOutput{}, NewInvalidParamsError("person is required")
	}

	pc, err := s.searcher.PersonContext(ctx, person)
	if err != nil {
		return nil, PersonContextOutput{}, MapError(err)
	}

	out := PersonContextOutput{
		Person:         pc.Person,
		MeetingCount:   pc.MeetingCount,
		LastMeeting:    pc.LastMeeting,
		RecentTopics:   pc.RecentTopics,
		OpenActions:    pc.OpenActions,
		RecentMeetings: make([]MeetingInfo, 0, len(pc.RecentMeetings)),
	}
	for _, m := range pc.RecentMeetings {
		out.RecentMeetings = append(out.RecentMeetings, MeetingInfo{
			Date:    m.Date,
			Title:   m.Title,
			Summary: m.Summary,
		})
	}
	return nil, out, nil
}

// ActionItemsInput is the input schema for the action_items tool.
type ActionItemsInput struct {
	Person string `json:"person,omitempty" jsonschema:"only items mentioning this person"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of items, default 20"`
}

// ActionItemsOutput is the output schema for the action_items tool.
type ActionItemsOutput struct {
	Items []ActionItemInfo `json:"items" jsonschema:"extracted follow-up lines"`
}

// ActionItemInfo is one extracted follow-up with its provenance.
type ActionItemInfo struct {
	Item   string `json:"item"`
	Date   string `json:"date,omitempty"`
	Source string `json:"source,omitempty" jsonschema:"title of the note the line came from"`
}

func (s *Server) actionItems(ctx context.Context, _ *mcp.CallToolRequest, in ActionItemsInput) (
	*mcp.CallToolResult,
	ActionItemsOutput,
	error,
) {
	items, err := s.searcher.ActionItems(ctx, strings.TrimSpace(in.Person), in.Limit)
	if err != nil {
		return nil, ActionItemsOutput{}, MapError(err)
	}

	out := ActionItemsOutput{Items: make([]ActionItemInfo, 0, len(items))}
	for _, it := range items {
		out.Items = append(out.Items, ActionItemInfo{
			Item:   it.Item,
			Date:   it.Date,
			Source: it.Source,
		})
	}
	return nil, out, nil
}

// IndexStatusInput is the input schema for the index_status tool (no
// parameters).
type IndexStatusInput struct{}

// IndexStatusOutput is the output schema for the index_status tool.
type IndexStatusOutput struct {
	Vaults    []VaultCount `json:"vaults" jsonschema:"per-vault note and chunk counts"`
	Documents int          `json:"documents" jsonschema:"notes in the full-text index"`
	Embedder  EmbedderInfo `json:"embedder" jsonschema:"embedding backend state"`
	Job       *JobInfo     `json:"job,omitempty" jsonschema:"current or most recent indexing job"`
}

// VaultCount is the indexed size of one vault.
type VaultCount struct {
	Vault  string `json:"vault"`
	Files  int    `json:"files"`
	Chunks int    `json:"chunks"`
}

// EmbedderInfo describes the active embedding backend. Clients fall
// back to bm25 mode when the status is offline.
type EmbedderInfo struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Status     string `json:"status" jsonschema:"ready or offline"`
}

// JobInfo mirrors the background job snapshot.
type JobInfo struct {
	ID             string `json:"id"`
	Mode           string `json:"mode"`
	Vault          string `json:"vault"`
	State          string `json:"state" jsonschema:"running, completed, cancelled, or failed"`
	FilesDone      int    `json:"files_done"`
	FilesTotal     int    `json:"files_total"`
	Chunks         int    `json:"chunks"`
	ElapsedSeconds int    `json:"elapsed_seconds"`
	Error          string `json:"error,omitempty"`
}

func (s *Server) indexStatus(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out := &IndexStatusOutput{Vaults: []VaultCount{}}

	if s.vectors != nil {
		tables, err := s.vectors.Stats(ctx)
		if err != nil {
			return nil, nil, MapError(err)
		}
		for name, t := range tables {
			out.Vaults = append(out.Vaults, VaultCount{Vault: name, Files: t.Files, Chunks: t.Chunks})
		}
		sort.Slice(out.Vaults, func(i, j int) bool { return out.Vaults[i].Vault < out.Vaults[j].Vault })
	}
	if s.fts != nil {
		n, err := s.fts.DocumentCount(ctx)
		if err != nil {
			return nil, nil, MapError(err)
		}
		out.Documents = n
	}
	if s.embedder != nil {
		out.Embedder = EmbedderInfo{
			Model:      s.embedder.ModelName(),
			Dimensions: s.embedder.Dimensions(),
			Status:     "offline",
		}
		if s.embedder.Available(ctx) {
			out.Embedder.Status = "ready"
		}
	}
	if s.jobs != nil {
		if st, ok := s.jobs.Status(); ok {
			out.Job = &JobInfo{
				ID:             st.ID,
				Mode:           st.Mode,
				Vault:          st.Vault,
				State:          string(st.State),
				FilesDone:      st.FilesDone,
				FilesTotal:     st.FilesTotal,
				Chunks:         st.Chunks,
				ElapsedSeconds: st.ElapsedSeconds,
				Error:          st.Error,
			}
		}
	}
	return nil, out, nil
}
