package search

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noterag/noterag/internal/llm"
)

// fakeCompleter stands in for the chat gateway.
type fakeCompleter struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

var _ llm.Completer = (*fakeCompleter)(nil)

func (c *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func TestAnswer_BuildsGroundedPromptAndCitesSources(t *testing.T) {
	// Given: three notes, the nearest two of which fit the context
	// budget
	f := newSearchFixture(t)
	f.addNote(t, testNote{
		path: "/work/rollout.md", vault: "work", title: "Rollout review",
		content: "The staging rollout finished without incident.",
		date:    "2024-06-01", vec: axis(0),
	})
	f.addNote(t, testNote{
		path: "/work/followup.md", vault: "work", title: "Follow-up",
		content: "Residual cleanup tasks after the rollout.",
		date:    "2024-06-03", vec: []float32{0.8, 0.6, 0, 0},
	})
	f.addNote(t, testNote{
		path: "/work/unrelated.md", vault: "work", title: "Unrelated",
		content: "Lunch spots near the office.", vec: axis(2),
	})
	f.cfg.Answer.MaxContextChunks = 2

	gateway := &fakeCompleter{reply: "The rollout finished without incident."}
	s := f.searcher(t, WithAnswerer(gateway))

	// When: asking a question
	ans, err := s.Answer(context.Background(), "how did the rollout go", Options{})
	require.NoError(t, err)

	// Then: the gateway's reply comes back with the cited notes
	assert.Equal(t, "The rollout finished without incident.", ans.Answer)
	require.Len(t, ans.Sources, 2)
	assert.Equal(t, "/work/rollout.md", ans.Sources[0].File)
	assert.Equal(t, "Rollout review", ans.Sources[0].Title)
	assert.Equal(t, "The staging rollout finished without incident....", ans.Sources[0].Excerpt)

	// And the prompt carries the question plus numbered, dated context
	require.Len(t, gateway.prompts, 1)
	prompt := gateway.prompts[0]
	assert.Contains(t, prompt, "Question: how did the rollout go")
	assert.Contains(t, prompt, "[Source 1: Rollout review (2024-06-01)]")
	assert.Contains(t, prompt, "The staging rollout finished without incident.")
	assert.Contains(t, prompt, "[Source 2: Follow-up (2024-06-03)]")
	assert.NotContains(t, prompt, "[Source 3:")
	assert.NotContains(t, prompt, "Lunch spots")
}

func TestAnswer_NoResultsShortCircuitsGateway(t *testing.T) {
	// Given: empty vaults
	f := newSearchFixture(t)
	gateway := &fakeCompleter{reply: "should never be asked"}
	s := f.searcher(t, WithAnswerer(gateway))

	// When: asking anyway
	ans, err := s.Answer(context.Background(), "anything at all", Options{})
	require.NoError(t, err)

	// Then: a fixed reply, no sources, and no gateway call
	assert.Equal(t, "I couldn't find any relevant information in your notes.", ans.Answer)
	assert.NotNil(t, ans.Sources)
	assert.Empty(t, ans.Sources)
	assert.Empty(t, gateway.prompts)
}

func TestAnswer_GatewayFailureFallsBackToExcerpts(t *testing.T) {
	// Given: a note to cite and a gateway that errors
	f := newSearchFixture(t)
	f.addNote(t, testNote{
		path: "/work/rollout.md", vault: "work", title: "Rollout review",
		content: "The staging rollout finished without incident.",
		date:    "2024-06-01", vec: axis(0),
	})
	gateway := &fakeCompleter{err: errors.New("bad gateway: 502")}
	s := f.searcher(t, WithAnswerer(gateway))

	// When: asking
	ans, err := s.Answer(context.Background(), "how did the rollout go", Options{})

	// Then: no error; the reply names the failure and hands back the
	// retrieved context verbatim
	require.NoError(t, err)
	assert.Contains(t, ans.Answer, "Error generating answer: bad gateway: 502")
	assert.Contains(t, ans.Answer, "Based on search results, here are relevant excerpts:")
	assert.Contains(t, ans.Answer, "The staging rollout finished without incident.")
	require.Len(t, ans.Sources, 1)
}

func TestAnswer_WithoutGatewayStillReturnsExcerpts(t *testing.T) {
	f := newSearchFixture(t)
	f.addNote(t, testNote{
		path: "/work/rollout.md", vault: "work", title: "Rollout review",
		content: "The staging rollout finished without incident.", vec: axis(0),
	})
	s := f.searcher(t) // no answerer attached

	ans, err := s.Answer(context.Background(), "how did the rollout go", Options{})

	require.NoError(t, err)
	assert.Contains(t, ans.Answer, "answer gateway is not configured")
	assert.Contains(t, ans.Answer, "The staging rollout finished without incident.")
}

func TestAnswer_SkipsExcludedFoldersAndLabelsUndated(t *testing.T) {
	// Given: the best hit lives in an excluded folder and the next one
	// has no date
	f := newSearchFixture(t)
	f.addNote(t, testNote{
		path: "/work/archive/2023/old.md", vault: "work", title: "Old plan",
		content: "Archived planning content.", date: "2023-01-10", vec: axis(0),
	})
	f.addNote(t, testNote{
		path: "/work/notes/idea.md", vault: "work", title: "Idea dump",
		content: "Half-formed product idea.", vec: []float32{0.8, 0.6, 0, 0},
	})
	gateway := &fakeCompleter{reply: "noted"}
	s := f.searcher(t, WithAnswerer(gateway))

	// When: asking
	ans, err := s.Answer(context.Background(), "what was the plan", Options{})
	require.NoError(t, err)

	// Then: the archived note is neither cited nor quoted, and the
	// kept note retains its original source number
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, "/work/notes/idea.md", ans.Sources[0].File)

	require.Len(t, gateway.prompts, 1)
	prompt := gateway.prompts[0]
	assert.NotContains(t, prompt, "[Source 1:")
	assert.Contains(t, prompt, "[Source 2: Idea dump (undated)]")
	assert.NotContains(t, prompt, "Archived planning content.")
}
