package search

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersonContext_SummarizesMeetings(t *testing.T) {
	// Given: two work meetings with the same person
	f := newSearchFixture(t)
	f.addNote(t, testNote{
		path: "/work/meetings/sync1.md", vault: "work", title: "Weekly sync",
		date: "2024-05-01", people: []string{"Hitesh"},
		content: "Discussed the quarterly roadmap.\n" +
			"Hitesh: send the budget draft\n" +
			"Hitesh: review hiring plan\n" +
			"Hitesh: third thing here",
		vec: axis(1),
	})
	f.addNote(t, testNote{
		path: "/work/meetings/sync2.md", vault: "work", title: "Planning session",
		date: "2024-06-15", people: []string{"Hitesh"},
		content: "Planning for Q3 launch with Hitesh.",
		vec:     axis(2),
	})
	s := f.searcher(t)

	// When: assembling the person context
	pc, err := s.PersonContext(context.Background(), "Hitesh")
	require.NoError(t, err)

	// Then: both meetings count once, the latest date wins, and the
	// recent list runs newest first
	assert.Equal(t, "Hitesh", pc.Person)
	assert.Equal(t, 2, pc.MeetingCount)
	assert.Equal(t, "2024-06-15", pc.LastMeeting)
	assert.ElementsMatch(t, []string{"Weekly sync", "Planning session"}, pc.RecentTopics)

	require.Len(t, pc.RecentMeetings, 2)
	assert.Equal(t, "2024-06-15", pc.RecentMeetings[0].Date)
	assert.Equal(t, "Planning session", pc.RecentMeetings[0].Title)
	assert.Equal(t, "2024-05-01", pc.RecentMeetings[1].Date)
	assert.True(t, strings.HasSuffix(pc.RecentMeetings[0].Summary, "..."))

	// And at most two "name: task" lines per note are kept
	assert.Equal(t, []string{"send the budget draft", "review hiring plan"}, pc.OpenActions)
}

func TestPersonContext_CountsEachNoteOnce(t *testing.T) {
	// Given: one note that both the filtered and the mention search
	// will return
	f := newSearchFixture(t)
	f.addNote(t, testNote{
		path: "/work/meetings/sync.md", vault: "work", title: "Weekly sync",
		date: "2024-05-01", people: []string{"Hitesh"},
		content: "Quick sync with Hitesh about onboarding.",
		vec:     axis(0),
	})
	s := f.searcher(t)

	pc, err := s.PersonContext(context.Background(), "Hitesh")

	require.NoError(t, err)
	assert.Equal(t, 1, pc.MeetingCount)
	require.Len(t, pc.RecentMeetings, 1)
}

func TestPersonContext_HandlesUnknownPersonAndOddNames(t *testing.T) {
	// Given: empty vaults and a name full of regex metacharacters
	f := newSearchFixture(t)
	s := f.searcher(t)

	pc, err := s.PersonContext(context.Background(), "A. J. (interim)")

	require.NoError(t, err)
	assert.Equal(t, 0, pc.MeetingCount)
	assert.Empty(t, pc.LastMeeting)
	assert.Empty(t, pc.RecentTopics)
	assert.Empty(t, pc.OpenActions)
	assert.Empty(t, pc.RecentMeetings)
}

func TestActionItems_ExtractsCommitmentBullets(t *testing.T) {
	// Given: a work note mixing commitments with chatter
	f := newSearchFixture(t)
	f.addNote(t, testNote{
		path: "/work/standup.md", vault: "work", title: "Standup",
		date: "2024-07-02",
		content: "Notes from standup.\n" +
			"- will update the deployment runbook\n" +
			"- finalize budget numbers today\n" +
			"- next step: chase vendor support\n" +
			"- ok\n" +
			"Closing remarks.",
		vec: axis(0),
	})
	s := f.searcher(t)

	// When: extracting without a person filter
	items, err := s.ActionItems(context.Background(), "", 0)
	require.NoError(t, err)

	// Then: only bullet lines carrying a commitment keyword survive
	require.Len(t, items, 2)
	assert.Equal(t, "will update the deployment runbook", items[0].Item)
	assert.Equal(t, "next step: chase vendor support", items[1].Item)
	assert.Equal(t, "2024-07-02", items[0].Date)
	assert.Equal(t, "Standup", items[0].Source)
}

func TestActionItems_FiltersByPerson(t *testing.T) {
	f := newSearchFixture(t)
	f.addNote(t, testNote{
		path: "/work/planning.md", vault: "work", title: "Planning",
		date: "2024-07-02",
		content: "- Dana will draft the migration plan\n" +
			"- will schedule the maintenance window\n" +
			"- Dana owns the rollback checklist",
		vec: axis(0),
	})
	s := f.searcher(t)

	items, err := s.ActionItems(context.Background(), "Dana", 0)

	// Lines mentioning the person count even without a keyword; lines
	// without the person never do
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Dana will draft the migration plan", items[0].Item)
	assert.Equal(t, "Dana owns the rollback checklist", items[1].Item)
}

func TestActionItems_DedupesAcrossNotesAndHonorsLimit(t *testing.T) {
	// Given: two notes sharing one verbatim action line
	f := newSearchFixture(t)
	f.addNote(t, testNote{
		path: "/work/monday.md", vault: "work", title: "Monday",
		date: "2024-07-01",
		content: "- will send weekly report update\n" +
			"- will review incident follow-ups",
		vec: axis(0),
	})
	f.addNote(t, testNote{
		path: "/work/friday.md", vault: "work", title: "Friday",
		date: "2024-07-05",
		content: "- will send weekly report update\n" +
			"- follow up on contract renewal terms",
		vec: axis(1),
	})
	f.embedder.vectors["action items next steps"] = axis(0)
	s := f.searcher(t)
	ctx := context.Background()

	// When: extracting with the default limit
	items, err := s.ActionItems(ctx, "", 0)
	require.NoError(t, err)

	// Then: the shared line appears once
	require.Len(t, items, 3)
	assert.Equal(t, "will send weekly report update", items[0].Item)
	assert.Equal(t, "will review incident follow-ups", items[1].Item)
	assert.Equal(t, "follow up on contract renewal terms", items[2].Item)

	// And an explicit limit truncates the tail
	items, err = s.ActionItems(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
