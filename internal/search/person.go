package search

import (
	"context"
	"regexp"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/noterag/noterag/internal/config"
)

const (
	// DefaultActionItemLimit caps ActionItems when the caller passes no
	// limit.
	DefaultActionItemLimit = 20

	personScanDepth     = 10
	recentMeetingCount  = 5
	meetingSummaryChars = 150
)

var actionKeywords = []string{"will", "to do", "action", "next", "follow"}

// PersonContext assembles 1:1 prep for a person from work-vault notes:
// how often you met, when last, what about, and lines that read like
// their action items.
func (s *Searcher) PersonContext(ctx context.Context, person string) (*PersonContext, error) {
	direct, err := s.Search(ctx, person, Options{
		Vault:  config.VaultWork,
		Person: person,
		Limit:  20,
		Mode:   ModeHybrid,
	})
	if err != nil {
		return nil, err
	}
	mentions, err := s.Search(ctx, "meeting with "+person, Options{
		Vault: config.VaultWork,
		Limit: 10,
		Mode:  ModeHybrid,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var unique []*Result
	for _, r := range slices.Concat(direct, mentions) {
		if seen[r.FilePath] {
			continue
		}
		seen[r.FilePath] = true
		unique = append(unique, r)
	}

	actionPattern, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(person) + `[:\s]+(.+?)(?:\n|$)`)
	if err != nil {
		return nil, err
	}

	topics := []string{}
	actions := []string{}
	var dates []string
	personLower := strings.ToLower(person)

	head := unique
	if len(head) > personScanDepth {
		head = head[:personScanDepth]
	}
	for _, r := range head {
		if r.Date != "" {
			dates = append(dates, r.Date)
		}

		if strings.Contains(strings.ToLower(r.Excerpt), personLower) {
			for i, m := range actionPattern.FindAllStringSubmatch(r.Excerpt, -1) {
				if i == 2 {
					break
				}
				actions = append(actions, m[1])
			}
		}

		if r.Title != "" && !slices.Contains(topics, r.Title) {
			topics = append(topics, r.Title)
		}
	}

	var lastMeeting string
	for _, d := range dates {
		if d > lastMeeting {
			lastMeeting = d
		}
	}

	recent := unique
	if len(recent) > recentMeetingCount {
		recent = recent[:recentMeetingCount]
	}
	meetings := make([]Meeting, 0, len(recent))
	for _, r := range recent {
		meetings = append(meetings, Meeting{
			Date:    r.Date,
			Title:   r.Title,
			Summary: firstRunes(r.Excerpt, meetingSummaryChars) + "...",
		})
	}
	// Most recent first; undated meetings sink to the end.
	sort.SliceStable(meetings, func(i, j int) bool {
		if meetings[i].Date == "" || meetings[j].Date == "" {
			return meetings[i].Date != "" && meetings[j].Date == ""
		}
		return meetings[i].Date > meetings[j].Date
	})

	if len(topics) > 5 {
		topics = topics[:5]
	}
	if len(actions) > 5 {
		actions = actions[:5]
	}

	return &PersonContext{
		Person:         person,
		MeetingCount:   len(unique),
		LastMeeting:    lastMeeting,
		RecentTopics:   topics,
		OpenActions:    actions,
		RecentMeetings: meetings,
	}, nil
}

// ActionItems searches work notes for action-item phrasing and
// extracts bullet lines that read like follow-ups. With a person, only
// lines mentioning them count; without, only lines carrying a
// commitment keyword.
func (s *Searcher) ActionItems(ctx context.Context, person string, limit int) ([]ActionItem, error) {
	if limit <= 0 {
		limit = DefaultActionItemLimit
	}

	query := "action items next steps"
	if person != "" {
		query = "action items " + person
	}

	results, err := s.Search(ctx, query, Options{
		Vault: config.VaultWork,
		Limit: 50,
		Mode:  ModeHybrid,
	})
	if err != nil {
		return nil, err
	}

	personLower := strings.ToLower(person)
	items := []ActionItem{}
	seen := make(map[string]bool)
	for _, r := range results {
		for _, line := range strings.Split(r.Excerpt, "\n") {
			line = strings.TrimSpace(line)
			if !isBulletLine(line) {
				continue
			}
			if person != "" {
				if !strings.Contains(strings.ToLower(line), personLower) {
					continue
				}
			} else if !hasActionKeyword(line) {
				continue
			}

			item := strings.TrimLeft(line, "-•* ")
			if seen[item] {
				continue
			}
			seen[item] = true
			items = append(items, ActionItem{Item: item, Date: r.Date, Source: r.Title})
		}
	}

	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func isBulletLine(line string) bool {
	if !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "•") && !strings.HasPrefix(line, "*") {
		return false
	}
	return utf8.RuneCountInString(line) > 10
}

func hasActionKeyword(line string) bool {
	lower := strings.ToLower(line)
	for _, w := range actionKeywords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
