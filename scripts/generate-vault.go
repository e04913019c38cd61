//go:build ignore

// Generates synthetic markdown vaults for load testing the indexer.
// Usage: go run scripts/generate-vault.go -notes 500 -output testdata/vaults
//
// The output directory gains work/ and personal/ vault roots populated
// with frontmatter-bearing notes across the categories the engine
// cares about, plus a handful of files in excluded folders to keep the
// walker honest. Point noterag at them:
//
//	NOTERAG_VAULT_WORK=testdata/vaults/work \
//	NOTERAG_VAULT_PERSONAL=testdata/vaults/personal \
//	noterag index --full
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	numNotes  = flag.Int("notes", 500, "Total number of notes to generate")
	outputDir = flag.String("output", "testdata/vaults", "Output directory for the two vault roots")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

const meetingTemplate = `---
title: %s
date: %s
people: [%s]
tags: [meeting, %s]
---

# %s

## Agenda

- %s
- %s

## Notes

%s

%s

## Action Items

- [ ] %s (%s)
- [ ] %s (%s)
- [x] %s
`

const projectTemplate = `---
title: %s
date: %s
tags: [project, %s]
---

# %s

## Status

%s

## Next

%s

- [ ] %s
- [ ] %s
`

const decisionTemplate = `---
title: %s
date: %s
people: [%s]
---

# %s

**Decision:** %s

**Context:** %s

**Consequences:** %s
`

const journalTemplate = `---
title: %s
date: %s
---

%s

%s
`

const recipeTemplate = `---
title: %s
tags: [recipe]
---

# %s

## Ingredients

- %s
- %s
- %s

## Method

%s
`

const bookTemplate = `---
title: %s
date: %s
tags: [book]
---

# %s

%s

Favourite idea so far: %s
`

// Word pools. Bodies are assembled from fragments so BM25 sees varied
// vocabulary and the embedder sees varied token sets.
var (
	people = []string{
		"sarah", "amir", "priya", "jordan", "lena",
		"marcus", "yuki", "tomas", "ines", "ravi",
	}
	projects = []string{
		"search relaunch", "billing migration", "mobile onboarding",
		"data pipeline", "auth refresh", "notification service",
		"edge caching", "vendor audit", "design system", "api gateway",
	}
	meetingKinds = []string{
		"1on1", "standup", "planning", "retro", "review", "sync",
	}
	workSentences = []string{
		"Rollout is tracking a week behind after the staging incident.",
		"Latency numbers look fine once the cache warms up.",
		"We agreed to cut scope rather than slip the date again.",
		"The migration script needs a dry run against the replica first.",
		"Handoff doc is drafted; review comments due Friday.",
		"Error budget is nearly spent, so no risky deploys this week.",
		"Hiring loop feedback was positive across the board.",
		"The vendor quote came in above what finance signed off on.",
		"Dashboards now separate p50 from p99 so regressions show early.",
		"Two flaky tests quarantined; owners assigned for real fixes.",
	}
	actionPhrases = []string{
		"write up the rollout plan", "file the capacity request",
		"schedule the postmortem", "update the runbook",
		"review the open pull requests", "draft the quarterly summary",
		"confirm the vendor timeline", "benchmark the new index",
		"clean up stale feature flags", "pair on the migration script",
	}
	journalSentences = []string{
		"Slow morning, but the long walk cleared my head before lunch.",
		"Finally fixed the wobbly shelf that has annoyed me for months.",
		"Called home; everyone is well and the garden survived the heat.",
		"Started sketching again after a long break and it felt easy.",
		"The neighbourhood market had the first good tomatoes of the year.",
		"Read on the balcony until the light went; no screens all evening.",
		"Legs sore from the ridge run but in the satisfying way.",
		"Tried the new coffee place; too sweet, keeping my usual order.",
	}
	ingredients = []string{
		"garlic", "chickpeas", "lemon", "anchovies", "tinned tomatoes",
		"fresh basil", "smoked paprika", "tahini", "soy sauce", "ginger",
	}
	dishes = []string{
		"Weeknight Pasta", "Chickpea Stew", "Miso Noodles",
		"Sheet Pan Chicken", "Lentil Soup", "Garlic Rice",
	}
	books = []string{
		"The Making of a Manager", "A Wizard of Earthsea", "Thinking in Systems",
		"The Dispossessed", "Working in Public", "Piranesi",
	}
	bookThoughts = []string{
		"systems push back exactly where you lean on them",
		"good abstractions earn their keep by what they let you forget",
		"walls between worlds are mostly walls inside people",
		"maintenance is the real work and the least celebrated",
	}
)

type generator struct {
	rng  *rand.Rand
	base time.Time
}

func main() {
	flag.Parse()

	g := &generator{
		rng:  rand.New(rand.NewSource(*seed)),
		base: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}

	workRoot := filepath.Join(*outputDir, "work")
	personalRoot := filepath.Join(*outputDir, "personal")
	for _, dir := range []string{
		filepath.Join(workRoot, "meetings"),
		filepath.Join(workRoot, "projects"),
		filepath.Join(workRoot, "decisions"),
		filepath.Join(workRoot, "archive"),
		filepath.Join(personalRoot, "journal"),
		filepath.Join(personalRoot, "recipes"),
		filepath.Join(personalRoot, "books"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "creating %s: %v\n", dir, err)
			os.Exit(1)
		}
	}

	// 60% work, 40% personal; within each vault, weighted by how
	// notes actually accumulate.
	workNotes := *numNotes * 60 / 100
	meetings := workNotes * 5 / 10
	projectNotes := workNotes * 3 / 10
	decisions := workNotes - meetings - projectNotes

	personalNotes := *numNotes - workNotes
	journal := personalNotes * 5 / 10
	recipes := personalNotes * 25 / 100
	bookNotes := personalNotes - journal - recipes

	fmt.Printf("Generating %d notes under %s...\n", *numNotes, *outputDir)

	written := 0
	written += g.generate(meetings, func(i int) error { return g.meetingNote(workRoot, i) })
	written += g.generate(projectNotes, func(i int) error { return g.projectNote(workRoot, i) })
	written += g.generate(decisions, func(i int) error { return g.decisionNote(workRoot, i) })
	written += g.generate(journal, func(i int) error { return g.journalNote(personalRoot, i) })
	written += g.generate(recipes, func(i int) error { return g.recipeNote(personalRoot, i) })
	written += g.generate(bookNotes, func(i int) error { return g.bookNote(personalRoot, i) })

	// A few notes in an excluded folder; the indexer must skip these.
	written += g.generate(3, func(i int) error { return g.archivedNote(workRoot, i) })

	fmt.Printf("Wrote %d notes (work: %d, personal: %d, archived: 3).\n",
		written, meetings+projectNotes+decisions, journal+recipes+bookNotes)
}

func (g *generator) generate(n int, fn func(i int) error) int {
	done := 0
	for i := 0; i < n; i++ {
		if err := fn(i); err != nil {
			fmt.Fprintf(os.Stderr, "generating note %d: %v\n", i, err)
			continue
		}
		done++
	}
	return done
}

func (g *generator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

// pickTwo returns two distinct entries when the pool allows it.
func (g *generator) pickTwo(pool []string) (string, string) {
	a := g.pick(pool)
	b := g.pick(pool)
	for b == a && len(pool) > 1 {
		b = g.pick(pool)
	}
	return a, b
}

// date returns an ISO date up to 18 months before the base date.
func (g *generator) date() string {
	return g.base.AddDate(0, 0, -g.rng.Intn(548)).Format("2006-01-02")
}

func slugify(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, strings.ToLower(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool { return r == '-' }), "-")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func (g *generator) meetingNote(root string, index int) error {
	kind := g.pick(meetingKinds)
	project := g.pick(projects)
	p1, p2 := g.pickTwo(people)
	title := fmt.Sprintf("%s %s", titleCase(project), kind)
	date := g.date()
	s1, s2 := g.pickTwo(workSentences)
	a1, a2 := g.pickTwo(actionPhrases)

	content := fmt.Sprintf(meetingTemplate,
		title, date, strings.Join([]string{p1, p2}, ", "), kind,
		title,
		project, g.pick(actionPhrases),
		s1, s2,
		a1, p1, a2, p2, g.pick(actionPhrases),
	)

	name := fmt.Sprintf("%s-%s-%d.md", date, slugify(kind), index)
	return os.WriteFile(filepath.Join(root, "meetings", name), []byte(content), 0o644)
}

func (g *generator) projectNote(root string, index int) error {
	project := g.pick(projects)
	title := titleCase(project)
	s1, s2 := g.pickTwo(workSentences)
	a1, a2 := g.pickTwo(actionPhrases)

	content := fmt.Sprintf(projectTemplate,
		title, g.date(), slugify(project),
		title, s1, s2, a1, a2,
	)

	name := fmt.Sprintf("%s-%d.md", slugify(project), index)
	return os.WriteFile(filepath.Join(root, "projects", name), []byte(content), 0o644)
}

func (g *generator) decisionNote(root string, index int) error {
	project := g.pick(projects)
	p1, p2 := g.pickTwo(people)
	title := fmt.Sprintf("ADR: %s", titleCase(project))
	s1, s2 := g.pickTwo(workSentences)

	content := fmt.Sprintf(decisionTemplate,
		title, g.date(), strings.Join([]string{p1, p2}, ", "),
		title, g.pick(workSentences), s1, s2,
	)

	name := fmt.Sprintf("adr-%03d-%s.md", index, slugify(project))
	return os.WriteFile(filepath.Join(root, "decisions", name), []byte(content), 0o644)
}

func (g *generator) journalNote(root string, index int) error {
	date := g.date()
	s1, s2 := g.pickTwo(journalSentences)

	content := fmt.Sprintf(journalTemplate,
		fmt.Sprintf("Journal %s", date), date, s1, s2,
	)

	name := fmt.Sprintf("%s-%d.md", date, index)
	return os.WriteFile(filepath.Join(root, "journal", name), []byte(content), 0o644)
}

func (g *generator) recipeNote(root string, index int) error {
	dish := g.pick(dishes)
	i1, i2 := g.pickTwo(ingredients)

	content := fmt.Sprintf(recipeTemplate,
		dish, dish, i1, i2, g.pick(ingredients),
		"Everything in one pan, twenty minutes, taste before serving.",
	)

	name := fmt.Sprintf("%s-%d.md", slugify(dish), index)
	return os.WriteFile(filepath.Join(root, "recipes", name), []byte(content), 0o644)
}

func (g *generator) bookNote(root string, index int) error {
	book := g.pick(books)

	content := fmt.Sprintf(bookTemplate,
		book, g.date(), book,
		g.pick(journalSentences), g.pick(bookThoughts),
	)

	name := fmt.Sprintf("%s-%d.md", slugify(book), index)
	return os.WriteFile(filepath.Join(root, "books", name), []byte(content), 0o644)
}

// archivedNote writes into archive/, which the default configuration
// excludes from indexing.
func (g *generator) archivedNote(root string, index int) error {
	content := fmt.Sprintf(journalTemplate,
		fmt.Sprintf("Archived note %d", index), g.date(),
		g.pick(workSentences), "This file must never appear in search results.",
	)

	name := fmt.Sprintf("old-%d.md", index)
	return os.WriteFile(filepath.Join(root, "archive", name), []byte(content), 0o644)
}
