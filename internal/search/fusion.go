package search

import "sort"

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// the empirically validated default across IR systems.
const DefaultRRFConstant = 60

const (
	// topRankBonus rewards a document that ranked first in any list.
	topRankBonus = 0.05

	// nearTopBonus rewards a best rank within the top three.
	nearTopBonus = 0.02
)

// ReciprocalRankFusion merges ranked result lists keyed by file path.
// Every appearance of a document contributes 1/(k + rank + 1) to its
// score, rank counted from zero; the payload is fixed by the first
// observation across the lists. A document whose best rank is 0 gets
// +0.05, best rank ≤ 2 gets +0.02. Output is sorted by fused score
// descending with ties keeping first-observed order, and each result
// carries its fused position in RRFRank and fused score in Score.
func ReciprocalRankFusion(lists [][]*Result, k int) []*Result {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	fused := []*Result{}
	if len(lists) == 0 {
		return fused
	}

	scores := make(map[string]float64)
	docs := make(map[string]*Result)
	bestRank := make(map[string]int)
	var order []string

	for _, list := range lists {
		for rank, doc := range list {
			if doc == nil || doc.FilePath == "" {
				continue
			}
			id := doc.FilePath
			if _, seen := docs[id]; !seen {
				cp := *doc
				docs[id] = &cp
				bestRank[id] = rank
				order = append(order, id)
			}
			scores[id] += 1.0 / float64(k+rank+1)
			if rank < bestRank[id] {
				bestRank[id] = rank
			}
		}
	}

	for id, best := range bestRank {
		switch {
		case best == 0:
			scores[id] += topRankBonus
		case best <= 2:
			scores[id] += nearTopBonus
		}
	}

	for _, id := range order {
		fused = append(fused, docs[id])
	}
	sort.SliceStable(fused, func(i, j int) bool {
		return scores[fused[i].FilePath] > scores[fused[j].FilePath]
	})
	for i, doc := range fused {
		doc.Score = scores[doc.FilePath]
		doc.RRFRank = i
	}
	return fused
}

// NormalizeScores rescales Score to [0, 1] with min-max normalization,
// in place. When all scores are equal every result gets 1.0.
func NormalizeScores(results []*Result) []*Result {
	if len(results) == 0 {
		return results
	}

	lo, hi := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < lo {
			lo = r.Score
		}
		if r.Score > hi {
			hi = r.Score
		}
	}

	if hi == lo {
		for _, r := range results {
			r.Score = 1.0
		}
		return results
	}
	for _, r := range results {
		r.Score = (r.Score - lo) / (hi - lo)
	}
	return results
}

// PositionAwareBlend combines fused scores with reranker judgments.
// RRF keeps most of the weight at the top of the list where exact
// matches live; the reranker gains weight further down: positions 0-2
// blend 0.75/0.25, 3-9 blend 0.60/0.40, 10+ blend 0.40/0.60. A missing
// rerank score counts as 0. The output is re-sorted by blended score
// with ties keeping pre-blend order; the components are preserved in
// RRFScore and RerankScore.
func PositionAwareBlend(results []*Result, rerankScores map[string]float64) []*Result {
	blended := make([]*Result, 0, len(results))
	for i, doc := range results {
		rrfWeight := 0.40
		switch {
		case i < 3:
			rrfWeight = 0.75
		case i < 10:
			rrfWeight = 0.60
		}

		cp := *doc
		cp.RRFScore = doc.Score
		cp.RerankScore = rerankScores[doc.FilePath]
		cp.Score = rrfWeight*cp.RRFScore + (1-rrfWeight)*cp.RerankScore
		blended = append(blended, &cp)
	}

	sort.SliceStable(blended, func(i, j int) bool {
		return blended[i].Score > blended[j].Score
	})
	return blended
}
