package worktree

import "github.com/lithammer/fuzzysearch/fuzzy"

// queryCharBag mirrors CharBagFor but is kept private to this file since
// it is only ever compared against an Entry's CharBag as a cheap
// pre-filter before the real fuzzy match runs.
func queryCharBag(q string) uint64 { return CharBagFor(q) }

// FuzzyMatch pairs a matched Entry with its fuzzysearch rank (lower is a
// better match, matching fuzzy.Rank's convention).
type FuzzyMatch struct {
	Entry Entry
	Rank  int
}

// FuzzyMatchPaths performs an external quick-open-style fuzzy match of
// query against every non-ignored file's path. The entry's precomputed
// character bag is used to skip the expensive fuzzy.RankMatch call for
// paths that cannot possibly contain every rune in query.
func (s Snapshot) FuzzyMatchPaths(query string, limit int) []FuzzyMatch {
	if query == "" {
		return nil
	}
	qbag := queryCharBag(query)
	var matches []FuzzyMatch
	s.Traverse(TraversalFilter{IncludeFiles: true}, "", func(e Entry) bool {
		if e.CharBag&qbag != qbag {
			return true
		}
		if rank := fuzzy.RankMatchFold(query, e.Path); rank >= 0 {
			matches = append(matches, FuzzyMatch{Entry: e, Rank: rank})
		}
		if limit > 0 && len(matches) >= limit*4 {
			// Stop scanning once we have a comfortable surplus to sort
			// down to limit; avoids an O(n) walk over huge trees for a
			// query the caller only wants a handful of results from.
			return false
		}
		return true
	})

	for i := 1; i < len(matches); i++ {
		j := i
		for j > 0 && matches[j-1].Rank > matches[j].Rank {
			matches[j-1], matches[j] = matches[j], matches[j-1]
			j--
		}
	}
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
