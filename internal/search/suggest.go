package search

import (
	"sort"
	"strings"
)

// maxSuggestions caps how many source ids are offered for an unknown podcast filter.
const maxSuggestions = 3

// editDistance returns the optimal string alignment distance between a and b: the
// number of insertions, deletions, substitutions and adjacent transpositions needed to
// turn one into the other.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	d := make([][]int, len(ra)+1)
	for i := range d {
		d[i] = make([]int, len(rb)+1)
		d[i][0] = i
	}
	for j := range d[0] {
		d[0][j] = j
	}
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			d[i][j] = min(d[i-1][j]+1, d[i][j-1]+1, d[i-1][j-1]+cost)
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				d[i][j] = min(d[i][j], d[i-2][j-2]+1)
			}
		}
	}
	return d[len(ra)][len(rb)]
}

// SuggestSources returns the known source ids closest to name, for a filter that
// matched nothing. Case is ignored; ids further than a third of the name's length (at
// least two edits) are not suggested.
func SuggestSources(name string, sources []string) []string {
	target := strings.ToLower(strings.TrimSpace(name))
	if target == "" {
		return nil
	}
	limit := max(2, len([]rune(target))/3)

	type candidate struct {
		id   string
		dist int
	}
	var cands []candidate
	for _, id := range sources {
		lower := strings.ToLower(id)
		dist := editDistance(target, lower)
		if strings.Contains(lower, target) || strings.Contains(target, lower) {
			dist = min(dist, 1)
		}
		if dist <= limit {
			cands = append(cands, candidate{id: id, dist: dist})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].id < cands[j].id
	})
	if len(cands) > maxSuggestions {
		cands = cands[:maxSuggestions]
	}
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.id
	}
	return out
}
