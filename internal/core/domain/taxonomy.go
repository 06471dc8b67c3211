package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TaxonomyNode is one entry of a subject's syllabus taxonomy.
// Code is a dotted-numeric string ("4", "4.2"); the ancestor chain is
// the code with trailing dot-segments removed.
type TaxonomyNode struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

// ThemeGroup is a derived view: one top-level theme with its subthemes.
// It is recomputed from the flat node list and never stored.
type ThemeGroup struct {
	Code      string         `json:"code"`
	Title     string         `json:"title"`
	Synthetic bool           `json:"synthetic,omitempty"`
	Subthemes []TaxonomyNode `json:"subthemes"`
}

// missing or non-numeric segments sort below any real segment
const segmentSentinel = -1

// CompareCodes orders dotted-numeric codes by the numeric value of each
// dot-separated segment. Lexicographic string order is only the final
// tie-break, so "1.2" sorts before "1.10" and "2" after "1.9".
func CompareCodes(a, b string) int {
	aSegs := strings.Split(a, ".")
	bSegs := strings.Split(b, ".")

	n := len(aSegs)
	if len(bSegs) > n {
		n = len(bSegs)
	}
	for i := 0; i < n; i++ {
		av := segmentValue(aSegs, i)
		bv := segmentValue(bSegs, i)
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(a, b)
}

func segmentValue(segs []string, i int) int {
	if i >= len(segs) {
		return segmentSentinel
	}
	v, err := strconv.Atoi(strings.TrimSpace(segs[i]))
	if err != nil || v < 0 {
		return segmentSentinel
	}
	return v
}

// SortNodes sorts nodes in place by CompareCodes.
func SortNodes(nodes []TaxonomyNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return CompareCodes(nodes[i].Code, nodes[j].Code) < 0
	})
}

// DedupeNodes collapses entries with the same code string, keeping the
// most recently supplied title. Comparison is exact string equality,
// never numeric equivalence: "1.1" and "1.10" stay distinct.
func DedupeNodes(nodes []TaxonomyNode) []TaxonomyNode {
	index := make(map[string]int, len(nodes))
	out := make([]TaxonomyNode, 0, len(nodes))
	for _, node := range nodes {
		if at, ok := index[node.Code]; ok {
			out[at].Title = node.Title
			continue
		}
		index[node.Code] = len(out)
		out = append(out, node)
	}
	return out
}

// GroupNodes buckets a flat node list into theme groups. A node whose
// code has no dot is a main theme; every other node is a subtheme
// bucketed under its leading segment. A bucket without a main-theme
// node synthesizes a display title from its first subtheme so orphan
// subthemes are never dropped. Groups and subtheme lists are both
// ordered by CompareCodes.
func GroupNodes(nodes []TaxonomyNode) []ThemeGroup {
	mains := make(map[string]TaxonomyNode)
	subthemes := make(map[string][]TaxonomyNode)

	for _, node := range nodes {
		dot := strings.Index(node.Code, ".")
		if dot < 0 {
			mains[node.Code] = node
			continue
		}
		lead := node.Code[:dot]
		subthemes[lead] = append(subthemes[lead], node)
	}

	seen := make(map[string]struct{}, len(mains)+len(subthemes))
	groups := make([]ThemeGroup, 0, len(mains)+len(subthemes))

	for code, main := range mains {
		seen[code] = struct{}{}
		groups = append(groups, ThemeGroup{
			Code:      code,
			Title:     main.Title,
			Subthemes: sortedSubthemes(subthemes[code]),
		})
	}
	for lead, subs := range subthemes {
		if _, ok := seen[lead]; ok {
			continue
		}
		sorted := sortedSubthemes(subs)
		groups = append(groups, ThemeGroup{
			Code:      lead,
			Title:     fmt.Sprintf("Theme %s: %s", lead, sorted[0].Title),
			Synthetic: true,
			Subthemes: sorted,
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return CompareCodes(groups[i].Code, groups[j].Code) < 0
	})
	return groups
}

func sortedSubthemes(subs []TaxonomyNode) []TaxonomyNode {
	out := make([]TaxonomyNode, len(subs))
	copy(out, subs)
	SortNodes(out)
	return out
}

// DescendantCodes returns the group's own code followed by all subtheme
// codes. Toggling a theme selects or clears exactly this set.
func (g ThemeGroup) DescendantCodes() []string {
	codes := make([]string, 0, len(g.Subthemes)+1)
	codes = append(codes, g.Code)
	for _, sub := range g.Subthemes {
		codes = append(codes, sub.Code)
	}
	return codes
}

// Line renders a node as the "code title" form used in prompts and in
// chapter matching.
func (n TaxonomyNode) Line() string {
	return n.Code + " " + n.Title
}

// RenderLines renders nodes as one "code title" line each, sorted by
// CompareCodes. The exact same strings are later required for chapter
// validation, so rendering is the single source of truth.
func RenderLines(nodes []TaxonomyNode) string {
	sorted := make([]TaxonomyNode, len(nodes))
	copy(sorted, nodes)
	SortNodes(sorted)

	var b strings.Builder
	for i, node := range sorted {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(node.Line())
	}
	return b.String()
}
