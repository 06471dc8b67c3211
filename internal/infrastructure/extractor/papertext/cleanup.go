package papertext

import (
	"regexp"
	"strings"
)

// repetitionThreshold drops boilerplate lines that recur on this share
// of pages, such as copyright footers and paper codes.
const repetitionThreshold = 0.6

var (
	pageNumberRe = regexp.MustCompile(`^\d{1,4}$`)
	blankRunsRe  = regexp.MustCompile(`\n{3,}`)
)

// CleanPages filters per-page lines down to body text and joins the
// result into a single prompt-ready string.
func CleanPages(pages [][]string) string {
	lineCounts := make(map[string]int)
	for _, lines := range pages {
		seen := make(map[string]bool)
		for _, line := range lines {
			key := strings.ToLower(line)
			if !seen[key] {
				seen[key] = true
				lineCounts[key]++
			}
		}
	}
	// Repetition only means anything across several pages; a one-page
	// document would lose every line to the threshold.
	isRepeated := func(line string) bool {
		if len(pages) < 2 {
			return false
		}
		return float64(lineCounts[strings.ToLower(line)])/float64(len(pages)) >= repetitionThreshold
	}

	cleaned := make([]string, 0, len(pages))
	for _, lines := range pages {
		var kept []string
		for _, line := range lines {
			if pageNumberRe.MatchString(line) {
				continue
			}
			if isRepeated(line) {
				continue
			}
			kept = append(kept, line)
		}
		if len(kept) > 0 {
			cleaned = append(cleaned, strings.Join(kept, "\n"))
		}
	}

	text := strings.Join(cleaned, "\n\n")
	text = strings.ReplaceAll(text, "-\n", "")
	text = blankRunsRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
