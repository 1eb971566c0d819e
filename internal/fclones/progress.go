package fclones

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Matches "4/6: Grouping by prefix [####------]"; the counter follows the bar.
var progressBarRe = regexp.MustCompile(`(\d+)/(\d+):\s+([^\[]+?)\s*\[[^\]]*\]`)

// parseProgressBar extracts the last progress bar on a line, or nil.
func parseProgressBar(line string) *Progress {
	matches := progressBarRe.FindAllStringSubmatchIndex(line, -1)
	if len(matches) == 0 {
		return nil
	}
	m := matches[len(matches)-1]

	phaseNum, _ := strconv.Atoi(line[m[2]:m[3]])
	phaseTotal, _ := strconv.Atoi(line[m[4]:m[5]])
	name := strings.TrimSpace(line[m[6]:m[7]])

	p := &Progress{
		Phase:        phaseNameToPhase(name),
		PhaseNum:     phaseNum,
		PhaseTotal:   phaseTotal,
		PhaseName:    name,
		PhasePercent: -1,
	}

	counter := strings.TrimSpace(line[m[1]:])
	if cur, total, ok := strings.Cut(counter, "/"); ok {
		p.Current = parseBytes(cur)
		p.Total = parseBytes(total)
		if p.Total > 0 {
			p.PhasePercent = float64(p.Current) / float64(p.Total) * 100
		}
	} else {
		p.Current = parseBytes(counter)
	}

	return p
}

// phaseNameToPhase maps an fclones phase description to a coarse phase.
func phaseNameToPhase(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "scanning"):
		return "scanning"
	case strings.Contains(lower, "contents"):
		return "hashing"
	case strings.Contains(lower, "grouping"):
		return "grouping"
	case strings.Contains(lower, "initializing"):
		return "initializing"
	default:
		return "processing"
	}
}

// parseBytes parses counters like "630.5 MB" or "12027". Unparseable input
// yields 0.
func parseBytes(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0
	}
	return int64(n)
}
