// Package textutil holds the text heuristics used to turn free-form model
// output into structured summary fields.
package textutil

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// KeyPointKeywords rank sentences in ExtractKeyPoints.
var KeyPointKeywords = []string{
	"ai", "artificial intelligence", "cancer", "treatment", "diagnosis",
	"research", "study", "found", "showed", "demonstrated", "improved",
	"novel", "breakthrough", "significant", "clinical",
}

// TrendKeywords mark a line as a trend in ExtractTrends.
var TrendKeywords = []string{
	"emerging", "trend", "growing", "increasing", "shift",
	"adoption", "development", "advancement", "progress",
}

// FallbackTrends is returned by ExtractTrends when no line matches.
var FallbackTrends = []string{"AI adoption increasing", "Focus on precision medicine"}

const minKeyPointWords = 6

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// ExtractKeyPoints returns up to max sentences of more than five words, ranked
// by how many keywords they mention. Ties keep text order.
func ExtractKeyPoints(text string, max int) []string {
	if max <= 0 {
		return []string{}
	}

	type ranked struct {
		sentence string
		hits     int
	}
	var candidates []ranked
	for _, sentence := range strings.Split(text, ". ") {
		sentence = strings.TrimSpace(sentence)
		if len(strings.Fields(sentence)) < minKeyPointWords {
			continue
		}
		lower := strings.ToLower(sentence)
		hits := 0
		for _, kw := range KeyPointKeywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		candidates = append(candidates, ranked{sentence: sentence, hits: hits})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].hits > candidates[j].hits
	})

	out := make([]string, 0, min(max, len(candidates)))
	for i := 0; i < len(candidates) && i < max; i++ {
		out = append(out, candidates[i].sentence)
	}
	return out
}

// ExtractTrends returns up to max lines that mention a trend keyword, or
// FallbackTrends when none do.
func ExtractTrends(text string, max int) []string {
	var trends []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• "))
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		for _, kw := range TrendKeywords {
			if strings.Contains(lower, kw) {
				trends = append(trends, line)
				break
			}
		}
		if max > 0 && len(trends) == max {
			break
		}
	}
	if len(trends) == 0 {
		return append([]string(nil), FallbackTrends...)
	}
	return trends
}

// ParseScore reads the first number in s as a score. Values above 1 are taken
// as percentages. The result is clamped to [0,1].
func ParseScore(s string) (float64, bool) {
	match := numberPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	if v > 1 {
		v /= 100
	}
	switch {
	case v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	return v, true
}
