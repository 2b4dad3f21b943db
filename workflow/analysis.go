package workflow

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sweetpotato0/ai-conclave/persona"
	"github.com/sweetpotato0/ai-conclave/reasoning"
)

const fallbackFindingRunes = 200

var (
	findingIndicators     = []string{"finding", "issue", "recommendation"}
	opportunityIndicators = []string{"opportunity", "adjacent", "future"}

	highImpactKeywords = []string{"critical", "security", "breaking"}
	lowImpactKeywords  = []string{"minor", "optional", "nice to have"}
)

// idPrefix maps roles to finding ID prefixes.
var idPrefix = map[persona.Role]string{
	persona.RolePlanner:     "PLAN",
	persona.RoleFixer:       "FIX",
	persona.RoleImplementer: "IMPL",
	persona.RoleCritic:      "CRIT",
}

// sequence hands out run-scoped monotonic IDs per prefix.
type sequence map[string]int

func (s sequence) next(prefix string) string {
	s[prefix]++
	return fmt.Sprintf("%s-%03d", prefix, s[prefix])
}

// ClassifyImpact grades text by keyword. High keywords win over low ones.
func ClassifyImpact(text string) Impact {
	lower := strings.ToLower(text)
	for _, k := range highImpactKeywords {
		if strings.Contains(lower, k) {
			return ImpactHigh
		}
	}
	for _, k := range lowImpactKeywords {
		if strings.Contains(lower, k) {
			return ImpactLow
		}
	}
	return ImpactMedium
}

// ExtractFindingTexts returns the lines of text that carry a finding
// indicator. When no line does, the first 200 characters of text stand in
// so every output yields at least one finding.
func ExtractFindingTexts(text string) []string {
	out := matchingLines(text, findingIndicators)
	if len(out) > 0 {
		return out
	}
	fallback := strings.TrimSpace(text)
	if utf8.RuneCountInString(fallback) > fallbackFindingRunes {
		fallback = string([]rune(fallback)[:fallbackFindingRunes])
	}
	return []string{fallback}
}

// ExtractOpportunityTexts returns the lines of text that mention an
// opportunity, adjacent work or the future.
func ExtractOpportunityTexts(text string) []string {
	return matchingLines(text, opportunityIndicators)
}

func matchingLines(text string, indicators []string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(line)
		for _, ind := range indicators {
			if strings.Contains(lower, ind) {
				if d := cleanLine(line, indicators); d != "" {
					out = append(out, d)
				}
				break
			}
		}
	}
	return out
}

// cleanLine strips list markers and a leading "Label:" when the label is
// one of the indicator words.
func cleanLine(line string, labels []string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-*•# \t")
	if i := strings.Index(line, ":"); i > 0 {
		label := strings.ToLower(strings.TrimSpace(line[:i]))
		label = strings.TrimSuffix(label, "s")
		for _, l := range labels {
			if label == l {
				line = strings.TrimSpace(line[i+1:])
				break
			}
		}
	}
	return line
}

// Similarity is the word-set Jaccard overlap of two descriptions. A
// description with no words overlaps nothing, so it never conflicts.
func Similarity(a, b string) float64 {
	if len(reasoning.Words(a)) == 0 || len(reasoning.Words(b)) == 0 {
		return 0
	}
	return reasoning.Jaccard(a, b)
}

// antonym is a pair of opposing terms. Each side lists its surface forms;
// a form may span two words.
type antonym struct {
	positive []string
	negative []string
}

var antonyms = []antonym{
	{positive: []string{"add"}, negative: []string{"remove"}},
	{positive: []string{"increase"}, negative: []string{"decrease"}},
	{positive: []string{"enable"}, negative: []string{"disable"}},
	{positive: []string{"should"}, negative: []string{"should not", "shouldn't"}},
	{positive: []string{"must"}, negative: []string{"must not", "mustn't"}},
	{positive: []string{"do"}, negative: []string{"don't", "do not"}},
}

// ClassifyConflict reports complex when one description holds one side of
// an antonym pair and the other holds the opposite side. A negated form
// such as "should not" never counts as the positive "should".
func ClassifyConflict(a, b string) ConflictType {
	ta, tb := reasoning.Words(a), reasoning.Words(b)
	for _, pair := range antonyms {
		aPos, aNeg := containsAny(ta, pair.positive), containsAny(ta, pair.negative)
		bPos, bNeg := containsAny(tb, pair.positive), containsAny(tb, pair.negative)
		if (aPos && bNeg) || (aNeg && bPos) {
			return ConflictComplex
		}
	}
	return ConflictSimple
}

func containsAny(tokens []string, forms []string) bool {
	for _, f := range forms {
		if containsTerm(tokens, f) {
			return true
		}
	}
	return false
}

// containsTerm matches a one or two word term. A single word followed by
// "not" is its negation and does not match.
func containsTerm(tokens []string, term string) bool {
	parts := strings.Fields(term)
	for i := range tokens {
		if tokens[i] != parts[0] {
			continue
		}
		if len(parts) == 2 {
			if i+1 < len(tokens) && tokens[i+1] == parts[1] {
				return true
			}
			continue
		}
		if i+1 < len(tokens) && tokens[i+1] == "not" {
			continue
		}
		return true
	}
	return false
}

// MergeFindings combines two overlapping descriptions: a, followed by the
// words of b that a lacks when they add more than 10 characters.
func MergeFindings(a, b string) string {
	seen := reasoning.WordSet(a)
	var extra []string
	for _, w := range strings.Fields(b) {
		key := strings.Join(reasoning.Words(w), " ")
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		extra = append(extra, w)
	}
	remainder := strings.Join(extra, " ")
	if utf8.RuneCountInString(remainder) <= 10 {
		return a
	}
	return a + "; " + remainder
}

// DetectConflicts pairs every finding of a with every finding of b from a
// different role and keeps the pairs whose similarity reaches threshold.
// The returned conflicts carry type and similarity but no ID.
func DetectConflicts(a, b []Finding, threshold float64) []Conflict {
	var out []Conflict
	for _, fa := range a {
		for _, fb := range b {
			if fa.Role == fb.Role {
				continue
			}
			sim := Similarity(fa.Description, fb.Description)
			if sim < threshold {
				continue
			}
			out = append(out, Conflict{
				FindingA:   fa,
				FindingB:   fb,
				Similarity: sim,
				Type:       ClassifyConflict(fa.Description, fb.Description),
			})
		}
	}
	return out
}

// ChangePercentage measures how much updated differs from original as
// (added + removed) / max(len(original), len(updated)) over whitespace word
// multisets. Fully disjoint texts of equal length score 2.
func ChangePercentage(original, updated string) float64 {
	ow, uw := strings.Fields(original), strings.Fields(updated)
	denom := max(len(ow), len(uw))
	if denom == 0 {
		return 0
	}
	oc, uc := countWords(ow), countWords(uw)
	diff := 0
	for w, n := range uc {
		if n > oc[w] {
			diff += n - oc[w]
		}
	}
	for w, n := range oc {
		if n > uc[w] {
			diff += n - uc[w]
		}
	}
	return float64(diff) / float64(denom)
}

func countWords(words []string) map[string]int {
	m := make(map[string]int, len(words))
	for _, w := range words {
		m[w]++
	}
	return m
}
