package evidence

import "strings"

// MatchConfidence classifies how a form code relates to a required evidence
// type. The enum makes the scoring contract explicit instead of burying it in
// inline string checks.
type MatchConfidence int

const (
	MatchDefault MatchConfidence = iota
	MatchKeyword
	MatchSubstring
	MatchExact
)

func (m MatchConfidence) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchSubstring:
		return "substring"
	case MatchKeyword:
		return "keyword"
	default:
		return "default"
	}
}

const (
	scoreExact    = 100
	scoreSubstring = 80
	scoreKeywordBase = 50
	scoreKeywordStep = 10
	scoreDefault  = 30
)

// Classify compares one form code against one required evidence type and
// returns the confidence tier plus its numeric relevance score (0-100).
func Classify(formCode, requiredType string) (MatchConfidence, int) {
	code := normalizeCode(formCode)
	required := normalizeCode(requiredType)

	if code == "" || required == "" {
		return MatchDefault, scoreDefault
	}
	if code == required {
		return MatchExact, scoreExact
	}
	if strings.Contains(code, required) || strings.Contains(required, code) {
		return MatchSubstring, scoreSubstring
	}
	if shared := sharedKeywords(code, required); shared > 0 {
		score := scoreKeywordBase + scoreKeywordStep*shared
		if score > scoreExact {
			score = scoreExact
		}
		return MatchKeyword, score
	}
	return MatchDefault, scoreDefault
}

// RelevanceScore returns the best relevance of a form code against all of a
// question's required evidence types.
func RelevanceScore(formCode string, requiredTypes []string) int {
	best := scoreDefault
	for _, required := range requiredTypes {
		if _, score := Classify(formCode, required); score > best {
			best = score
			if best == scoreExact {
				break
			}
		}
	}
	return best
}

// BestMatch returns the required evidence type that a form code matches most
// strongly, along with the confidence tier. Used by auto-mapping to record
// which requirement a submission satisfies.
func BestMatch(formCode string, requiredTypes []string) (string, MatchConfidence) {
	bestType := ""
	bestConfidence := MatchDefault
	bestScore := -1
	for _, required := range requiredTypes {
		confidence, score := Classify(formCode, required)
		if score > bestScore {
			bestType = required
			bestConfidence = confidence
			bestScore = score
		}
	}
	return bestType, bestConfidence
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// sharedKeywords counts underscore-delimited tokens present in both codes.
func sharedKeywords(a, b string) int {
	tokens := make(map[string]struct{})
	for _, token := range strings.Split(a, "_") {
		if token != "" {
			tokens[token] = struct{}{}
		}
	}
	shared := 0
	seen := make(map[string]struct{})
	for _, token := range strings.Split(b, "_") {
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		if _, ok := tokens[token]; ok {
			shared++
		}
	}
	return shared
}

// Humanize turns an evidence type code into a readable label for gap messages.
func Humanize(code string) string {
	return strings.TrimSpace(strings.ReplaceAll(normalizeCode(code), "_", " "))
}
