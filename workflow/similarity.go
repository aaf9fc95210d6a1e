package workflow

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"
)

// Legal-entity suffixes carry no identity signal: "Acme Ltd" and "Acme
// Limited" are the same vendor. Stripped during normalization.
var legalEntitySuffixes = map[string]bool{
	"inc":          true,
	"incorporated": true,
	"corp":         true,
	"corporation":  true,
	"co":           true,
	"company":      true,
	"ltd":          true,
	"limited":      true,
	"llc":          true,
	"llp":          true,
	"plc":          true,
	"gmbh":         true,
	"pte":          true,
	"pvt":          true,
	"sa":           true,
	"bv":           true,
}

// NormalizeEntityName lowercases, strips punctuation, drops legal-entity
// suffix tokens and collapses whitespace. All similarity scoring and blocking
// operates on normalized strings.
func NormalizeEntityName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	tokens := strings.Fields(b.String())
	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if legalEntitySuffixes[token] {
			continue
		}
		kept = append(kept, token)
	}
	// "The Limited Co" is someone's actual trading name. When suffix tokens
	// outnumber what survives, stripping would erase the identity signal, so
	// keep the name whole.
	if len(tokens)-len(kept) > len(kept) {
		kept = tokens
	}
	return strings.Join(kept, " ")
}

// NormalizeCode canonicalizes explicit identifiers (supplier code, tax id,
// material code) for exact-match lookups.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// BlockingKey returns the coarse index key bounding fuzzy-match candidates:
// the first token of the normalized name. Records sharing no blocking key are
// never scored against each other.
func BlockingKey(s string) string {
	normalized := NormalizeEntityName(s)
	if normalized == "" {
		return ""
	}
	if idx := strings.IndexByte(normalized, ' '); idx > 0 {
		return normalized[:idx]
	}
	return normalized
}

// SimilarityScore compares two already-normalized strings and returns a 0-100
// percentage. Identical strings score 100; disjoint strings score near 0;
// single-character edits degrade the score monotonically.
//
// The score is the best of three views:
// - plain edit-distance ratio over the whole strings
// - edit-distance ratio over sorted tokens (word order insensitive)
// - Jaro-Winkler, which favors shared prefixes on short strings
func SimilarityScore(a, b string) int {
	if a == b {
		if a == "" {
			return 0
		}
		return 100
	}
	if a == "" || b == "" {
		return 0
	}

	score := levenshteinRatio(a, b)

	if sorted := levenshteinRatio(sortTokens(a), sortTokens(b)); sorted > score {
		score = sorted
	}

	if jw := int(smetrics.JaroWinkler(a, b, 0.7, 4) * 100); jw > score {
		// Jaro-Winkler is generous on near-disjoint strings; only let it win
		// when edit distance already shows real overlap.
		if score >= 50 {
			score = jw
		}
	}

	if score > 99 {
		// Reserve 100 for exact equality so the auto-accept band stays honest.
		score = 99
	}
	return score
}

func levenshteinRatio(a, b string) int {
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	ratio := float64(maxLen-dist) / float64(maxLen)
	if ratio < 0 {
		ratio = 0
	}
	return int(ratio*100 + 0.5)
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
