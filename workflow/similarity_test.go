package workflow

import "testing"

func TestNormalizeEntityName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Acme Trading Ltd", "acme trading"},
		{"ACME TRADING CO.", "acme trading"},
		{"  Acme   Trading  ", "acme trading"},
		{"Acme-Trading, Inc.", "acme trading"},
		{"Northwind Traders", "northwind traders"},
		{"Globex GmbH", "globex"},
		{"Acme Ltd", "acme"},
		{"The Limited Co", "the limited co"}, // suffix-dominated names keep their tokens
		{"Limited Inc", "limited inc"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeEntityName(tc.in); got != tc.want {
			t.Errorf("NormalizeEntityName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBlockingKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Acme Trading Ltd", "acme"},
		{"Northwind Traders", "northwind"},
		{"Zenith", "zenith"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := BlockingKey(tc.in); got != tc.want {
			t.Errorf("BlockingKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSimilarityScoreIdentical(t *testing.T) {
	if got := SimilarityScore("acme trading", "acme trading"); got != 100 {
		t.Fatalf("identical strings: got %d, want 100", got)
	}
}

func TestSimilarityScoreDisjoint(t *testing.T) {
	got := SimilarityScore("acme trading", "zenith metals")
	if got >= ReviewThreshold {
		t.Fatalf("disjoint strings: got %d, want below %d", got, ReviewThreshold)
	}
}

func TestSimilarityScoreEmpty(t *testing.T) {
	if got := SimilarityScore("", ""); got != 0 {
		t.Fatalf("two empty strings: got %d, want 0", got)
	}
	if got := SimilarityScore("acme", ""); got != 0 {
		t.Fatalf("one empty string: got %d, want 0", got)
	}
}

func TestSimilarityScoreNonIdenticalNeverPerfect(t *testing.T) {
	if got := SimilarityScore("acme trading", "acme tradings"); got >= 100 {
		t.Fatalf("near-identical strings: got %d, want below 100", got)
	}
}

func TestSimilarityScoreDegradesMonotonically(t *testing.T) {
	base := "northwind traders"
	variants := []string{
		"northwind traders", // identical
		"northwind trader",  // one edit
		"northwind traders x",
		"northwind trade house",
		"southwind logistics",
	}
	prev := 101
	for _, variant := range variants {
		score := SimilarityScore(base, variant)
		if score > prev {
			t.Fatalf("score increased: %q scored %d after previous %d", variant, score, prev)
		}
		prev = score
	}
}

func TestSimilarityScoreWordOrderInsensitive(t *testing.T) {
	got := SimilarityScore("trading acme", "acme trading")
	if got < AutoAcceptThreshold {
		t.Fatalf("reordered tokens: got %d, want at least %d", got, AutoAcceptThreshold)
	}
}

func TestClassifyFuzzyScoreBands(t *testing.T) {
	cases := []struct {
		score int
		want  MatchOutcome
	}{
		{100, MatchOutcomeFuzzy},
		{95, MatchOutcomeFuzzy},
		{94, MatchOutcomeConflict},
		{75, MatchOutcomeConflict},
		{74, MatchOutcomeCreateNew},
		{0, MatchOutcomeCreateNew},
	}
	for _, tc := range cases {
		if got := classifyFuzzyScore(tc.score); got != tc.want {
			t.Errorf("classifyFuzzyScore(%d) = %q, want %q", tc.score, got, tc.want)
		}
	}
}
