package translate

import "testing"

func TestCleanOutputStripsMetaPreambleKeepsLastLine(t *testing.T) {
	got := CleanOutput("Note: the speaker used an idiom here.\nThe lecture covers thermodynamics.")
	want := "The lecture covers thermodynamics."
	if got != want {
		t.Fatalf("CleanOutput() = %q, want %q", got, want)
	}
}

func TestCleanOutputStripsHmmPreamble(t *testing.T) {
	got := CleanOutput("Hmm, this is ambiguous.\nI'll output the direct translation.\nBonjour le monde.")
	want := "Bonjour le monde."
	if got != want {
		t.Fatalf("CleanOutput() = %q, want %q", got, want)
	}
}

func TestCleanOutputJoinsPlainMultilineResponse(t *testing.T) {
	got := CleanOutput("This is the first line.\nThis is the second line.")
	want := "This is the first line. This is the second line."
	if got != want {
		t.Fatalf("CleanOutput() = %q, want %q", got, want)
	}
}

func TestCleanOutputTrimsSurroundingQuotes(t *testing.T) {
	got := CleanOutput(`"Bonjour le monde"`)
	want := "Bonjour le monde"
	if got != want {
		t.Fatalf("CleanOutput() = %q, want %q", got, want)
	}
}

func TestCleanOutputEmptyInput(t *testing.T) {
	if got := CleanOutput("   \n  "); got != "" {
		t.Fatalf("CleanOutput() = %q, want empty", got)
	}
}

func TestBuildPromptFallsBackToGenericTemplate(t *testing.T) {
	prompt := buildPrompt(PurposeRealtime, "fr", "de", "bonjour")
	if prompt == "" {
		t.Fatal("expected a non-empty fallback prompt")
	}
	if !contains(prompt, "bonjour") || !contains(prompt, "fr") || !contains(prompt, "de") {
		t.Fatalf("fallback prompt missing expected substitutions: %q", prompt)
	}
}

func TestBuildPromptUsesSpecificTemplateWhenPresent(t *testing.T) {
	prompt := buildPrompt(PurposeRealtime, "ja", "en", "konnichiwa")
	if !contains(prompt, "romaji") {
		t.Fatalf("expected ja->en realtime template (romaji hint), got %q", prompt)
	}
}

func TestThinkingBudgetMapsKnownTiers(t *testing.T) {
	if thinkingBudget("") != nil {
		t.Fatal("expected nil budget for empty effort")
	}
	if b := thinkingBudget("high"); b == nil || *b != 8192 {
		t.Fatalf("expected high effort budget 8192, got %v", b)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
