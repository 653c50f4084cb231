package transcript_test

import (
	"testing"

	"github.com/lodrian/ascolta/internal/transcript"
)

func TestTrimmer_ExactHead(t *testing.T) {
	t.Parallel()

	tr := transcript.NewTrimmer([]string{"sombra"})

	got := tr.Trim("Sombra, what's the weather")
	if got != "what's the weather" {
		t.Errorf("Trim: got %q, want %q", got, "what's the weather")
	}
}

func TestTrimmer_RemainderKeptVerbatim(t *testing.T) {
	t.Parallel()

	tr := transcript.NewTrimmer([]string{"sombra"})

	// Casing and punctuation of the remainder must survive untouched.
	got := tr.Trim("Sombra, Tell Bob I'm late")
	if got != "Tell Bob I'm late" {
		t.Errorf("Trim: got %q, want %q", got, "Tell Bob I'm late")
	}
}

func TestTrimmer_MultiWordPhrase(t *testing.T) {
	t.Parallel()

	tr := transcript.NewTrimmer([]string{"hey sombra"})

	got := tr.Trim("Hey Sombra, open the door")
	if got != "open the door" {
		t.Errorf("Trim: got %q, want %q", got, "open the door")
	}
}

func TestTrimmer_FusedTokens(t *testing.T) {
	t.Parallel()

	tr := transcript.NewTrimmer([]string{"hey sombra"})

	// STT sometimes writes the phrase as a single token. The one-token
	// window compares space-stripped against "heysombra" and must win over
	// the two-token window, so "open" survives.
	got := tr.Trim("Heysombra open the door")
	if got != "open the door" {
		t.Errorf("Trim: got %q, want %q", got, "open the door")
	}
}

func TestTrimmer_SpellingDrift(t *testing.T) {
	t.Parallel()

	tr := transcript.NewTrimmer([]string{"sombra"})

	// "sonbra" scores ~0.91 Jaro-Winkler against "sombra", which clears the
	// fuzzy threshold even without a Double Metaphone overlap (SNPR vs SMPR).
	got := tr.Trim("Sonbra what's up")
	if got != "what's up" {
		t.Errorf("Trim: got %q, want %q", got, "what's up")
	}
}

func TestTrimmer_UppercaseHead(t *testing.T) {
	t.Parallel()

	tr := transcript.NewTrimmer([]string{"sombra"})

	got := tr.Trim("SOMBRA what's up")
	if got != "what's up" {
		t.Errorf("Trim: got %q, want %q", got, "what's up")
	}
}

func TestTrimmer_NoMatchLeavesTextAlone(t *testing.T) {
	t.Parallel()

	tr := transcript.NewTrimmer([]string{"sombra"})

	const text = "hello there, how are you"
	if got := tr.Trim(text); got != text {
		t.Errorf("Trim: got %q, want unchanged %q", got, text)
	}
}

func TestTrimmer_DiscourseWordSurvives(t *testing.T) {
	t.Parallel()

	tr := transcript.NewTrimmer([]string{"sombra"})

	// "so" shares a leading letter with "sombra" but scores ~0.82, below
	// the fuzzy threshold, and its Metaphone code S does not overlap SMPR.
	const text = "So, what's up"
	if got := tr.Trim(text); got != text {
		t.Errorf("Trim: got %q, want unchanged %q", got, text)
	}
}

func TestTrimmer_MidTextPhraseSurvives(t *testing.T) {
	t.Parallel()

	tr := transcript.NewTrimmer([]string{"sombra"})

	// The phrase appears as the second word. The two-token head window must
	// not ride along on the phrase's letters via the space-stripped form.
	const text = "Tell Sombra hello"
	if got := tr.Trim(text); got != text {
		t.Errorf("Trim: got %q, want unchanged %q", got, text)
	}
}

func TestTrimmer_OnlyPhrase(t *testing.T) {
	t.Parallel()

	tr := transcript.NewTrimmer([]string{"sombra"})

	if got := tr.Trim("Sombra."); got != "" {
		t.Errorf("Trim: got %q, want empty string", got)
	}
}

func TestTrimmer_TrailingEllipsisAbsorbed(t *testing.T) {
	t.Parallel()

	tr := transcript.NewTrimmer([]string{"sombra"})

	got := tr.Trim("Sombra... hello")
	if got != "hello" {
		t.Errorf("Trim: got %q, want %q", got, "hello")
	}
}

func TestTrimmer_LeadingPunctuationToken(t *testing.T) {
	t.Parallel()

	tr := transcript.NewTrimmer([]string{"sombra"})

	// A punctuation-only lead token is absorbed by the extra head window.
	got := tr.Trim("... Sombra hello")
	if got != "hello" {
		t.Errorf("Trim: got %q, want %q", got, "hello")
	}
}

func TestTrimmer_MultiplePhrases(t *testing.T) {
	t.Parallel()

	tr := transcript.NewTrimmer([]string{"hey sombra", "sombra"})

	if got := tr.Trim("Sombra stop"); got != "stop" {
		t.Errorf("Trim(%q): got %q, want %q", "Sombra stop", got, "stop")
	}
	if got := tr.Trim("Hey Sombra stop"); got != "stop" {
		t.Errorf("Trim(%q): got %q, want %q", "Hey Sombra stop", got, "stop")
	}
}

func TestTrimmer_NoPhrases(t *testing.T) {
	t.Parallel()

	for _, tr := range []*transcript.Trimmer{
		transcript.NewTrimmer(nil),
		transcript.NewTrimmer([]string{"   ", ""}),
	} {
		const text = "Sombra hello"
		if got := tr.Trim(text); got != text {
			t.Errorf("Trim with no usable phrases: got %q, want unchanged %q", got, text)
		}
	}
}

func TestTrimmer_EmptyText(t *testing.T) {
	t.Parallel()

	tr := transcript.NewTrimmer([]string{"sombra"})
	if got := tr.Trim(""); got != "" {
		t.Errorf("Trim(\"\"): got %q, want empty string", got)
	}
}

func TestTrimmer_ThresholdOptions(t *testing.T) {
	t.Parallel()

	// Raise both thresholds so only an exact head qualifies.
	tr := transcript.NewTrimmer(
		[]string{"sombra"},
		transcript.WithPhoneticThreshold(0.99),
		transcript.WithFuzzyThreshold(0.99),
	)

	const drifted = "Sonbra hello"
	if got := tr.Trim(drifted); got != drifted {
		t.Errorf("Trim with threshold 0.99: got %q, want unchanged %q", got, drifted)
	}
	if got := tr.Trim("Sombra hello"); got != "hello" {
		t.Errorf("Trim exact head with threshold 0.99: got %q, want %q", got, "hello")
	}
}

func TestSpokenPhrase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   string
		want string
	}{
		{"Hey-Sombra_en_linux_v3_0_0", "hey sombra"},
		{"hey_ascolta_de_windows", "hey ascolta"},
		{"computer", "computer"},
		{"porcupine_mac", "porcupine"},
		{"grasshopper_raspberry-pi", "grasshopper"},
		{"Hey Ascolta", "hey ascolta"},
		// A lone meta-looking token is kept rather than erased.
		{"en", "en"},
	}

	for _, tc := range tests {
		if got := transcript.SpokenPhrase(tc.id); got != tc.want {
			t.Errorf("SpokenPhrase(%q): got %q, want %q", tc.id, got, tc.want)
		}
	}
}
