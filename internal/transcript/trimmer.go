// Package transcript post-processes raw speech-to-text output before it is
// handed to the chat backend.
//
// Its single concern is wake-phrase trimming. A session opened by a wake-word
// detection usually captures the spoken phrase itself ("Ascolta, what's on my
// calendar?"), and the STT backend dutifully transcribes it. The [Trimmer]
// removes that leading phrase so the forwarded text reads as the user's
// actual request.
//
// Matching tolerates STT spelling drift. Each head window of the transcript
// is scored in two stages:
//
//  1. Phonetic gate: Double Metaphone codes are computed for the window
//     tokens and for each configured phrase. A window that shares at least
//     one code with a phrase qualifies for the lower phonetic threshold
//     (default 0.70); all other windows must clear the stricter fuzzy
//     threshold (default 0.85).
//
//  2. Jaro-Winkler ranking: the window is compared against the phrase as
//     the full string, and additionally with spaces removed when the window
//     has fewer tokens than the phrase — STT sometimes fuses "hey ascolta"
//     into a single token. The higher score counts.
//
// Window sizes from one token up to the longest phrase are tried and the
// best-scoring qualified window wins, with ties going to the shortest
// window, so "heyascolta open the door" loses one token while
// "hey ascolta open the door" loses two.
//
// A Trimmer is read-only after construction and safe for concurrent use.
package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// headDelimiters are the characters stripped from the remainder after the
// wake phrase has been cut, covering the comma or sentence break the STT
// backend attaches to a vocative ("Ascolta, ...").
const headDelimiters = " \t\n,.!?;:…-"

// Option is a functional option for configuring a [Trimmer].
type Option func(*Trimmer)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// head window that phonetically overlaps a wake phrase. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(t *Trimmer) {
		t.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required for a head
// window with no phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(t *Trimmer) {
		t.fuzzyThreshold = threshold
	}
}

// phrase holds the precomputed comparison forms of one wake phrase.
type phrase struct {
	full      string
	concat    string
	numTokens int
	codes     map[string]struct{}
}

// Trimmer removes a leading wake phrase from transcript text.
type Trimmer struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	phrases           []phrase
	maxTokens         int
}

// NewTrimmer returns a Trimmer for the given spoken wake phrases. Phrases are
// matched case-insensitively; empty and whitespace-only entries are ignored.
// With no usable phrases the Trimmer passes text through unchanged.
func NewTrimmer(phrases []string, opts ...Option) *Trimmer {
	t := &Trimmer{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, raw := range phrases {
		tokens := strings.Fields(strings.ToLower(raw))
		if len(tokens) == 0 {
			continue
		}
		t.phrases = append(t.phrases, phrase{
			full:      strings.Join(tokens, " "),
			concat:    strings.Join(tokens, ""),
			numTokens: len(tokens),
			codes:     codesForTokens(tokens),
		})
		if len(tokens) > t.maxTokens {
			t.maxTokens = len(tokens)
		}
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Trim returns text with a leading wake phrase removed, along with any
// whitespace and sentence punctuation that followed it. The remainder is
// returned exactly as transcribed. When the whole transcript is the wake
// phrase, Trim returns the empty string; when no head window matches, it
// returns text unchanged.
func (t *Trimmer) Trim(text string) string {
	if len(t.phrases) == 0 {
		return text
	}

	// One window beyond the longest phrase absorbs a leading
	// punctuation-only token.
	toks := headTokens(text, t.maxTokens+1)
	if len(toks) == 0 {
		return text
	}

	bestScore := 0.0
	bestEnd := -1

	for n := 1; n <= len(toks); n++ {
		window := normalizedWindow(toks[:n])
		if len(window) == 0 {
			continue
		}
		score, ok := t.scoreWindow(window)
		if ok && score > bestScore {
			bestScore = score
			bestEnd = toks[n-1].end
		}
	}

	if bestEnd < 0 {
		return text
	}
	return strings.TrimLeft(text[bestEnd:], headDelimiters)
}

// scoreWindow returns the best qualifying Jaro-Winkler score of the window
// against any configured phrase, and whether one qualified at all.
func (t *Trimmer) scoreWindow(window []string) (float64, bool) {
	full := strings.Join(window, " ")
	concat := strings.Join(window, "")
	codes := codesForTokens(window)

	var best float64
	matched := false

	for _, p := range t.phrases {
		// longTolerance is false: standard Jaro-Winkler scoring.
		score := matchr.JaroWinkler(full, p.full, false)

		// The space-stripped comparison exists for fused tokens
		// ("heyascolta"), so it only applies when the window carries fewer
		// tokens than the phrase. Applying it to wider windows lets
		// unrelated leading words ride along on the phrase's letters.
		if len(window) < p.numTokens {
			if s := matchr.JaroWinkler(concat, p.concat, false); s > score {
				score = s
			}
		}

		threshold := t.fuzzyThreshold
		if codesOverlap(codes, p.codes) {
			threshold = t.phoneticThreshold
		}
		if score >= threshold && score > best {
			best = score
			matched = true
		}
	}
	return best, matched
}

// headToken is one whitespace-delimited token from the front of the text.
type headToken struct {
	// norm is the token lowercased with outer punctuation stripped. Interior
	// characters such as apostrophes are kept. Empty when the token carried
	// no letters or digits.
	norm string

	// end is the byte offset just past the raw token in the original text.
	end int
}

// headTokens returns up to max leading tokens of text with their end offsets.
func headTokens(text string, max int) []headToken {
	var toks []headToken
	i := 0
	for i < len(text) && len(toks) < max {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}
		start := i
		for i < len(text) {
			r, size := utf8.DecodeRuneInString(text[i:])
			if unicode.IsSpace(r) {
				break
			}
			i += size
		}
		toks = append(toks, headToken{norm: normalizeToken(text[start:i]), end: i})
	}
	return toks
}

// normalizedWindow collects the non-empty normalized tokens of a window.
func normalizedWindow(toks []headToken) []string {
	window := make([]string, 0, len(toks))
	for _, tok := range toks {
		if tok.norm != "" {
			window = append(window, tok.norm)
		}
	}
	return window
}

// normalizeToken lowercases a raw token and strips punctuation from both
// ends, so "Ascolta," compares as "ascolta" and "what's" keeps its
// apostrophe.
func normalizeToken(raw string) string {
	trimmed := strings.TrimFunc(raw, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	return strings.ToLower(trimmed)
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (produced when the word is too short or contains
// no consonants) are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	// Iterate over the smaller set for efficiency.
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
