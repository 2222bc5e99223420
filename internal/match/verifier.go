// Package match decides whether a spoken or typed transcript names a given
// character.
//
// Verification runs a fixed cascade of tiers over the normalised inputs and
// stops at the first tier that accepts:
//
//  1. exact equality (confidence 1.0)
//  2. the target contained in the transcript (0.95)
//  3. for multi-word targets, a target word of four or more letters spoken as
//     a whole word (0.85)
//  4. whole-string edit-distance similarity at or above the threshold
//     (confidence = similarity)
//  5. any single transcript word similar enough to the full target
//     (confidence = similarity x 0.9)
//  6. optionally, a phonetic tier (see [WithPhonetic])
//
// When nothing accepts, the verdict is negative and carries the whole-string
// similarity as its confidence. Verification never fails.
package match

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// DefaultThreshold is the similarity threshold used by [Verify].
const DefaultThreshold = 0.7

// Confidence values of the fixed tiers.
const (
	ExactConfidence       = 1.0
	ContainmentConfidence = 0.95
	KeywordConfidence     = 0.85
	wordPenalty           = 0.9
	phoneticPenalty       = 0.8
	phoneticMinJW         = 0.85
	keywordMinLen         = 4
)

// Tier identifies which step of the cascade decided a verdict.
type Tier int

const (
	TierNone Tier = iota
	TierExact
	TierContainment
	TierKeyword
	TierEditDistance
	TierWordEditDistance
	TierPhonetic
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierContainment:
		return "containment"
	case TierKeyword:
		return "keyword"
	case TierEditDistance:
		return "edit_distance"
	case TierWordEditDistance:
		return "word_edit_distance"
	case TierPhonetic:
		return "phonetic"
	default:
		return "none"
	}
}

// Verdict is the outcome of a verification.
type Verdict struct {
	IsMatch    bool
	Confidence float64
	Tier       Tier
}

// Option is a functional option for configuring a [Verifier].
type Option func(*Verifier)

// WithThreshold sets the minimum similarity accepted by the edit-distance
// tiers. Default: 0.7.
func WithThreshold(threshold float64) Option {
	return func(v *Verifier) {
		v.threshold = threshold
	}
}

// WithPhonetic enables the phonetic tier, which accepts transcripts that
// sound like a word of the target (Double Metaphone code overlap) and are
// close in spelling (Jaro-Winkler >= 0.85). Confidence is the Jaro-Winkler
// score x 0.8. Disabled by default.
func WithPhonetic(enabled bool) Option {
	return func(v *Verifier) {
		v.phonetic = enabled
	}
}

// Verifier runs the verification cascade. It is immutable after construction
// and safe for concurrent use.
type Verifier struct {
	threshold float64
	phonetic  bool
	tiers     []tierFunc
}

// New returns a Verifier configured with the supplied options.
func New(opts ...Option) *Verifier {
	v := &Verifier{threshold: DefaultThreshold}
	for _, o := range opts {
		o(v)
	}
	v.tiers = []tierFunc{exactTier, containmentTier, keywordTier, editDistanceTier, wordEditDistanceTier}
	if v.phonetic {
		v.tiers = append(v.tiers, phoneticTier)
	}
	return v
}

// Threshold returns the configured similarity threshold.
func (v *Verifier) Threshold() float64 { return v.threshold }

// Phonetic reports whether the phonetic tier is enabled.
func (v *Verifier) Phonetic() bool { return v.phonetic }

var defaultVerifier = New()

// Verify checks transcript against target with the default threshold.
func Verify(transcript, target string) Verdict {
	return defaultVerifier.Verify(transcript, target)
}

// VerifyWithThreshold checks transcript against target with a custom
// threshold.
func VerifyWithThreshold(transcript, target string, threshold float64) Verdict {
	return New(WithThreshold(threshold)).Verify(transcript, target)
}

// Verify checks whether transcript names target.
func (v *Verifier) Verify(transcript, target string) Verdict {
	in := &input{
		transcript: Normalize(transcript),
		target:     Normalize(target),
		threshold:  v.threshold,
	}
	if in.transcript == "" || in.target == "" {
		return Verdict{}
	}
	for _, tier := range v.tiers {
		if verdict, ok := tier(in); ok {
			return verdict
		}
	}
	return Verdict{Confidence: in.similarity()}
}

// ── tiers ────────────────────────────────────────────────────────────────────

// tierFunc inspects the normalised input and either decides the verdict
// (ok == true) or defers to the next tier.
type tierFunc func(in *input) (Verdict, bool)

type input struct {
	transcript string
	target     string
	threshold  float64

	transcriptWords []string
	targetWords     []string
	sim             float64
	simDone         bool
}

func (in *input) similarity() float64 {
	if !in.simDone {
		in.sim = Similarity(in.transcript, in.target)
		in.simDone = true
	}
	return in.sim
}

func (in *input) words() (transcript, target []string) {
	if in.transcriptWords == nil {
		in.transcriptWords = words(in.transcript)
		in.targetWords = words(in.target)
	}
	return in.transcriptWords, in.targetWords
}

func exactTier(in *input) (Verdict, bool) {
	if in.transcript == in.target {
		return Verdict{IsMatch: true, Confidence: ExactConfidence, Tier: TierExact}, true
	}
	return Verdict{}, false
}

func containmentTier(in *input) (Verdict, bool) {
	if strings.Contains(in.transcript, in.target) {
		return Verdict{IsMatch: true, Confidence: ContainmentConfidence, Tier: TierContainment}, true
	}
	return Verdict{}, false
}

func keywordTier(in *input) (Verdict, bool) {
	tw, nw := in.words()
	if len(nw) < 2 {
		return Verdict{}, false
	}
	for _, w := range nw {
		if len(w) < keywordMinLen {
			continue
		}
		for _, t := range tw {
			if t == w {
				return Verdict{IsMatch: true, Confidence: KeywordConfidence, Tier: TierKeyword}, true
			}
		}
	}
	return Verdict{}, false
}

func editDistanceTier(in *input) (Verdict, bool) {
	if s := in.similarity(); s >= in.threshold {
		return Verdict{IsMatch: true, Confidence: s, Tier: TierEditDistance}, true
	}
	return Verdict{}, false
}

func wordEditDistanceTier(in *input) (Verdict, bool) {
	tw, _ := in.words()
	for _, w := range tw {
		if s := Similarity(w, in.target); s >= in.threshold {
			return Verdict{IsMatch: true, Confidence: s * wordPenalty, Tier: TierWordEditDistance}, true
		}
	}
	return Verdict{}, false
}

func phoneticTier(in *input) (Verdict, bool) {
	tw, nw := in.words()
	if !codesOverlap(codesForWords(tw), codesForWords(nw)) {
		return Verdict{}, false
	}
	best := matchr.JaroWinkler(in.transcript, in.target, false)
	for _, t := range tw {
		for _, n := range nw {
			if t == "" || n == "" {
				continue
			}
			if s := matchr.JaroWinkler(t, n, false); s > best {
				best = s
			}
		}
	}
	if best >= phoneticMinJW {
		return Verdict{IsMatch: true, Confidence: best * phoneticPenalty, Tier: TierPhonetic}, true
	}
	return Verdict{}, false
}
