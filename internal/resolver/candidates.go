package resolver

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// duplicateJWThreshold is the Jaro-Winkler similarity above which two
// phonetically-overlapping candidates are treated as the same song.
const duplicateJWThreshold = 0.90

// NormalizeCandidates cleans up a resolver candidate list for presentation:
// empty titles are dropped, confidences are clamped into [0,1], near-duplicate
// entries (the same song spelled differently across sources) are merged and
// the result is sorted by confidence, best first.
//
// When duplicates merge, the entry with the higher confidence wins and the
// source citations of both are combined.
func NormalizeCandidates(in []Candidate) []Candidate {
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		if strings.TrimSpace(c.Title) == "" {
			continue
		}
		if c.Confidence < 0 {
			c.Confidence = 0
		}
		if c.Confidence > 1 {
			c.Confidence = 1
		}
		merged := false
		for i := range out {
			if sameSong(out[i], c) {
				out[i] = mergeCandidates(out[i], c)
				merged = true
				break
			}
		}
		if !merged {
			out = append(out, c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// sameSong reports whether two candidates identify the same recording. The
// check combines Double Metaphone code overlap (catches spelling variants
// that sound alike) with a Jaro-Winkler similarity floor on the combined
// title+artist strings.
func sameSong(a, b Candidate) bool {
	keyA := candidateKey(a)
	keyB := candidateKey(b)
	if keyA == keyB {
		return true
	}
	if !codesOverlap(phoneticCodes(keyA), phoneticCodes(keyB)) {
		return false
	}
	return matchr.JaroWinkler(keyA, keyB, false) >= duplicateJWThreshold
}

// mergeCandidates combines two entries for the same song.
func mergeCandidates(a, b Candidate) Candidate {
	winner, loser := a, b
	if b.Confidence > a.Confidence {
		winner, loser = b, a
	}
	for _, src := range loser.Sources {
		if !containsString(winner.Sources, src) {
			winner.Sources = append(winner.Sources, src)
		}
	}
	return winner
}

// candidateKey builds the normalised comparison string for a candidate.
func candidateKey(c Candidate) string {
	key := strings.ToLower(strings.TrimSpace(c.Title))
	if artist := strings.ToLower(strings.TrimSpace(c.Artist)); artist != "" {
		key += " " + artist
	}
	return key
}

// phoneticCodes returns the union of Double Metaphone codes over all tokens.
// Empty codes (short or vowel-only words) are excluded.
func phoneticCodes(s string) map[string]struct{} {
	tokens := strings.Fields(s)
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, sec := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if sec != "" {
			codes[sec] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
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

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
