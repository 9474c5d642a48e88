// Package fingerprint computes the 64-bit composite signature PEDSA uses to
// compare entries and queries without an embedding model.
//
// Bit layout (fixed):
//
//	bits  0-31  semantic SimHash of the text
//	bits 32-47  spatio-temporal hash of "{timestamp}|{location}"
//	bits 48-55  affective flag set (one bit per emotion)
//	bits 56-63  coarse type tag
package fingerprint

import (
	"math/bits"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint is a packed composite signature. Use the accessors rather than
// masking by hand.
type Fingerprint uint64

// Region masks for Similarity.
const (
	SemanticMask       uint64 = 0x0000_0000_FFFF_FFFF
	SpatioTemporalMask uint64 = 0x0000_FFFF_0000_0000
	AffectiveMask      uint64 = 0x00FF_0000_0000_0000
	TypeMask           uint64 = 0xFF00_0000_0000_0000
	FullMask           uint64 = 0xFFFF_FFFF_FFFF_FFFF
)

const (
	spatioTemporalShift = 32
	affectiveShift      = 48
	typeShift           = 56
	semanticBits        = 32
)

// Semantic returns the 32-bit SimHash field.
func (f Fingerprint) Semantic() uint32 {
	return uint32(uint64(f) & SemanticMask)
}

// SpatioTemporal returns the 16-bit spatio-temporal field. Zero means the
// fingerprint carries no time or place.
func (f Fingerprint) SpatioTemporal() uint16 {
	return uint16((uint64(f) & SpatioTemporalMask) >> spatioTemporalShift)
}

// Affective returns the emotion flag set.
func (f Fingerprint) Affective() Emotion {
	return Emotion((uint64(f) & AffectiveMask) >> affectiveShift)
}

// Type returns the coarse type tag.
func (f Fingerprint) Type() TypeTag {
	return TypeTag((uint64(f) & TypeMask) >> typeShift)
}

// Pack assembles a fingerprint from its four fields.
func Pack(semantic uint32, spatioTemporal uint16, emotions Emotion, tag TypeTag) Fingerprint {
	return Fingerprint(uint64(semantic) |
		uint64(spatioTemporal)<<spatioTemporalShift |
		uint64(emotions)<<affectiveShift |
		uint64(tag)<<typeShift)
}

// Compose computes the fingerprint of a piece of text and its context.
// timestamp is seconds since the epoch, 0 meaning unknown.
func Compose(text string, timestamp int64, location string, emotions Emotion, tag TypeTag) Fingerprint {
	return Pack(SemanticHash(text), SpatioTemporalHash(timestamp, location), emotions, tag)
}

// SemanticHash is a 32-bit SimHash over the tokens of text. Similar token
// multisets produce hashes with a small Hamming distance.
func SemanticHash(text string) uint32 {
	var acc [semanticBits]int
	n := 0
	forEachToken(text, func(tok string) {
		h := xxhash.Sum64String(tok)
		for i := 0; i < semanticBits; i++ {
			if (h>>i)&1 == 1 {
				acc[i]++
			} else {
				acc[i]--
			}
		}
		n++
	})
	if n == 0 {
		return 0
	}

	var out uint32
	for i := 0; i < semanticBits; i++ {
		if acc[i] > 0 {
			out |= 1 << i
		}
	}
	return out
}

// SpatioTemporalHash hashes "{timestamp}|{location}" down to 16 bits. It is 0
// only when both inputs are absent.
func SpatioTemporalHash(timestamp int64, location string) uint16 {
	if timestamp == 0 && location == "" {
		return 0
	}
	h := uint16(xxhash.Sum64String(strconv.FormatInt(timestamp, 10) + "|" + location))
	if h == 0 {
		// zero is reserved for "absent"
		h = 1
	}
	return h
}

// Similarity returns 1 - popcount((a^b)&mask)/popcount(mask). The result is
// symmetric in a and b, and 1 when a == b. An empty mask compares nothing
// and yields 1.
func Similarity(a, b Fingerprint, mask uint64) float64 {
	width := bits.OnesCount64(mask)
	if width == 0 {
		return 1
	}
	diff := bits.OnesCount64((uint64(a) ^ uint64(b)) & mask)
	return 1 - float64(diff)/float64(width)
}

// Tokens returns the tokens used for the semantic hash: lowercase maximal
// runs of Latin letters and every CJK ideograph on its own.
func Tokens(text string) []string {
	var out []string
	forEachToken(text, func(tok string) { out = append(out, tok) })
	return out
}

func forEachToken(text string, emit func(string)) {
	var run strings.Builder
	flush := func() {
		if run.Len() > 0 {
			emit(run.String())
			run.Reset()
		}
	}
	for _, r := range text {
		switch {
		case isLatinLetter(r):
			run.WriteRune(unicode.ToLower(r))
		case unicode.Is(unicode.Han, r):
			flush()
			emit(string(r))
		default:
			flush()
		}
	}
	flush()
}

func isLatinLetter(r rune) bool {
	return unicode.Is(unicode.Latin, r) && unicode.IsLetter(r)
}
