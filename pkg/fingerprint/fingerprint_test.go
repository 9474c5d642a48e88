package fingerprint

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPack_FieldAccessors(t *testing.T) {
	fp := Pack(0xDEADBEEF, 0xBEEF, Joy|Fear, TypePerson)

	assert.Equal(t, uint32(0xDEADBEEF), fp.Semantic())
	assert.Equal(t, uint16(0xBEEF), fp.SpatioTemporal())
	assert.Equal(t, Joy|Fear, fp.Affective())
	assert.Equal(t, TypePerson, fp.Type())
	assert.Equal(t, uint64(0x0109_BEEF_DEAD_BEEF), uint64(fp))
}

func TestMasks_CoverAllBitsOnce(t *testing.T) {
	assert.Equal(t, FullMask, SemanticMask|SpatioTemporalMask|AffectiveMask|TypeMask)
	assert.Zero(t, SemanticMask&SpatioTemporalMask)
	assert.Zero(t, SpatioTemporalMask&AffectiveMask)
	assert.Zero(t, AffectiveMask&TypeMask)
}

func TestCompose_SpatioTemporalAbsent(t *testing.T) {
	fp := Compose("some text", 0, "", 0, TypeUnknown)
	assert.Zero(t, fp.SpatioTemporal())

	fp = Compose("some text", 1704067200, "", 0, TypeUnknown)
	assert.NotZero(t, fp.SpatioTemporal())

	fp = Compose("some text", 0, "上海", 0, TypeUnknown)
	assert.NotZero(t, fp.SpatioTemporal())
}

func TestCompose_SameContextSameSpatioTemporal(t *testing.T) {
	a := Compose("开会", 1704067200, "上海", 0, 0)
	b := Compose("完全不同的文本", 1704067200, "上海", Joy, TypeEvent)
	assert.Equal(t, a.SpatioTemporal(), b.SpatioTemporal())
}

func TestSemanticHash_OrderAndCaseInsensitive(t *testing.T) {
	a := SemanticHash("Quick brown FOX")
	b := SemanticHash("fox, quick... brown!")
	assert.Equal(t, a, b)
	assert.Zero(t, SemanticHash("1234 !!"))
}

func TestSemanticHash_SimilarTextsAreCloser(t *testing.T) {
	base := "the committee met in the spring to review the annual budget and hiring plan"
	near := "the committee met in the spring to review the annual budget and travel plan"
	far := "蓝色的海洋里生活着许多奇妙的鱼类和珊瑚"

	fb := Pack(SemanticHash(base), 0, 0, 0)
	fn := Pack(SemanticHash(near), 0, 0, 0)
	ff := Pack(SemanticHash(far), 0, 0, 0)

	assert.Greater(t, Similarity(fb, fn, SemanticMask), Similarity(fb, ff, SemanticMask))
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"hello", "上", "海", "world"}, Tokens("Hello上海, World 42"))
	assert.Empty(t, Tokens(""))
}

func TestSimilarity_Symmetry(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	masks := []uint64{FullMask, SemanticMask, SpatioTemporalMask, AffectiveMask, TypeMask}
	for i := 0; i < 500; i++ {
		a := Fingerprint(r.Uint64())
		b := Fingerprint(r.Uint64())
		mask := masks[i%len(masks)]
		if i%7 == 0 {
			mask = r.Uint64()
		}
		require.Equal(t, Similarity(a, b, mask), Similarity(b, a, mask))
		if mask != 0 {
			require.Equal(t, 1.0, Similarity(a, a, mask))
		}
		s := Similarity(a, b, mask)
		require.GreaterOrEqual(t, s, 0.0)
		require.LessOrEqual(t, s, 1.0)
	}
}

func TestSimilarity_Values(t *testing.T) {
	a := Pack(0, 0, 0, TypePerson)
	b := Pack(0, 0, 0, TypeTech)
	// person=0b001, tech=0b010: two of eight type bits differ
	assert.InDelta(t, 0.75, Similarity(a, b, TypeMask), 1e-12)
	assert.Equal(t, 1.0, Similarity(a, b, SemanticMask))
	assert.Equal(t, 1.0, Similarity(a, b, 0))
	assert.Equal(t, 0.0, Similarity(0, Fingerprint(FullMask), FullMask))
}

func TestParseEmotions(t *testing.T) {
	assert.Equal(t, Joy|Anger, ParseEmotions([]string{"Joy", "愤怒", "unknown"}))
	assert.Zero(t, ParseEmotions(nil))
	assert.Equal(t, []int{0, 2}, (Joy | Anger).Bits())
	assert.Equal(t, []string{"joy", "anger"}, (Joy | Anger).Names())
	assert.Empty(t, Emotion(0).Names())
}

func TestParseType(t *testing.T) {
	assert.Equal(t, TypePerson, ParseType("Person"))
	assert.Equal(t, TypePerson, ParseType("人物"))
	assert.Equal(t, TypeLocation, ParseType("place"))
	assert.Equal(t, TypeUnknown, ParseType("spaceship"))
	assert.Equal(t, "tech", TypeTech.String())
	assert.Equal(t, "unknown", TypeTag(200).String())
}
