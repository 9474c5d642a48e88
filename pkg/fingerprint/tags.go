package fingerprint

import "strings"

// Emotion is a flag set with one bit per emotion category.
type Emotion uint8

const (
	Joy Emotion = 1 << iota
	Sadness
	Anger
	Fear
	Surprise
	Disgust
	Trust
	Anticipation
)

// EmotionCount is the number of emotion categories (one per affective bit).
const EmotionCount = 8

var emotionNames = [EmotionCount]string{
	"joy", "sadness", "anger", "fear", "surprise", "disgust", "trust", "anticipation",
}

// emotionAliases maps names accepted at ingestion to their flag.
var emotionAliases = map[string]Emotion{
	"joy": Joy, "happy": Joy, "happiness": Joy, "喜": Joy, "快乐": Joy, "开心": Joy, "高兴": Joy,
	"sadness": Sadness, "sad": Sadness, "悲": Sadness, "悲伤": Sadness, "难过": Sadness, "伤心": Sadness,
	"anger": Anger, "angry": Anger, "怒": Anger, "愤怒": Anger, "生气": Anger,
	"fear": Fear, "afraid": Fear, "惧": Fear, "恐惧": Fear, "害怕": Fear,
	"surprise": Surprise, "surprised": Surprise, "惊": Surprise, "惊讶": Surprise, "惊喜": Surprise,
	"disgust": Disgust, "disgusted": Disgust, "厌恶": Disgust, "恶心": Disgust,
	"trust": Trust, "love": Trust, "爱": Trust, "信任": Trust, "喜欢": Trust,
	"anticipation": Anticipation, "hope": Anticipation, "期待": Anticipation, "希望": Anticipation,
}

// ParseEmotions folds emotion names into a flag set. Unknown names are
// ignored.
func ParseEmotions(names []string) Emotion {
	var e Emotion
	for _, name := range names {
		e |= emotionAliases[strings.ToLower(strings.TrimSpace(name))]
	}
	return e
}

// Bits returns the indices (0-7) of the set flags in ascending order.
func (e Emotion) Bits() []int {
	var out []int
	for i := 0; i < EmotionCount; i++ {
		if e&(1<<i) != 0 {
			out = append(out, i)
		}
	}
	return out
}

// Names returns the canonical names of the set flags.
func (e Emotion) Names() []string {
	var out []string
	for _, i := range e.Bits() {
		out = append(out, emotionNames[i])
	}
	return out
}

// TypeTag is a coarse category stored in the top byte of a fingerprint.
type TypeTag uint8

const (
	TypeUnknown TypeTag = iota
	TypePerson
	TypeTech
	TypeEvent
	TypeLocation
	TypeObject
	TypeConcept
	TypeOrganization
)

var typeNames = map[TypeTag]string{
	TypeUnknown:      "unknown",
	TypePerson:       "person",
	TypeTech:         "tech",
	TypeEvent:        "event",
	TypeLocation:     "location",
	TypeObject:       "object",
	TypeConcept:      "concept",
	TypeOrganization: "organization",
}

// String returns the canonical name of the tag.
func (t TypeTag) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseType maps a type name to its tag. Unknown names map to TypeUnknown.
func ParseType(name string) TypeTag {
	name = strings.ToLower(strings.TrimSpace(name))
	for tag, n := range typeNames {
		if n == name {
			return tag
		}
	}
	switch name {
	case "character", "人物", "角色":
		return TypePerson
	case "place", "地点":
		return TypeLocation
	case "org", "组织":
		return TypeOrganization
	}
	return TypeUnknown
}
