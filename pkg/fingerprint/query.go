package fingerprint

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	cjkDatePattern = regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`)
	isoDatePattern = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	cjkYearPattern = regexp.MustCompile(`(\d{4})年`)
	yearPattern    = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
)

// gazetteer lists the place names recognised in queries. Entries are
// matched case-insensitively and reported in the spelling listed here.
var gazetteer = []string{
	"北京", "上海", "广州", "深圳", "杭州", "南京", "成都", "武汉", "西安", "重庆",
	"天津", "苏州", "香港", "澳门", "台北", "东京", "纽约", "伦敦", "巴黎",
	"Beijing", "Shanghai", "Guangzhou", "Shenzhen", "Hong Kong", "Tokyo",
	"New York", "London", "Paris", "Berlin",
}

type typeCue struct {
	tag   TypeTag
	words []string
}

// typeCues are checked in order; the first cue found decides the tag.
var typeCues = []typeCue{
	{TypePerson, []string{"谁", "他", "她", "老师", "医生", "先生", "女士", "朋友", "同事", "who", "he", "she", "him", "her", "person", "teacher", "doctor", "friend"}},
	{TypeTech, []string{"代码", "程序", "算法", "软件", "系统", "code", "program", "algorithm", "software", "api"}},
	{TypeLocation, []string{"哪里", "哪儿", "地方", "where", "place"}},
	{TypeEvent, []string{"会议", "发生", "活动", "meeting", "happened", "event"}},
	{TypeOrganization, []string{"公司", "组织", "company", "organization"}},
}

// ForQuery derives a composite fingerprint for free-text queries. Time,
// place, emotion and type are guessed from simple lexical cues so a query
// is comparable with ingested entries without a separate NLU step.
func ForQuery(text string) Fingerprint {
	return Compose(text, QueryTimestamp(text), QueryLocation(text), QueryEmotions(text), QueryType(text))
}

// QueryTimestamp returns the Unix time of the first date or year mention in
// text (UTC midnight), or 0.
func QueryTimestamp(text string) int64 {
	if m := cjkDatePattern.FindStringSubmatch(text); m != nil {
		if ts, ok := dateUnix(m[1], m[2], m[3]); ok {
			return ts
		}
	}
	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		if ts, ok := dateUnix(m[1], m[2], m[3]); ok {
			return ts
		}
	}
	if m := cjkYearPattern.FindStringSubmatch(text); m != nil {
		if ts, ok := dateUnix(m[1], "1", "1"); ok {
			return ts
		}
	}
	if m := yearPattern.FindStringSubmatch(text); m != nil {
		if ts, ok := dateUnix(m[1], "1", "1"); ok {
			return ts
		}
	}
	return 0
}

func dateUnix(y, m, d string) (int64, bool) {
	year, err := strconv.Atoi(y)
	if err != nil || year < 1 {
		return 0, false
	}
	month, err := strconv.Atoi(m)
	if err != nil || month < 1 || month > 12 {
		return 0, false
	}
	day, err := strconv.Atoi(d)
	if err != nil || day < 1 || day > 31 {
		return 0, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Unix(), true
}

// QueryLocation returns the gazetteer place mentioned earliest in text, or "".
func QueryLocation(text string) string {
	lower := strings.ToLower(text)
	best, bestPos := "", -1
	for _, place := range gazetteer {
		pos := strings.Index(lower, strings.ToLower(place))
		if pos < 0 {
			continue
		}
		if bestPos < 0 || pos < bestPos {
			best, bestPos = place, pos
		}
	}
	return best
}

// QueryEmotions returns the emotion flags whose keywords occur in text.
// Latin keywords must appear as whole words; CJK keywords as substrings.
func QueryEmotions(text string) Emotion {
	lower := strings.ToLower(text)
	words := wordSet(lower)
	var e Emotion
	for alias, flag := range emotionAliases {
		if isASCII(alias) {
			if _, ok := words[alias]; ok {
				e |= flag
			}
			continue
		}
		if strings.Contains(lower, alias) {
			e |= flag
		}
	}
	return e
}

// QueryType returns the tag of the first matching role or category cue.
func QueryType(text string) TypeTag {
	lower := strings.ToLower(text)
	words := wordSet(lower)
	for _, cue := range typeCues {
		for _, w := range cue.words {
			if isASCII(w) {
				if _, ok := words[w]; ok {
					return cue.tag
				}
				continue
			}
			if strings.Contains(lower, w) {
				return cue.tag
			}
		}
	}
	return TypeUnknown
}

func wordSet(lower string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokens(lower) {
		if utf8.RuneCountInString(tok) > 1 || isASCII(tok) {
			set[tok] = struct{}{}
		}
	}
	return set
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
