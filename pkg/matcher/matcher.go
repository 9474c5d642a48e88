// Package matcher implements an Aho-Corasick automaton for finding every
// vocabulary keyword that occurs in a text in a single pass.
package matcher

import "sort"

// Pattern is a vocabulary entry: the text to find and the id it reports.
type Pattern struct {
	Text string
	ID   int64
}

// Match is one occurrence of a pattern. Start and End are byte offsets into
// the searched text, End exclusive.
type Match struct {
	Pattern string
	ID      int64
	Start   int
	End     int
}

type state struct {
	next map[byte]int32
	fail int32
	// out holds indices into Automaton.patterns: own terminals first, then
	// the outputs inherited through the fail link.
	out []int32
}

// Automaton is immutable once built and safe for concurrent Search calls.
type Automaton struct {
	patterns []Pattern
	states   []state
}

// New builds an automaton over patterns. Empty patterns are skipped; an
// empty vocabulary is legal and matches nothing.
func New(patterns []Pattern) *Automaton {
	a := &Automaton{
		states: []state{{next: make(map[byte]int32)}},
	}
	for _, p := range patterns {
		if p.Text == "" {
			continue
		}
		a.insert(p)
	}
	a.link()
	return a
}

func (a *Automaton) insert(p Pattern) {
	cur := int32(0)
	for i := 0; i < len(p.Text); i++ {
		c := p.Text[i]
		nxt, ok := a.states[cur].next[c]
		if !ok {
			nxt = int32(len(a.states))
			a.states = append(a.states, state{next: make(map[byte]int32)})
			a.states[cur].next[c] = nxt
		}
		cur = nxt
	}
	a.states[cur].out = append(a.states[cur].out, int32(len(a.patterns)))
	a.patterns = append(a.patterns, p)
}

// link computes fail links breadth-first and merges each state's output set
// with the output set of its fail state.
func (a *Automaton) link() {
	queue := make([]int32, 0, len(a.states))
	for _, c := range sortedKeys(a.states[0].next) {
		child := a.states[0].next[c]
		a.states[child].fail = 0
		queue = append(queue, child)
	}

	for head := 0; head < len(queue); head++ {
		cur := queue[head]
		for _, c := range sortedKeys(a.states[cur].next) {
			child := a.states[cur].next[c]
			f := a.states[cur].fail
			for {
				if nxt, ok := a.states[f].next[c]; ok && nxt != child {
					a.states[child].fail = nxt
					break
				}
				if f == 0 {
					a.states[child].fail = 0
					break
				}
				f = a.states[f].fail
			}
			// fail state is shallower, so its outputs are already final
			if inherited := a.states[a.states[child].fail].out; len(inherited) > 0 {
				a.states[child].out = append(a.states[child].out, inherited...)
			}
			queue = append(queue, child)
		}
	}
}

func sortedKeys(m map[byte]int32) []byte {
	keys := make([]byte, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Search returns every occurrence of every pattern in text, overlaps
// included, ordered by end position. At a single end position longer
// patterns come first.
func (a *Automaton) Search(text string) []Match {
	if a == nil || len(a.patterns) == 0 {
		return nil
	}

	var matches []Match
	cur := int32(0)
	for i := 0; i < len(text); i++ {
		c := text[i]
		for {
			if nxt, ok := a.states[cur].next[c]; ok {
				cur = nxt
				break
			}
			if cur == 0 {
				break
			}
			cur = a.states[cur].fail
		}
		for _, idx := range a.states[cur].out {
			p := a.patterns[idx]
			matches = append(matches, Match{
				Pattern: p.Text,
				ID:      p.ID,
				Start:   i + 1 - len(p.Text),
				End:     i + 1,
			})
		}
	}
	return matches
}

// MatchedIDs returns the distinct ids matched in text in first-seen order.
func (a *Automaton) MatchedIDs(text string) []int64 {
	matches := a.Search(text)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(matches))
	ids := make([]int64, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		ids = append(ids, m.ID)
	}
	return ids
}

// Len returns the number of patterns in the automaton.
func (a *Automaton) Len() int {
	if a == nil {
		return 0
	}
	return len(a.patterns)
}

// States returns the number of trie states, root included.
func (a *Automaton) States() int {
	if a == nil {
		return 0
	}
	return len(a.states)
}
