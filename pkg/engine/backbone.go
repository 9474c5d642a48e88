package engine

import "sort"

// BuildTemporalBackbone orders events with a known timestamp and links
// neighbours through Prev and Next. Equal timestamps keep insertion order.
// Retrieval does not use the backbone.
func (e *Engine) BuildTemporalBackbone() {
	timeline := make([]NodeID, 0, len(e.order))
	for _, id := range e.order {
		n := e.nodes[id]
		if n.Kind == KindEvent && n.Timestamp > 0 {
			timeline = append(timeline, id)
		}
	}
	sort.SliceStable(timeline, func(i, j int) bool {
		return e.nodes[timeline[i]].Timestamp < e.nodes[timeline[j]].Timestamp
	})

	e.prev = make(map[NodeID]NodeID, len(timeline))
	e.next = make(map[NodeID]NodeID, len(timeline))
	for i := 1; i < len(timeline); i++ {
		e.prev[timeline[i]] = timeline[i-1]
		e.next[timeline[i-1]] = timeline[i]
	}
	e.timeline = timeline
}

// Prev returns the event immediately before id on the timeline.
func (e *Engine) Prev(id NodeID) (NodeID, bool) {
	p, ok := e.prev[id]
	return p, ok
}

// Next returns the event immediately after id on the timeline.
func (e *Engine) Next(id NodeID) (NodeID, bool) {
	n, ok := e.next[id]
	return n, ok
}

// Timeline returns the events of the last backbone build in time order.
func (e *Engine) Timeline() []NodeID {
	out := make([]NodeID, len(e.timeline))
	copy(out, e.timeline)
	return out
}
