package engine

import (
	"math"

	"github.com/pedsa/pedsa/pkg/fingerprint"
)

// NodeID identifies a node. Caller-supplied ids are usually positive;
// features the engine creates on its own get negative ids.
type NodeID int64

// Kind distinguishes keyword nodes from knowledge fragments.
type Kind uint8

const (
	KindFeature Kind = iota + 1
	KindEvent
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFeature:
		return "feature"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Node is a feature (keyword) or an event (knowledge fragment).
type Node struct {
	ID          NodeID
	Kind        Kind
	Keyword     string
	Fingerprint fingerprint.Fingerprint

	// Event fields; zero for features.
	Text      string
	Timestamp int64
	Location  string
	Emotions  fingerprint.Emotion
	Type      fingerprint.TypeTag

	// Ref is the caller's payload, handed back untouched in results.
	Ref any
}

// Event is the ingestion record for a knowledge fragment. Zero-valued
// metadata means unknown.
type Event struct {
	ID        NodeID
	Text      string
	Timestamp int64
	Location  string
	Emotions  []string
	Type      fingerprint.TypeTag
	Ref       any
}

// Weight is an edge weight quantized to a 16-bit fraction of [0,1].
type Weight uint16

// MaxWeight is the quantized value of 1.0.
const MaxWeight Weight = math.MaxUint16

// Quantize clamps w to [0,1] and rounds it to the nearest of 65535 steps.
// NaN quantizes to 0.
func Quantize(w float64) Weight {
	switch {
	case math.IsNaN(w), w <= 0:
		return 0
	case w >= 1:
		return MaxWeight
	}
	return Weight(math.Round(w * float64(MaxWeight)))
}

// Float returns the weight as a fraction of 1.
func (w Weight) Float() float64 {
	return float64(w) / float64(MaxWeight)
}
