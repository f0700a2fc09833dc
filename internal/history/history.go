// Package history keeps a bounded log of autonomous decisions.
package history

import (
	"errors"
	"time"

	"github.com/nidhogg/nuka-drive/internal/activity"
	"github.com/nidhogg/nuka-drive/internal/conflict"
	"github.com/nidhogg/nuka-drive/internal/temporal"
	"github.com/nidhogg/nuka-drive/internal/traits"
)

// Capacity is the number of records retained.
const Capacity = 20

var (
	ErrRecordNotFound   = errors.New("choice record not found")
	ErrAlreadyAnnotated = errors.New("choice record already annotated")
)

// Annotation is the learning note attached by feedback.
type Annotation struct {
	Outcome string                   `json:"outcome"`
	Reason  string                   `json:"reason,omitempty"`
	Deltas  map[traits.Field]float64 `json:"deltas"`
	At      time.Time                `json:"at"`
}

// Record is a single decision. Only Annotation may be written after append.
type Record struct {
	ID            string             `json:"id"`
	Timestamp     time.Time          `json:"timestamp"`
	Kind          activity.Kind      `json:"kind"`
	Chosen        bool               `json:"chosen"`
	Probability   float64            `json:"probability"`
	DesireScore   float64            `json:"desire_score"`
	Factors       map[string]float64 `json:"factors"`
	TraitSnapshot traits.Vector      `json:"trait_snapshot"`
	DominantVoice *conflict.Voice    `json:"dominant_voice,omitempty"`
	Temporal      temporal.Context   `json:"temporal_context"`
	Annotation    *Annotation        `json:"learning_annotation,omitempty"`
}

// History is a FIFO log of the most recent records. Not safe for concurrent
// use; the engine serialises access.
type History struct {
	records []Record
	limit   int
}

// New creates an empty history with the default capacity.
func New() *History {
	return &History{limit: Capacity}
}

// FromRecords rebuilds a history, keeping only the newest Capacity entries.
func FromRecords(rs []Record) *History {
	h := New()
	for _, r := range rs {
		h.Append(r)
	}
	return h
}

// Append stores r and evicts the oldest records beyond capacity.
func (h *History) Append(r Record) {
	h.records = append(h.records, clone(r))
	if over := len(h.records) - h.limit; over > 0 {
		kept := make([]Record, h.limit)
		copy(kept, h.records[over:])
		h.records = kept
	}
}

// Len returns the number of stored records.
func (h *History) Len() int { return len(h.records) }

// LatestUnannotated returns a copy of the most recent record for kind that
// has no annotation yet, preferring records whose Chosen flag equals chosen.
func (h *History) LatestUnannotated(kind activity.Kind, chosen bool) (Record, bool) {
	fallback := -1
	for i := len(h.records) - 1; i >= 0; i-- {
		r := h.records[i]
		if r.Kind != kind || r.Annotation != nil {
			continue
		}
		if r.Chosen == chosen {
			return clone(r), true
		}
		if fallback < 0 {
			fallback = i
		}
	}
	if fallback < 0 {
		return Record{}, false
	}
	return clone(h.records[fallback]), true
}

// Get returns a copy of record id.
func (h *History) Get(id string) (Record, bool) {
	for i := len(h.records) - 1; i >= 0; i-- {
		if h.records[i].ID == id {
			return clone(h.records[i]), true
		}
	}
	return Record{}, false
}

// Recent returns copies of up to n newest records, oldest first.
func (h *History) Recent(n int) []Record {
	if n <= 0 {
		return nil
	}
	start := len(h.records) - n
	if start < 0 {
		start = 0
	}
	out := make([]Record, 0, len(h.records)-start)
	for _, r := range h.records[start:] {
		out = append(out, clone(r))
	}
	return out
}

// Annotate writes the learning annotation of record id. It can be written once.
func (h *History) Annotate(id string, a Annotation) error {
	for i := range h.records {
		if h.records[i].ID != id {
			continue
		}
		if h.records[i].Annotation != nil {
			return ErrAlreadyAnnotated
		}
		cp := a
		cp.Deltas = copyDeltas(a.Deltas)
		h.records[i].Annotation = &cp
		return nil
	}
	return ErrRecordNotFound
}

func clone(r Record) Record {
	if r.Factors != nil {
		f := make(map[string]float64, len(r.Factors))
		for k, v := range r.Factors {
			f[k] = v
		}
		r.Factors = f
	}
	if r.DominantVoice != nil {
		v := *r.DominantVoice
		v.Preferred = append([]activity.Kind(nil), v.Preferred...)
		r.DominantVoice = &v
	}
	if r.Annotation != nil {
		a := *r.Annotation
		a.Deltas = copyDeltas(a.Deltas)
		r.Annotation = &a
	}
	return r
}

func copyDeltas(d map[traits.Field]float64) map[traits.Field]float64 {
	if d == nil {
		return nil
	}
	out := make(map[traits.Field]float64, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
