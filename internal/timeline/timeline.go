package timeline

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"podcast-player/internal/models"
)

// Kind tags the record an entry was built from.
type Kind string

const (
	KindIntro      Kind = "intro"
	KindClip       Kind = "clip"
	KindTransition Kind = "transition"
)

// ErrInvalidDuration is returned when a record has no usable duration.
var ErrInvalidDuration = errors.New("invalid duration")

// Entry is one playback unit positioned on the episode timeline.
type Entry struct {
	Kind        Kind      `json:"type"`
	ID          models.ID `json:"id"`
	Index       int       `json:"index"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Duration    float64   `json:"length"`
	StartTime   float64   `json:"start_time"`
	EndTime     float64   `json:"end_time"`
}

// Timeline is an ordered, contiguous sequence of entries.
type Timeline struct {
	Entries []Entry `json:"entries"`
	// Unpaired counts clips or transitions that had no positional partner.
	Unpaired int `json:"unpaired,omitempty"`
}

// Build interleaves the intro, clips and transitions of an episode and
// annotates each entry with cumulative start and end times.
//
// The intro, when present, comes first. Clips and transitions are then paired
// by position after ordering each set by Index: clip i is followed by
// transition i. Entries without a partner are still appended.
func Build(d models.Details) (Timeline, error) {
	clips := make([]models.Clip, len(d.Clips))
	copy(clips, d.Clips)
	sort.SliceStable(clips, func(i, j int) bool { return clips[i].Index < clips[j].Index })

	transitions := make([]models.Transition, len(d.Transitions))
	copy(transitions, d.Transitions)
	sort.SliceStable(transitions, func(i, j int) bool { return transitions[i].Index < transitions[j].Index })

	n := len(clips) + len(transitions)
	if d.Intro != nil {
		n++
	}
	entries := make([]Entry, 0, n)

	if d.Intro != nil {
		dur, err := checkDuration(KindIntro, d.Intro.ID, d.Intro.Duration)
		if err != nil {
			return Timeline{}, err
		}
		entries = append(entries, Entry{
			Kind:     KindIntro,
			ID:       d.Intro.ID,
			Title:    d.Intro.Title,
			Duration: dur,
		})
	}

	pairs := len(clips)
	if len(transitions) > pairs {
		pairs = len(transitions)
	}
	for i := 0; i < pairs; i++ {
		if i < len(clips) {
			c := clips[i]
			dur, err := checkDuration(KindClip, c.ID, c.Duration)
			if err != nil {
				return Timeline{}, err
			}
			entries = append(entries, Entry{
				Kind:        KindClip,
				ID:          c.ID,
				Index:       c.Index,
				Title:       c.Title,
				Description: c.Description,
				Duration:    dur,
			})
		}
		if i < len(transitions) {
			tr := transitions[i]
			dur, err := checkDuration(KindTransition, tr.ID, tr.Duration)
			if err != nil {
				return Timeline{}, err
			}
			entries = append(entries, Entry{
				Kind:     KindTransition,
				ID:       tr.ID,
				Index:    tr.Index,
				Title:    tr.Title,
				Duration: dur,
			})
		}
	}

	annotate(entries)

	return Timeline{Entries: entries, Unpaired: unpaired(len(clips), len(transitions))}, nil
}

// annotate assigns start and end times in a single cumulative pass.
func annotate(entries []Entry) {
	var cursor float64
	for i := range entries {
		entries[i].StartTime = cursor
		cursor += entries[i].Duration
		entries[i].EndTime = cursor
	}
}

// unpaired reports how far the clip and transition counts are from the
// expected shape of one transition between each pair of clips.
func unpaired(clips, transitions int) int {
	switch {
	case clips == 0:
		return transitions
	case transitions == clips || transitions == clips-1:
		return 0
	case transitions > clips:
		return transitions - clips
	default:
		return clips - 1 - transitions
	}
}

func checkDuration(kind Kind, id models.ID, d *float64) (float64, error) {
	if d == nil {
		return 0, fmt.Errorf("%s %s: %w: missing", kind, id, ErrInvalidDuration)
	}
	v := *d
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("%s %s: %w: %v", kind, id, ErrInvalidDuration, v)
	}
	return v, nil
}

// Len returns the number of entries.
func (t Timeline) Len() int {
	return len(t.Entries)
}

// Total returns the end time of the final entry, which equals the sum of all
// entry durations.
func (t Timeline) Total() float64 {
	if len(t.Entries) == 0 {
		return 0
	}
	return t.Entries[len(t.Entries)-1].EndTime
}

// Entry returns the entry at index i.
func (t Timeline) Entry(i int) (Entry, bool) {
	if i < 0 || i >= len(t.Entries) {
		return Entry{}, false
	}
	return t.Entries[i], true
}

// Resolve returns the index of the entry active at position seconds: the
// first entry whose end time is strictly greater than position. A position on
// a boundary therefore belongs to the later entry. Positions at or past the
// total duration match nothing.
func (t Timeline) Resolve(position float64) (int, bool) {
	if math.IsNaN(position) {
		return 0, false
	}
	for i := range t.Entries {
		if position < t.Entries[i].EndTime {
			return i, true
		}
	}
	return 0, false
}
