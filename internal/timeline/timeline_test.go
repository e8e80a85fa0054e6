package timeline

import (
	"errors"
	"math"
	"testing"

	"podcast-player/internal/models"
)

func clip(id string, index int, seconds float64) models.Clip {
	return models.Clip{ID: models.ID(id), Index: index, Title: "clip " + id, Duration: models.Seconds(seconds)}
}

func transition(id string, index int, seconds float64) models.Transition {
	return models.Transition{ID: models.ID(id), Index: index, Duration: models.Seconds(seconds)}
}

func assertContiguous(t *testing.T, tl Timeline) {
	t.Helper()
	var sum float64
	for i, e := range tl.Entries {
		sum += e.Duration
		if e.EndTime != e.StartTime+e.Duration {
			t.Fatalf("entry %d: end %v != start %v + duration %v", i, e.EndTime, e.StartTime, e.Duration)
		}
		if i+1 < len(tl.Entries) && e.EndTime != tl.Entries[i+1].StartTime {
			t.Fatalf("entry %d ends at %v but entry %d starts at %v", i, e.EndTime, i+1, tl.Entries[i+1].StartTime)
		}
	}
	if len(tl.Entries) > 0 && tl.Entries[0].StartTime != 0 {
		t.Fatalf("expected first entry to start at 0, got %v", tl.Entries[0].StartTime)
	}
	if tl.Total() != sum {
		t.Fatalf("expected total %v, got %v", sum, tl.Total())
	}
}

func TestBuildClipsAndTransitions(t *testing.T) {
	tl, err := Build(models.Details{
		Clips:       []models.Clip{clip("c0", 0, 5), clip("c1", 1, 3)},
		Transitions: []models.Transition{transition("t0", 0, 1)},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []struct {
		kind       Kind
		id         models.ID
		start, end float64
	}{
		{KindClip, "c0", 0, 5},
		{KindTransition, "t0", 5, 6},
		{KindClip, "c1", 6, 9},
	}
	if tl.Len() != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), tl.Len())
	}
	for i, w := range want {
		e := tl.Entries[i]
		if e.Kind != w.kind || e.ID != w.id || e.StartTime != w.start || e.EndTime != w.end {
			t.Fatalf("entry %d: expected %s %s (%v-%v), got %s %s (%v-%v)", i, w.kind, w.id, w.start, w.end, e.Kind, e.ID, e.StartTime, e.EndTime)
		}
	}
	if tl.Unpaired != 0 {
		t.Fatalf("expected no unpaired entries, got %d", tl.Unpaired)
	}
	assertContiguous(t, tl)
}

func TestBuildIntroAlwaysFirst(t *testing.T) {
	tl, err := Build(models.Details{
		Intro:       &models.Intro{ID: "i", Duration: models.Seconds(4)},
		Clips:       []models.Clip{clip("c0", 0, 10), clip("c1", 1, 20)},
		Transitions: []models.Transition{transition("t0", 0, 2)},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	first := tl.Entries[0]
	if first.Kind != KindIntro || first.StartTime != 0 || first.EndTime != 4 {
		t.Fatalf("expected intro(0-4) first, got %+v", first)
	}
	if tl.Total() != 36 {
		t.Fatalf("expected total 36, got %v", tl.Total())
	}
	assertContiguous(t, tl)
}

func TestBuildIntroOnly(t *testing.T) {
	tl, err := Build(models.Details{Intro: &models.Intro{ID: "i", Duration: models.Seconds(10)}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tl.Len() != 1 {
		t.Fatalf("expected single entry, got %d", tl.Len())
	}
	e := tl.Entries[0]
	if e.Kind != KindIntro || e.StartTime != 0 || e.EndTime != 10 {
		t.Fatalf("expected intro(0-10), got %+v", e)
	}
}

func TestBuildEmpty(t *testing.T) {
	tl, err := Build(models.Details{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tl.Len() != 0 || tl.Total() != 0 {
		t.Fatalf("expected empty timeline, got %+v", tl)
	}
	if _, ok := tl.Resolve(0); ok {
		t.Fatalf("expected no active entry on empty timeline")
	}
}

func TestBuildOrdersByIndex(t *testing.T) {
	tl, err := Build(models.Details{
		Clips:       []models.Clip{clip("c1", 1, 3), clip("c0", 0, 5)},
		Transitions: []models.Transition{transition("t0", 0, 1)},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := []models.ID{tl.Entries[0].ID, tl.Entries[1].ID, tl.Entries[2].ID}
	if got[0] != "c0" || got[1] != "t0" || got[2] != "c1" {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestBuildKeepsTrailingUnpairedEntries(t *testing.T) {
	tl, err := Build(models.Details{
		Clips: []models.Clip{clip("c0", 0, 5)},
		Transitions: []models.Transition{
			transition("t0", 0, 1),
			transition("t1", 1, 1),
			transition("t2", 2, 1),
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tl.Len() != 4 {
		t.Fatalf("expected 4 entries, got %d", tl.Len())
	}
	if tl.Entries[3].ID != "t2" || tl.Entries[3].StartTime != 7 {
		t.Fatalf("unexpected trailing entry %+v", tl.Entries[3])
	}
	if tl.Unpaired != 2 {
		t.Fatalf("expected 2 unpaired transitions, got %d", tl.Unpaired)
	}
	assertContiguous(t, tl)
}

func TestBuildRejectsInvalidDurations(t *testing.T) {
	cases := map[string]models.Details{
		"missing clip":      {Clips: []models.Clip{{ID: "c0"}}},
		"nan transition":    {Transitions: []models.Transition{{ID: "t0", Duration: models.Seconds(math.NaN())}}},
		"negative intro":    {Intro: &models.Intro{ID: "i", Duration: models.Seconds(-1)}},
		"infinite clip":     {Clips: []models.Clip{{ID: "c0", Duration: models.Seconds(math.Inf(1))}}},
		"later bad element": {Clips: []models.Clip{clip("c0", 0, 1), {ID: "c1", Index: 1}}},
	}
	for name, details := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Build(details)
			if !errors.Is(err, ErrInvalidDuration) {
				t.Fatalf("expected ErrInvalidDuration, got %v", err)
			}
		})
	}
}

func TestBuildDoesNotMutateInput(t *testing.T) {
	clips := []models.Clip{clip("c1", 1, 3), clip("c0", 0, 5)}
	if _, err := Build(models.Details{Clips: clips}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if clips[0].ID != "c1" {
		t.Fatalf("expected caller slice order to be preserved")
	}
}

func TestResolve(t *testing.T) {
	tl, err := Build(models.Details{
		Clips:       []models.Clip{clip("c0", 0, 5), clip("c1", 1, 3)},
		Transitions: []models.Transition{transition("t0", 0, 1)},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	cases := []struct {
		position float64
		index    int
		ok       bool
	}{
		{0, 0, true},
		{4.99, 0, true},
		{5, 1, true},
		{5.5, 1, true},
		{6, 2, true},
		{8.999, 2, true},
		{9, 0, false},
		{120, 0, false},
		{-1, 0, true},
		{math.NaN(), 0, false},
	}
	for _, c := range cases {
		index, ok := tl.Resolve(c.position)
		if ok != c.ok || (ok && index != c.index) {
			t.Fatalf("Resolve(%v): expected (%d, %v), got (%d, %v)", c.position, c.index, c.ok, index, ok)
		}
	}
}

func TestEntryBounds(t *testing.T) {
	tl, _ := Build(models.Details{Clips: []models.Clip{clip("c0", 0, 5)}})
	if _, ok := tl.Entry(-1); ok {
		t.Fatalf("expected no entry at -1")
	}
	if _, ok := tl.Entry(1); ok {
		t.Fatalf("expected no entry past the end")
	}
	if e, ok := tl.Entry(0); !ok || e.ID != "c0" {
		t.Fatalf("expected c0, got %+v", e)
	}
}

func TestFormatClock(t *testing.T) {
	cases := map[float64]string{
		0:          "0:00",
		9.7:        "0:09",
		65:         "1:05",
		3600:       "60:00",
		-3:         "0:00",
		math.NaN(): "0:00",
	}
	for in, want := range cases {
		if got := FormatClock(in); got != want {
			t.Fatalf("FormatClock(%v): expected %q, got %q", in, want, got)
		}
	}
}
