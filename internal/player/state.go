package player

import (
	"podcast-player/internal/models"
	"podcast-player/internal/timeline"
)

// State is a snapshot of one player. Snapshots are values: the reducer never
// mutates slices or pointers it has already handed out.
type State struct {
	Episodes    []models.Episode  `json:"episodes"`
	Selected    *models.Episode   `json:"selected,omitempty"`
	Timeline    timeline.Timeline `json:"timeline"`
	ActiveIndex int               `json:"active_index"`
	Position    float64           `json:"position"`
	Playing     bool              `json:"playing"`
	Loading     bool              `json:"loading"`
	RequestID   uint64            `json:"request_id"`
	Err         string            `json:"error,omitempty"`
	Message     string            `json:"message,omitempty"`
}

// Active returns the entry at ActiveIndex, if the timeline has one.
func (s State) Active() (timeline.Entry, bool) {
	return s.Timeline.Entry(s.ActiveIndex)
}

// Action is a state transition understood by Reduce.
type Action interface {
	isAction()
}

// EpisodesLoaded replaces the episode list.
type EpisodesLoaded struct {
	Episodes []models.Episode
}

// SelectRequested starts loading an episode. RequestID must increase with
// every selection; only the details for the latest request are applied.
type SelectRequested struct {
	RequestID uint64
	EpisodeID models.ID
}

// DetailsLoaded delivers the fetched details and the timeline built from them.
type DetailsLoaded struct {
	RequestID uint64
	Details   models.Details
	Timeline  timeline.Timeline
}

// DetailsFailed reports that loading the episode for RequestID failed.
type DetailsFailed struct {
	RequestID uint64
	Err       error
}

// PositionUpdated reports the playback position in seconds from episode start.
type PositionUpdated struct {
	Seconds float64
}

// Seeked moves playback to the start of the entry at Index and resumes playing.
type Seeked struct {
	Index int
}

// PlaybackChanged reports play/pause from the audio primitive.
type PlaybackChanged struct {
	Playing bool
}

// Generated records the message returned by the generation service.
type Generated struct {
	Message string
}

func (EpisodesLoaded) isAction()  {}
func (SelectRequested) isAction() {}
func (DetailsLoaded) isAction()   {}
func (DetailsFailed) isAction()   {}
func (PositionUpdated) isAction() {}
func (Seeked) isAction()          {}
func (PlaybackChanged) isAction() {}
func (Generated) isAction()       {}

// Reduce applies a to s and returns the next state.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case EpisodesLoaded:
		s.Episodes = a.Episodes
	case SelectRequested:
		s.RequestID = a.RequestID
		s.Loading = true
		s.Err = ""
		s.Selected = findEpisode(s.Episodes, a.EpisodeID)
		s.Timeline = timeline.Timeline{}
		s.ActiveIndex = 0
		s.Position = 0
		s.Playing = false
	case DetailsLoaded:
		if a.RequestID != s.RequestID {
			return s
		}
		ep := a.Details.Episode
		s.Selected = &ep
		s.Timeline = a.Timeline
		s.ActiveIndex = 0
		s.Position = 0
		s.Loading = false
		s.Err = ""
	case DetailsFailed:
		if a.RequestID != s.RequestID {
			return s
		}
		s.Loading = false
		if a.Err != nil {
			s.Err = a.Err.Error()
		}
	case PositionUpdated:
		s.Position = a.Seconds
		if i, ok := s.Timeline.Resolve(a.Seconds); ok {
			s.ActiveIndex = i
		}
	case Seeked:
		entry, ok := s.Timeline.Entry(a.Index)
		if !ok {
			return s
		}
		s.Position = entry.StartTime
		s.Playing = true
		if i, ok := s.Timeline.Resolve(entry.StartTime); ok {
			s.ActiveIndex = i
		} else {
			s.ActiveIndex = a.Index
		}
	case PlaybackChanged:
		s.Playing = a.Playing
	case Generated:
		s.Message = a.Message
	}
	return s
}

func findEpisode(eps []models.Episode, id models.ID) *models.Episode {
	for i := range eps {
		if eps[i].ID == id {
			ep := eps[i]
			return &ep
		}
	}
	return nil
}
