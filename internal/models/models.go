package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ID identifies a stored record. Data stores emit identifiers either as JSON
// numbers (int8 primary keys) or strings (uuid keys); both decode into ID.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// Episode is one generated podcast episode. AudioURL references a single
// concatenated asset covering the whole episode.
type Episode struct {
	ID          ID         `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AudioURL    string     `json:"audio_url"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// Clip is a content segment of an episode. Duration is in seconds and is
// stored in the "length" column.
type Clip struct {
	ID          ID       `json:"id"`
	Episode     ID       `json:"episode"`
	Index       int      `json:"index"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Duration    *float64 `json:"length"`
}

// Transition is a short bridge placed after the clip sharing its index.
type Transition struct {
	ID       ID       `json:"id"`
	Episode  ID       `json:"episode"`
	Index    int      `json:"index"`
	Title    string   `json:"title,omitempty"`
	Duration *float64 `json:"length"`
}

// Intro opens an episode. There is at most one per episode.
type Intro struct {
	ID       ID       `json:"id"`
	Episode  ID       `json:"episode"`
	Title    string   `json:"title,omitempty"`
	Duration *float64 `json:"length"`
}

// Details is an episode together with its ordered child records, exactly as
// read from the store.
type Details struct {
	Episode     Episode      `json:"episode"`
	Clips       []Clip       `json:"clips"`
	Transitions []Transition `json:"transitions"`
	Intro       *Intro       `json:"intro,omitempty"`
}

// Seconds returns a pointer to v, for building records in code.
func Seconds(v float64) *float64 {
	return &v
}
