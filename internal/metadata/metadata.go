package metadata

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"
)

// Info is what can be learned about an audio file without a data store.
type Info struct {
	Title      string
	Artist     string
	Album      string
	Comment    string
	Duration   *float64
	SizeBytes  int64
	ModifiedAt time.Time
}

// Probe reads tags and, for mp3 files, decodes frames to measure duration.
// Tag or decode failures leave the corresponding fields empty; only a missing
// or unreadable file is an error.
func Probe(path string) (Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	if stat.IsDir() {
		return Info{}, errors.New("metadata: " + path + " is a directory")
	}

	info := Info{
		SizeBytes:  stat.Size(),
		ModifiedAt: stat.ModTime().UTC().Round(time.Second),
	}
	info.Title, info.Artist, info.Album, info.Comment = readTags(path)
	if info.Title == "" {
		info.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if IsMP3(path) {
		if dur, err := MP3Duration(path); err == nil && dur > 0 {
			info.Duration = &dur
		}
	}

	return info, nil
}

// IsMP3 reports whether path has an .mp3 extension.
func IsMP3(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".mp3")
}

func readTags(path string) (title, artist, album, comment string) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", "", ""
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return "", "", "", ""
	}

	return strings.TrimSpace(meta.Title()),
		strings.TrimSpace(meta.Artist()),
		strings.TrimSpace(meta.Album()),
		strings.TrimSpace(meta.Comment())
}

// MP3Duration sums the duration of every frame in an mp3 file.
func MP3Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := mp3.NewDecoder(f)
	var frame mp3.Frame
	var skipped int
	var total float64

	for {
		err := decoder.Decode(&frame, &skipped)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
		total += frame.Duration().Seconds()
	}

	return total, nil
}
