package fsstore

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"podcast-player/internal/metadata"
	"podcast-player/internal/models"
)

// ManifestName is the file that marks a directory as an episode.
const ManifestName = "episode.yaml"

// manifest is the on-disk description of one episode.
type manifest struct {
	ID          string         `yaml:"id"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Audio       string         `yaml:"audio"`
	Created     *time.Time     `yaml:"created"`
	Intro       *manifestPart  `yaml:"intro"`
	Clips       []manifestPart `yaml:"clips"`
	Transitions []manifestPart `yaml:"transitions"`
}

type manifestPart struct {
	ID          string   `yaml:"id"`
	Index       *int     `yaml:"index"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	File        string   `yaml:"file"`
	Length      *float64 `yaml:"length"`
}

// record is an episode and its children as loaded from a manifest.
type record struct {
	episode     models.Episode
	clips       []models.Clip
	transitions []models.Transition
	intro       *models.Intro
}

// loadEpisode reads the manifest in dir. rel is dir relative to the library
// root, slash separated; it is the prefix of locally served audio. The
// default episode id is rel, or the directory name for a manifest in the
// root itself.
func loadEpisode(dir, rel string) (record, error) {
	name := rel
	if rel == "." {
		name = filepath.Base(dir)
	}

	manifestPath := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return record{}, err
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return record{}, fmt.Errorf("parse %s: %w", manifestPath, err)
	}

	id := models.ID(strings.TrimSpace(m.ID))
	if id == "" {
		id = models.ID(name)
	}

	ep := models.Episode{
		ID:          id,
		Title:       strings.TrimSpace(m.Title),
		Description: strings.TrimSpace(m.Description),
		AudioURL:    audioURL(rel, m.Audio),
		CreatedAt:   m.Created,
	}

	if local := localFile(dir, m.Audio); local != "" && (ep.Title == "" || ep.Description == "") {
		if info, err := metadata.Probe(local); err == nil {
			if ep.Title == "" {
				ep.Title = info.Title
			}
			if ep.Description == "" {
				ep.Description = info.Comment
			}
		}
	}
	if ep.Title == "" {
		ep.Title = path.Base(name)
	}
	if ep.CreatedAt == nil {
		if stat, err := os.Stat(manifestPath); err == nil {
			created := stat.ModTime().UTC().Round(time.Second)
			ep.CreatedAt = &created
		}
	}

	rec := record{episode: ep}

	if m.Intro != nil {
		rec.intro = &models.Intro{
			ID:       partID(m.Intro.ID, "intro"),
			Episode:  id,
			Title:    m.Intro.Title,
			Duration: partDuration(dir, *m.Intro),
		}
	}

	for i, p := range m.Clips {
		rec.clips = append(rec.clips, models.Clip{
			ID:          partID(p.ID, fmt.Sprintf("clip-%d", i)),
			Episode:     id,
			Index:       partIndex(p, i),
			Title:       p.Title,
			Description: p.Description,
			Duration:    partDuration(dir, p),
		})
	}

	for i, p := range m.Transitions {
		rec.transitions = append(rec.transitions, models.Transition{
			ID:       partID(p.ID, fmt.Sprintf("transition-%d", i)),
			Episode:  id,
			Index:    partIndex(p, i),
			Title:    p.Title,
			Duration: partDuration(dir, p),
		})
	}

	return rec, nil
}

func partID(id, fallback string) models.ID {
	if id = strings.TrimSpace(id); id != "" {
		return models.ID(id)
	}
	return models.ID(fallback)
}

func partIndex(p manifestPart, position int) int {
	if p.Index != nil {
		return *p.Index
	}
	return position
}

// partDuration prefers the declared length and falls back to decoding the
// part's mp3 file. It returns nil when neither is available.
func partDuration(dir string, p manifestPart) *float64 {
	if p.Length != nil {
		v := *p.Length
		return &v
	}
	local := localFile(dir, p.File)
	if local == "" || !metadata.IsMP3(local) {
		return nil
	}
	dur, err := metadata.MP3Duration(local)
	if err != nil || dur <= 0 {
		return nil
	}
	return &dur
}

func isRemote(ref string) bool {
	u, err := url.Parse(ref)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// localFile resolves a manifest file reference inside dir. Remote references,
// empty references and references escaping dir resolve to "".
func localFile(dir, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || isRemote(ref) {
		return ""
	}
	clean := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.Join(dir, clean)
}

// audioURL returns remote references unchanged and maps local files to the
// server's /audio/ route.
func audioURL(rel, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if isRemote(ref) {
		return ref
	}
	clean := path.Clean(filepath.ToSlash(ref))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return ""
	}
	return "/audio/" + path.Join(rel, clean)
}
