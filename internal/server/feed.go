package server

import (
	"encoding/xml"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	pathpkg "path"
	"sort"
	"strings"
	"time"

	"podcast-player/internal/metadata"
	"podcast-player/internal/models"
)

func (h *serverHandler) handleFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	token, ok := h.requireToken(w, r)
	if !ok {
		return
	}

	base := h.requestBaseURL(r)
	if base == nil {
		h.logger.Printf("unable to determine request base URL")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	eps, err := h.episodes.ListEpisodes(r.Context())
	if err != nil {
		h.logger.Printf("failed to list episodes for feed: %v", err)
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	data, err := h.buildRSSFeed(base, r.URL.Path, r.URL.RawQuery, eps, token)
	if err != nil {
		h.logger.Printf("failed to build RSS feed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		h.logger.Printf("failed to write RSS feed: %v", err)
	}
}

func (h *serverHandler) requestBaseURL(r *http.Request) *url.URL {
	scheme := "http"
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if candidate := strings.TrimSpace(parts[0]); candidate != "" {
			scheme = candidate
		}
	} else if r.TLS != nil {
		scheme = "https"
	}

	host := strings.TrimSpace(r.Host)
	if host == "" {
		return nil
	}

	return &url.URL{Scheme: scheme, Host: host}
}

func (h *serverHandler) buildRSSFeed(base *url.URL, requestPath, rawQuery string, eps []models.Episode, token string) ([]byte, error) {
	feedURL := *base
	feedURL.Path = requestPath
	feedURL.RawQuery = rawQuery

	channelLink := *base
	channelLink.Path = ""
	channelLink.RawQuery = ""

	sorted := make([]models.Episode, 0, len(eps))
	for _, ep := range eps {
		if strings.TrimSpace(ep.AudioURL) == "" {
			continue
		}
		sorted = append(sorted, ep)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		iTime, jTime := createdAt(sorted[i]), createdAt(sorted[j])
		if iTime.Equal(jTime) {
			return sorted[i].ID > sorted[j].ID
		}
		return iTime.After(jTime)
	})

	lastBuild := time.Time{}
	for _, ep := range sorted {
		if created := createdAt(ep); created.After(lastBuild) {
			lastBuild = created.UTC()
		}
	}
	if lastBuild.IsZero() {
		lastBuild = time.Now().UTC()
	}

	rss := rssFeed{
		Version:  "2.0",
		AtomNS:   "http://www.w3.org/2005/Atom",
		ITunesNS: "http://www.itunes.com/dtds/podcast-1.0.dtd",
		Channel: rssChannel{
			Title:         h.feed.Title,
			Link:          channelLink.String(),
			Description:   h.feed.Description,
			Language:      h.feed.Language,
			LastBuildDate: lastBuild.Format(time.RFC1123Z),
			Generator:     "podcast-player",
			ITunesAuthor:  h.feed.Author,
			AtomLink: rssAtomLink{
				Href: feedURL.String(),
				Rel:  "self",
				Type: "application/rss+xml",
			},
		},
	}

	for _, ep := range sorted {
		enclosure, err := h.enclosure(base, ep.AudioURL, token)
		if err != nil {
			h.logger.Printf("skipping episode %s in feed: %v", ep.ID, err)
			continue
		}

		item := rssItem{
			Title:        ep.Title,
			Link:         enclosure.URL,
			GUID:         rssGUID{IsPermaLink: "false", Value: ep.ID.String()},
			Description:  ep.Description,
			Enclosure:    enclosure.rssEnclosure,
			ITunesAuthor: h.feed.Author,
		}
		if ep.CreatedAt != nil {
			item.PubDate = ep.CreatedAt.UTC().Format(time.RFC1123Z)
		}
		if enclosure.duration != nil {
			item.ITunesDuration = formatDuration(*enclosure.duration)
		}

		rss.Channel.Items = append(rss.Channel.Items, item)
	}

	output, err := xml.MarshalIndent(rss, "", "  ")
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), output...), nil
}

type feedEnclosure struct {
	rssEnclosure
	duration *float64
}

// enclosure resolves an episode's audio URL against the request. Audio served
// from the local library carries the caller's token and is probed for size
// and duration.
func (h *serverHandler) enclosure(base *url.URL, audioURL, token string) (feedEnclosure, error) {
	ref, err := url.Parse(strings.TrimSpace(audioURL))
	if err != nil {
		return feedEnclosure{}, fmt.Errorf("parse audio url: %w", err)
	}

	out := feedEnclosure{rssEnclosure: rssEnclosure{Type: mimeTypeForFilename(ref.Path)}}

	if ref.IsAbs() {
		out.URL = ref.String()
		return out, nil
	}

	local := *base
	local.Path = "/" + strings.TrimLeft(pathpkg.Clean(ref.Path), "/")
	local.RawQuery = ""
	if token != "" {
		values := local.Query()
		values.Set("token", token)
		local.RawQuery = values.Encode()
	}
	out.URL = local.String()

	if rel, ok := strings.CutPrefix(local.Path, "/audio/"); ok {
		if file, ok := h.audioPath(rel); ok {
			if info, err := metadata.Probe(file); err == nil {
				out.Length = info.SizeBytes
				out.duration = info.Duration
			}
		}
	}
	return out, nil
}

func createdAt(ep models.Episode) time.Time {
	if ep.CreatedAt == nil {
		return time.Time{}
	}
	return *ep.CreatedAt
}

func mimeTypeForFilename(name string) string {
	ext := strings.ToLower(pathpkg.Ext(name))
	if ext != "" {
		if value := mime.TypeByExtension(ext); value != "" {
			return value
		}
		if fallback, ok := fallbackMIMETypes[ext]; ok {
			return fallback
		}
	}
	return "application/octet-stream"
}

var fallbackMIMETypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	total := int64(seconds + 0.5)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}

type rssFeed struct {
	XMLName  xml.Name   `xml:"rss"`
	Version  string     `xml:"version,attr"`
	AtomNS   string     `xml:"xmlns:atom,attr"`
	ITunesNS string     `xml:"xmlns:itunes,attr"`
	Channel  rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string      `xml:"title"`
	Link          string      `xml:"link"`
	Description   string      `xml:"description"`
	Language      string      `xml:"language,omitempty"`
	LastBuildDate string      `xml:"lastBuildDate"`
	Generator     string      `xml:"generator"`
	AtomLink      rssAtomLink `xml:"atom:link"`
	ITunesAuthor  string      `xml:"itunes:author,omitempty"`
	Items         []rssItem   `xml:"item"`
}

type rssAtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type rssItem struct {
	Title          string       `xml:"title"`
	Link           string       `xml:"link"`
	GUID           rssGUID      `xml:"guid"`
	PubDate        string       `xml:"pubDate,omitempty"`
	Description    string       `xml:"description"`
	Enclosure      rssEnclosure `xml:"enclosure"`
	ITunesDuration string       `xml:"itunes:duration,omitempty"`
	ITunesAuthor   string       `xml:"itunes:author,omitempty"`
}

type rssGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}
