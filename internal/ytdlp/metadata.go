package ytdlp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Format is one entry of the tool's formats array
type Format struct {
	FormatID string  `json:"format_id"`
	Ext      string  `json:"ext"`
	Height   int     `json:"height"`
	Width    int     `json:"width"`
	FPS      float64 `json:"fps"`
	ACodec   string  `json:"acodec"`
	VCodec   string  `json:"vcodec"`
	Protocol string  `json:"protocol"`
	URL      string  `json:"url"`
	TBR      float64 `json:"tbr"` // total bitrate, kbit/s
	Filesize int64   `json:"filesize"`
}

// HasAudio reports whether the format carries an audio stream
func (f Format) HasAudio() bool {
	return f.ACodec != "" && f.ACodec != "none"
}

// HasVideo reports whether the format carries a video stream
func (f Format) HasVideo() bool {
	return f.VCodec != "" && f.VCodec != "none"
}

// IsProgressive reports whether audio and video are in one stream
func (f Format) IsProgressive() bool {
	return f.HasAudio() && f.HasVideo()
}

// IsSegmented reports whether the protocol cannot yield a single fetchable URL
func (f Format) IsSegmented() bool {
	p := strings.ToLower(f.Protocol)
	for _, s := range []string{"m3u8", "dash", "f4m", "ism", "mhtml"} {
		if strings.Contains(p, s) {
			return true
		}
	}
	return false
}

// Tag describes the format, e.g. "progressive_720p.mp4"
func (f Format) Tag() string {
	return fmt.Sprintf("progressive_%dp.%s", f.Height, f.Ext)
}

// SubtitleTrack is one file of a subtitle language
type SubtitleTrack struct {
	Ext  string `json:"ext"`
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// Chapter marks a titled range of the media
type Chapter struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Title     string  `json:"title"`
}

// Resolution summarises what is available at one height
type Resolution struct {
	Progressive  bool `json:"progressive"`
	Downloadable bool `json:"downloadable"`
}

// VideoMetadata is the subset of the tool's info JSON this package consumes
type VideoMetadata struct {
	ID                string                     `json:"id"`
	Title             string                     `json:"title"`
	URL               string                     `json:"url,omitempty"`
	WebpageURL        string                     `json:"webpage_url,omitempty"`
	Duration          float64                    `json:"duration"`
	Uploader          string                     `json:"uploader,omitempty"`
	UploaderURL       string                     `json:"uploader_url,omitempty"`
	UploadDate        string                     `json:"upload_date,omitempty"` // YYYYMMDD
	ViewCount         int64                      `json:"view_count,omitempty"`
	LikeCount         int64                      `json:"like_count,omitempty"`
	CommentCount      int64                      `json:"comment_count,omitempty"`
	Width             int                        `json:"width,omitempty"`
	Height            int                        `json:"height,omitempty"`
	FPS               float64                    `json:"fps,omitempty"`
	Tags              []string                   `json:"tags,omitempty"`
	Categories        []string                   `json:"categories,omitempty"`
	Subtitles         map[string][]SubtitleTrack `json:"subtitles,omitempty"`
	AutomaticCaptions map[string][]SubtitleTrack `json:"automatic_captions,omitempty"`
	Chapters          []Chapter                  `json:"chapters,omitempty"`
	Formats           []Format                   `json:"formats,omitempty"`

	// Filled by Resolve
	Resolutions     map[int]Resolution `json:"resolutions,omitempty"`
	DirectURLs      map[int]string     `json:"direct_urls,omitempty"`
	DirectURL       string             `json:"direct_url,omitempty"`
	DirectURLFormat string             `json:"direct_url_format,omitempty"`
}

// Link returns the canonical page URL, falling back to url
func (m *VideoMetadata) Link() string {
	if m.WebpageURL != "" {
		return m.WebpageURL
	}
	return m.URL
}

// ParseMetadata decodes a single info JSON object
func ParseMetadata(data []byte) (*VideoMetadata, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty metadata output")
	}
	var m VideoMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &m, nil
}

// ParseMetadataLines decodes JSON-lines output (one object per line),
// as produced for flattened playlist listings. Non-JSON lines are skipped.
func ParseMetadataLines(r io.Reader) ([]VideoMetadata, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var items []VideoMetadata
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var m VideoMetadata
		if err := json.Unmarshal(line, &m); err != nil {
			return items, fmt.Errorf("failed to decode metadata line %d: %w", len(items)+1, err)
		}
		items = append(items, m)
	}
	if err := scanner.Err(); err != nil {
		return items, fmt.Errorf("failed to read metadata lines: %w", err)
	}
	return items, nil
}
