package ytdlp

import (
	"errors"
	"sort"
)

// DefaultPreferredExts is the extension order used when none is given
var DefaultPreferredExts = []string{"mp4", "webm"}

var (
	// ErrNoProgressive means only split audio/video streams exist under the ceiling
	ErrNoProgressive = errors.New("no progressive format available")
	// ErrSelectorNoMatch means the selector printed no URL
	ErrSelectorNoMatch = errors.New("format selector matched no formats")
	// ErrSelectorSplitStreams means the selector printed separate audio and video URLs
	ErrSelectorSplitStreams = errors.New("format selector matched split audio and video streams")
)

// SelectProgressive picks the best single-URL format with both audio and
// video at or below maxHeight (maxHeight <= 0 means no ceiling).
// Video-only streams are never returned.
func SelectProgressive(formats []Format, maxHeight int, preferredExts []string) (Format, bool) {
	candidates := progressiveCandidates(formats, maxHeight)
	if len(candidates) == 0 {
		return Format{}, false
	}
	sortCandidates(candidates, preferredExts)
	return candidates[0], true
}

// Resolve computes Resolutions, DirectURLs and the chosen DirectURL.
// It returns ErrNoProgressive when no progressive candidate survives.
func (m *VideoMetadata) Resolve(maxHeight int, preferredExts []string) error {
	if len(preferredExts) == 0 {
		preferredExts = DefaultPreferredExts
	}

	m.Resolutions = make(map[int]Resolution)
	m.DirectURLs = make(map[int]string)
	m.DirectURL = ""
	m.DirectURLFormat = ""

	for _, f := range m.Formats {
		if f.Height <= 0 || !f.HasVideo() {
			continue
		}
		r := m.Resolutions[f.Height]
		if f.IsProgressive() {
			r.Progressive = true
		}
		if !f.IsSegmented() && f.URL != "" {
			r.Downloadable = true
		}
		m.Resolutions[f.Height] = r
	}

	byHeight := make(map[int][]Format)
	for _, f := range progressiveCandidates(m.Formats, 0) {
		byHeight[f.Height] = append(byHeight[f.Height], f)
	}
	for h, fs := range byHeight {
		sortCandidates(fs, preferredExts)
		m.DirectURLs[h] = fs[0].URL
	}

	best, ok := SelectProgressive(m.Formats, maxHeight, preferredExts)
	if !ok {
		return ErrNoProgressive
	}
	m.DirectURL = best.URL
	m.DirectURLFormat = best.Tag()
	return nil
}

func progressiveCandidates(formats []Format, maxHeight int) []Format {
	var out []Format
	for _, f := range formats {
		if f.IsSegmented() || f.URL == "" {
			continue
		}
		if !f.IsProgressive() {
			continue
		}
		if maxHeight > 0 && f.Height > maxHeight {
			continue
		}
		out = append(out, f)
	}
	return out
}

func sortCandidates(fs []Format, preferredExts []string) {
	rank := func(ext string) int {
		for i, e := range preferredExts {
			if e == ext {
				return i
			}
		}
		return len(preferredExts)
	}
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].Height != fs[j].Height {
			return fs[i].Height > fs[j].Height
		}
		return rank(fs[i].Ext) < rank(fs[j].Ext)
	})
}
