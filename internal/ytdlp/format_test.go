package ytdlp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func progressive(id string, height int, ext string) Format {
	return Format{
		FormatID: id,
		Ext:      ext,
		Height:   height,
		ACodec:   "mp4a.40.2",
		VCodec:   "avc1.64001F",
		Protocol: "https",
		URL:      "https://cdn.example.com/" + id,
	}
}

func TestSelectProgressive(t *testing.T) {
	videoOnly := Format{FormatID: "137", Ext: "mp4", Height: 1080, ACodec: "none", VCodec: "avc1", Protocol: "https", URL: "https://cdn.example.com/137"}
	formats := []Format{
		progressive("18", 360, "mp4"),
		progressive("22", 720, "mp4"),
		videoOnly,
	}

	t.Run("skips video-only streams", func(t *testing.T) {
		f, ok := SelectProgressive(formats, 0, nil)
		require.True(t, ok)
		assert.Equal(t, "22", f.FormatID)
		assert.Equal(t, "progressive_720p.mp4", f.Tag())
	})

	t.Run("respects ceiling", func(t *testing.T) {
		f, ok := SelectProgressive(formats, 480, nil)
		require.True(t, ok)
		assert.Equal(t, "18", f.FormatID)
	})

	t.Run("nothing under ceiling", func(t *testing.T) {
		_, ok := SelectProgressive(formats, 240, nil)
		assert.False(t, ok)
	})

	t.Run("extension preference breaks ties", func(t *testing.T) {
		fs := []Format{
			progressive("a", 720, "3gp"),
			progressive("b", 720, "webm"),
			progressive("c", 720, "mp4"),
		}
		f, ok := SelectProgressive(fs, 0, []string{"webm", "mp4"})
		require.True(t, ok)
		assert.Equal(t, "b", f.FormatID)

		f, ok = SelectProgressive(fs, 0, []string{"mp4"})
		require.True(t, ok)
		assert.Equal(t, "c", f.FormatID)
	})

	t.Run("segmented protocols are discarded", func(t *testing.T) {
		hls := progressive("hls", 1080, "mp4")
		hls.Protocol = "m3u8_native"
		dash := progressive("dash", 1080, "mp4")
		dash.Protocol = "http_dash_segments"

		f, ok := SelectProgressive(append([]Format{hls, dash}, formats...), 0, nil)
		require.True(t, ok)
		assert.Equal(t, "22", f.FormatID)
	})
}

func TestVideoMetadataResolve(t *testing.T) {
	meta := &VideoMetadata{
		ID: "abc",
		Formats: []Format{
			progressive("18", 360, "mp4"),
			progressive("43", 360, "webm"),
			progressive("22", 720, "mp4"),
			{FormatID: "137", Ext: "mp4", Height: 1080, ACodec: "none", VCodec: "avc1", Protocol: "https", URL: "https://cdn.example.com/137"},
			{FormatID: "140", Ext: "m4a", ACodec: "mp4a", VCodec: "none", Protocol: "https", URL: "https://cdn.example.com/140"},
		},
	}

	require.NoError(t, meta.Resolve(0, nil))

	assert.Equal(t, "https://cdn.example.com/22", meta.DirectURL)
	assert.Equal(t, "progressive_720p.mp4", meta.DirectURLFormat)
	assert.Equal(t, map[int]string{
		360: "https://cdn.example.com/18",
		720: "https://cdn.example.com/22",
	}, meta.DirectURLs)
	assert.Equal(t, Resolution{Progressive: false, Downloadable: true}, meta.Resolutions[1080])
	assert.Equal(t, Resolution{Progressive: true, Downloadable: true}, meta.Resolutions[720])
	assert.NotContains(t, meta.Resolutions, 0)
}

func TestVideoMetadataResolve_NoProgressive(t *testing.T) {
	meta := &VideoMetadata{
		Formats: []Format{
			{FormatID: "137", Ext: "mp4", Height: 1080, ACodec: "none", VCodec: "avc1", Protocol: "https", URL: "u1"},
			{FormatID: "140", Ext: "m4a", ACodec: "mp4a", VCodec: "none", Protocol: "https", URL: "u2"},
		},
	}

	err := meta.Resolve(0, nil)
	assert.ErrorIs(t, err, ErrNoProgressive)
	assert.Empty(t, meta.DirectURL)
}

const sampleInfoJSON = `{
  "id": "dQw4w9WgXcQ",
  "title": "Sample",
  "webpage_url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
  "duration": 212.0,
  "uploader": "Someone",
  "upload_date": "20091025",
  "view_count": 1000,
  "tags": ["music"],
  "subtitles": {"en": [{"ext": "vtt", "url": "https://subs/en.vtt"}]},
  "chapters": [{"start_time": 0, "end_time": 10.5, "title": "Intro"}],
  "formats": [
    {"format_id": "18", "ext": "mp4", "height": 360, "acodec": "mp4a.40.2", "vcodec": "avc1", "protocol": "https", "url": "https://cdn/18", "tbr": 500.5}
  ]
}`

func TestParseMetadata(t *testing.T) {
	meta, err := ParseMetadata([]byte(sampleInfoJSON))
	require.NoError(t, err)

	assert.Equal(t, "dQw4w9WgXcQ", meta.ID)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", meta.Link())
	assert.InDelta(t, 212.0, meta.Duration, 0.001)
	assert.Equal(t, []string{"music"}, meta.Tags)
	require.Len(t, meta.Subtitles["en"], 1)
	assert.Equal(t, "vtt", meta.Subtitles["en"][0].Ext)
	require.Len(t, meta.Chapters, 1)
	assert.Equal(t, "Intro", meta.Chapters[0].Title)
	require.Len(t, meta.Formats, 1)
	assert.True(t, meta.Formats[0].IsProgressive())

	_, err = ParseMetadata([]byte("  "))
	assert.Error(t, err)

	_, err = ParseMetadata([]byte("not json"))
	assert.Error(t, err)
}

func TestParseMetadataLines(t *testing.T) {
	input := strings.Join([]string{
		`{"id": "a", "title": "First", "url": "https://example.com/a"}`,
		`WARNING: something unrelated`,
		``,
		`{"id": "b", "title": "Second", "url": "https://example.com/b"}`,
	}, "\n")

	items, err := ParseMetadataLines(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "https://example.com/b", items[1].Link())
}
