package ytdlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func indexOf(args []string, flag string) int {
	for i, a := range args {
		if a == flag {
			return i
		}
	}
	return -1
}

func TestBuildArgs_Basic(t *testing.T) {
	args := BuildArgs(BuildInput{
		ToolPath: "yt-dlp",
		URL:      "https://example.com/watch?v=1",
	})

	assert.Equal(t, []string{"--newline", "--no-colors", "https://example.com/watch?v=1"}, args)
}

func TestBuildArgs_Order(t *testing.T) {
	args := BuildArgs(BuildInput{
		ToolPath:       "yt-dlp",
		TranscoderPath: "/opt/ffmpeg/bin/ffmpeg",
		URL:            "https://example.com/v",
		WorkDir:        "/tmp/downloads",
		Options: DownloadOptions{
			Format:              "bv*+ba/b",
			OutputTemplate:      "%(title)s.%(ext)s",
			NoCheckCertificate:  true,
			CookiesFromBrowser:  "firefox",
			Proxy:               "socks5://127.0.0.1:1080",
			ConcurrentFragments: 4,
			ExtraArgs:           []string{"--no-mtime"},
			TargetContainer:     "mp4",
		},
	})

	want := []string{
		"--newline", "--no-colors",
		"--ffmpeg-location", "/opt/ffmpeg/bin/ffmpeg",
		"--no-check-certificates",
		"--cookies-from-browser", "firefox",
		"--proxy", "socks5://127.0.0.1:1080",
		"--concurrent-fragments", "4",
		"-f", "bv*+ba/b",
		"--remux-video", "mp4",
		"--paths", "/tmp/downloads",
		"-o", "%(title)s.%(ext)s",
		"--no-mtime",
		"https://example.com/v",
	}
	assert.Equal(t, want, args)
}

func TestBuildArgs_Container(t *testing.T) {
	tests := []struct {
		name        string
		container   string
		allowRecode bool
		wantRemux   bool
		wantRecode  bool
	}{
		{"no container", "", false, false, false},
		{"no container with recode allowed", "", true, false, false},
		{"remux", "mkv", false, true, false},
		{"recode", "mp4", true, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := BuildArgs(BuildInput{
				URL:     "https://example.com/v",
				Options: DownloadOptions{TargetContainer: tt.container, AllowRecode: tt.allowRecode},
			})

			remux := indexOf(args, "--remux-video")
			recode := indexOf(args, "--recode-video")
			assert.Equal(t, tt.wantRemux, remux >= 0)
			assert.Equal(t, tt.wantRecode, recode >= 0)
			assert.False(t, remux >= 0 && recode >= 0, "remux and recode must never both appear")

			if remux >= 0 {
				assert.Equal(t, tt.container, args[remux+1])
			}
			if recode >= 0 {
				assert.Equal(t, tt.container, args[recode+1])
			}
		})
	}
}

func TestBuildArgs_Subtitles(t *testing.T) {
	t.Run("nothing without languages", func(t *testing.T) {
		args := BuildArgs(BuildInput{
			URL: "u",
			Options: DownloadOptions{Subtitles: SubtitleOptions{
				Write: true, Embed: true, WriteAuto: true, Format: "srt", ConvertTo: "srt",
			}},
		})
		assert.Equal(t, []string{"--newline", "--no-colors", "u"}, args)
	})

	t.Run("blank languages are ignored", func(t *testing.T) {
		args := BuildArgs(BuildInput{
			URL:     "u",
			Options: DownloadOptions{Subtitles: SubtitleOptions{Languages: []string{" ", ""}, Write: true}},
		})
		assert.Equal(t, -1, indexOf(args, "--sub-langs"))
		assert.Equal(t, -1, indexOf(args, "--write-subs"))
	})

	tests := []struct {
		name string
		subs SubtitleOptions
		want []string
	}{
		{
			name: "languages only",
			subs: SubtitleOptions{Languages: []string{"en", "de"}},
			want: []string{"--sub-langs", "en,de"},
		},
		{
			name: "write and embed",
			subs: SubtitleOptions{Languages: []string{"en"}, Write: true, Embed: true},
			want: []string{"--sub-langs", "en", "--write-subs", "--embed-subs"},
		},
		{
			name: "everything",
			subs: SubtitleOptions{
				Languages: []string{" en ", "ja"},
				Write:     true,
				WriteAuto: true,
				Embed:     true,
				Format:    "srt/best",
				ConvertTo: "srt",
			},
			want: []string{
				"--sub-langs", "en,ja",
				"--write-subs", "--write-auto-subs", "--embed-subs",
				"--sub-format", "srt/best",
				"--convert-subs", "srt",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := BuildArgs(BuildInput{URL: "u", Options: DownloadOptions{Subtitles: tt.subs}})
			assert.Equal(t, tt.want, args[2:len(args)-1])
		})
	}
}

func TestBuildArgs_DoesNotAliasExtraArgs(t *testing.T) {
	extra := make([]string, 1, 8)
	extra[0] = "--no-mtime"
	opts := DownloadOptions{ExtraArgs: extra}

	first := BuildArgs(BuildInput{URL: "a", Options: opts})
	second := BuildArgs(BuildInput{URL: "b", Options: opts})

	assert.Equal(t, "a", first[len(first)-1])
	assert.Equal(t, "b", second[len(second)-1])
	assert.Equal(t, []string{"--no-mtime"}, opts.ExtraArgs)
}

func TestArgsString(t *testing.T) {
	got := ArgsString("yt-dlp", []string{"-o", "%(title)s [%(id)s].%(ext)s", "--proxy", "", "https://x.y/?a=1&b=2"})
	assert.Equal(t, `yt-dlp -o '%(title)s [%(id)s].%(ext)s' --proxy '' 'https://x.y/?a=1&b=2'`, got)
}

func TestEffectiveTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, DownloadOptions{}.EffectiveTimeout())
	assert.Zero(t, DownloadOptions{Timeout: -1}.EffectiveTimeout())
	assert.Equal(t, DefaultTimeout/2, DownloadOptions{Timeout: DefaultTimeout / 2}.EffectiveTimeout())
}
