package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{"yt-dlp stable", "2024.08.06\n", "2024.08.06"},
		{"yt-dlp nightly", "2024.08.06.232127", "2024.08.06.232127"},
		{"prefixed", "yt-dlp 2023.11.16", "2023.11.16"},
		{"ffmpeg", "ffmpeg version 6.0 Copyright (c) 2000-2023\nbuilt with gcc", "6.0"},
		{"ffmpeg git", "ffmpeg version N-112345-g1234567, Copyright", "N-112345-g1234567"},
		{"generic", "tool 1.2.3 (linux)", "1.2.3"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVersion(tt.output))
		})
	}
}

func TestNeedsUpdate(t *testing.T) {
	tests := []struct {
		local, latest string
		want          bool
	}{
		{"2024.08.06", "2024.08.06", false},
		{"2024.08.06", "v2024.08.06", false},
		{"2024.08.06", "2024.10.22", true},
		{"", "2024.10.22", false},
		{"2024.08.06", "", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NeedsUpdate(tt.local, tt.latest), "%q -> %q", tt.local, tt.latest)
	}
}

func TestToolTypeString(t *testing.T) {
	assert.Equal(t, "yt-dlp", ToolYTDLP.String())
	assert.Equal(t, "ffmpeg", ToolFFmpeg.String())
	assert.Equal(t, "unknown", ToolType(99).String())
}

func TestDetectMissingTool(t *testing.T) {
	info := Detect(context.Background(), ToolYTDLP, "/nonexistent/yt-dlp-binary")
	require.NotNil(t, info)
	assert.False(t, info.Available)
	assert.Empty(t, info.Binary)
	assert.Equal(t, ToolYTDLP, info.Type)

	_, err := FindTool("/nonexistent/yt-dlp-binary")
	assert.Error(t, err)
}
