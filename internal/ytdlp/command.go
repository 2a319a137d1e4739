package ytdlp

import (
	"strconv"
	"strings"
)

// BuildInput is everything needed to build one invocation
type BuildInput struct {
	ToolPath       string
	TranscoderPath string // optional ffmpeg override
	URL            string
	Options        DownloadOptions
	WorkDir        string // optional
}

// BuildArgs turns a request into the argument vector for the tool.
// argv[0] is not included. The function performs no I/O.
func BuildArgs(in BuildInput) []string {
	opts := in.Options

	args := []string{"--newline", "--no-colors"}

	if in.TranscoderPath != "" {
		args = append(args, "--ffmpeg-location", in.TranscoderPath)
	}

	args = append(args, networkArgs(opts)...)
	if opts.ConcurrentFragments > 0 {
		args = append(args, "--concurrent-fragments", strconv.Itoa(opts.ConcurrentFragments))
	}

	if opts.Format != "" {
		args = append(args, "-f", opts.Format)
	}

	if opts.TargetContainer != "" {
		if opts.AllowRecode {
			args = append(args, "--recode-video", opts.TargetContainer)
		} else {
			args = append(args, "--remux-video", opts.TargetContainer)
		}
	}

	args = append(args, subtitleArgs(opts.Subtitles)...)

	if in.WorkDir != "" {
		args = append(args, "--paths", in.WorkDir)
	}
	if opts.OutputTemplate != "" {
		args = append(args, "-o", opts.OutputTemplate)
	}

	args = append(args, opts.ExtraArgs...)
	args = append(args, in.URL)

	return args
}

// networkArgs are the flags that affect how the site is contacted. They are
// shared by downloads and the metadata/URL queries.
func networkArgs(opts DownloadOptions) []string {
	var args []string
	if opts.NoCheckCertificate {
		args = append(args, "--no-check-certificates")
	}
	if opts.CookiesFromBrowser != "" {
		args = append(args, "--cookies-from-browser", opts.CookiesFromBrowser)
	}
	if opts.Proxy != "" {
		args = append(args, "--proxy", opts.Proxy)
	}
	return args
}

func subtitleArgs(subs SubtitleOptions) []string {
	langs := make([]string, 0, len(subs.Languages))
	for _, l := range subs.Languages {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	if len(langs) == 0 {
		return nil
	}

	args := []string{"--sub-langs", strings.Join(langs, ",")}
	if subs.Write {
		args = append(args, "--write-subs")
	}
	if subs.WriteAuto {
		args = append(args, "--write-auto-subs")
	}
	if subs.Embed {
		args = append(args, "--embed-subs")
	}
	if subs.Format != "" {
		args = append(args, "--sub-format", subs.Format)
	}
	if subs.ConvertTo != "" {
		args = append(args, "--convert-subs", subs.ConvertTo)
	}
	return args
}

// ArgsString renders args as a single shell-like line for logging
func ArgsString(tool string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteArg(tool))
	for _, a := range args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`*?[]{}()<>|&;#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
