package ytdlp

import "time"

// DefaultTimeout is the wall-clock limit applied when DownloadOptions.Timeout is zero
const DefaultTimeout = 30 * time.Minute

// SubtitleOptions controls subtitle retrieval. Nothing is emitted unless
// Languages is non-empty.
type SubtitleOptions struct {
	Languages []string `mapstructure:"languages" yaml:"languages" json:"languages,omitempty"`
	Write     bool     `mapstructure:"write" yaml:"write" json:"write"`
	Embed     bool     `mapstructure:"embed" yaml:"embed" json:"embed"`
	WriteAuto bool     `mapstructure:"write_auto" yaml:"write_auto" json:"write_auto"`
	Format    string   `mapstructure:"format" yaml:"format" json:"format,omitempty"`             // e.g. "srt/best"
	ConvertTo string   `mapstructure:"convert_to" yaml:"convert_to" json:"convert_to,omitempty"` // e.g. "srt"
}

// DownloadOptions describes one download request. Treat it as immutable.
type DownloadOptions struct {
	Format              string          `json:"format,omitempty"`
	OutputTemplate      string          `json:"output_template,omitempty"`
	NoCheckCertificate  bool            `json:"no_check_certificate"`
	CookiesFromBrowser  string          `json:"cookies_from_browser,omitempty"`
	Proxy               string          `json:"proxy,omitempty"`
	ConcurrentFragments int             `json:"concurrent_fragments,omitempty"`
	ExtraArgs           []string        `json:"extra_args,omitempty"`
	Timeout             time.Duration   `json:"timeout"` // 0 = DefaultTimeout, negative = none
	TargetContainer     string          `json:"target_container,omitempty"`
	AllowRecode         bool            `json:"allow_recode"`
	Subtitles           SubtitleOptions `json:"subtitles"`
}

// EffectiveTimeout resolves the zero and negative cases of Timeout
func (o DownloadOptions) EffectiveTimeout() time.Duration {
	switch {
	case o.Timeout < 0:
		return 0
	case o.Timeout == 0:
		return DefaultTimeout
	default:
		return o.Timeout
	}
}
