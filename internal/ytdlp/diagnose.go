package ytdlp

import (
	"fmt"
	"strings"
)

// Category is the retry-relevant classification of a failed attempt
type Category int

const (
	CategoryGeneric Category = iota
	CategoryNetwork
	CategoryExtractorOutdated
	CategoryAuthRequired
)

// String returns the string representation of Category
func (c Category) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryExtractorOutdated:
		return "extractor_outdated"
	case CategoryAuthRequired:
		return "auth_required"
	default:
		return "generic"
	}
}

type diagnosis struct {
	needles  []string
	message  string
	category Category
}

// Checked in order; the first table entry with a matching needle wins.
var diagnoses = []diagnosis{
	{
		needles:  []string{"connection refused", "errno 111", "actively refused"},
		message:  "Connection refused: the server could not be reached. Check your internet connection or proxy settings.",
		category: CategoryNetwork,
	},
	{
		needles:  []string{"timed out", "timeout"},
		message:  "The connection timed out. The network may be slow or the server is not responding.",
		category: CategoryNetwork,
	},
	{
		needles: []string{
			"name or service not known",
			"temporary failure in name resolution",
			"getaddrinfo failed",
			"nodename nor servname",
			"no address associated with hostname",
			"failed to resolve",
		},
		message:  "DNS lookup failed: the host name could not be resolved. Check your network or DNS settings.",
		category: CategoryNetwork,
	},
	{
		needles: []string{
			"certificate_verify_failed",
			"certificate verify failed",
			"ssl: ",
			"sslerror",
			"tlsv1",
			"self signed certificate",
			"unable to get local issuer certificate",
		},
		message:  "A TLS/certificate error occurred. Try enabling the option to skip certificate checks or fix the system certificate store.",
		category: CategoryNetwork,
	},
	{
		needles:  []string{"http error 429", "too many requests"},
		message:  "The server is rate limiting requests (HTTP 429). Wait a while before trying again.",
		category: CategoryGeneric,
	},
	{
		needles:  []string{"http error 403", "403: forbidden"},
		message:  "Access denied (HTTP 403). The media may be region-locked or require cookies.",
		category: CategoryGeneric,
	},
}

var (
	authNeedles = []string{
		"sign in to confirm",
		"confirm you're not a bot",
		"confirm you’re not a bot",
		"login required",
		"requires authentication",
		"this video is only available for registered users",
		"use --cookies-from-browser or --cookies",
		"private video",
		"members-only content",
	}
	extractorNeedles = []string{
		"nsig extraction failed",
		"unable to extract nsig",
		"signature extraction failed",
		"unable to extract signature",
		"n challenge solving failed",
		"unable to decode n-parameter",
	}
)

// Diagnose scans the captured tail for known failure phrases and returns
// a human readable explanation. ok is false when nothing matched; callers
// then use GenericFailureMessage.
func Diagnose(lines []string, exitCode int) (message string, ok bool) {
	if exitCode == 0 {
		return "", false
	}
	d, found := findDiagnosis(lines)
	if !found {
		return "", false
	}
	return d.message, true
}

// GenericFailureMessage is the fallback when Diagnose finds nothing
func GenericFailureMessage(exitCode int) string {
	return fmt.Sprintf("yt-dlp failed with exit code %d", exitCode)
}

// Classify returns the category of a failure from its captured tail.
// Authentication requirements take precedence over everything else.
func Classify(lines []string) Category {
	if containsAny(lines, authNeedles) {
		return CategoryAuthRequired
	}
	if containsAny(lines, extractorNeedles) {
		return CategoryExtractorOutdated
	}
	if d, ok := findDiagnosis(lines); ok {
		return d.category
	}
	return CategoryGeneric
}

// Preview joins the last n lines for inclusion in error messages
func Preview(lines []string, n int) string {
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func findDiagnosis(lines []string) (diagnosis, bool) {
	lowered := lowerAll(lines)
	for _, d := range diagnoses {
		for _, l := range lowered {
			for _, needle := range d.needles {
				if strings.Contains(l, needle) {
					return d, true
				}
			}
		}
	}
	return diagnosis{}, false
}

func containsAny(lines []string, needles []string) bool {
	for _, l := range lowerAll(lines) {
		for _, needle := range needles {
			if strings.Contains(l, needle) {
				return true
			}
		}
	}
	return false
}

func lowerAll(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.ToLower(l)
	}
	return out
}
