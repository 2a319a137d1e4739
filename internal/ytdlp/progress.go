package ytdlp

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	percentPattern = regexp.MustCompile(`(\d{1,3}(?:[.,]\d+)?)%`)
	speedPattern   = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(KiB|MiB|GiB|KB|MB|GB|B)/s`)
	etaPattern     = regexp.MustCompile(`ETA\s+(?:(\d+):)?(\d{1,2}):(\d{2})`)

	destinationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\[download\] Destination: (.+)$`),
		regexp.MustCompile(`^\[Merger\] Merging formats into "(.+)"$`),
		regexp.MustCompile(`^\[VideoRemuxer\] Remuxing video from \S+ to \S+; Destination: (.+)$`),
		regexp.MustCompile(`^\[VideoConvertor\] Converting video from \S+ to \S+; Destination: (.+)$`),
		regexp.MustCompile(`^\[ExtractAudio\] Destination: (.+)$`),
		regexp.MustCompile(`^\[download\] (.+) has already been downloaded$`),
	}
)

var speedMultipliers = map[string]float64{
	"B":   1,
	"KB":  1000,
	"MB":  1000 * 1000,
	"GB":  1000 * 1000 * 1000,
	"KiB": 1024,
	"MiB": 1024 * 1024,
	"GiB": 1024 * 1024 * 1024,
}

// ParseProgress extracts the completion percentage from an output line.
// Format: [download]  45.0% of 123.45MiB at 1.23MiB/s ETA 00:12
func ParseProgress(line string) (float64, bool) {
	matches := percentPattern.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return 0, false
	}

	// the last percentage is the overall one on fragment lines
	raw := matches[len(matches)-1][1]
	percent, err := parseDecimal(raw)
	if err != nil || percent > 100 {
		return 0, false
	}
	return percent, true
}

// ParseSpeed extracts the transfer rate in bytes per second.
// Binary units use 1024, decimal units 1000.
func ParseSpeed(line string) (int64, bool) {
	m := speedPattern.FindStringSubmatch(line)
	if len(m) < 3 {
		return 0, false
	}
	value, err := parseDecimal(m[1])
	if err != nil {
		return 0, false
	}
	return int64(math.Round(value * speedMultipliers[m[2]])), true
}

// ParseETA extracts the remaining time, e.g. "ETA 00:12" or "ETA 01:23:45"
func ParseETA(line string) (time.Duration, bool) {
	m := etaPattern.FindStringSubmatch(line)
	if len(m) < 4 {
		return 0, false
	}
	hours := 0
	if m[1] != "" {
		hours, _ = strconv.Atoi(m[1])
	}
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second, true
}

// ParseDestination extracts the output file path announced by the tool
func ParseDestination(line string) (string, bool) {
	line = strings.TrimSpace(line)
	for _, p := range destinationPatterns {
		if m := p.FindStringSubmatch(line); len(m) == 2 {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

func parseDecimal(s string) (float64, error) {
	return strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
}
