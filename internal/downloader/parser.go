package downloader

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	progressRe    = regexp.MustCompile(`\[download\]\s+(\d+(?:\.\d+)?)%\s+of\s+(?:~\s*)?(\S+)\s+at\s+(.+?)\s+ETA\s+(\S+)`)
	completionRe  = regexp.MustCompile(`\[download\]\s+100(?:\.0+)?%\s+of\s+(?:~\s*)?(\S+)\s+in\s+(\S+)`)
	destinationRe = regexp.MustCompile(`\[download\]\s+Destination:\s+(.+)$`)
	mergerRe      = regexp.MustCompile(`\[Merger\]\s+Merging formats into\s+"([^"]+)"`)
	alreadyRe     = regexp.MustCompile(`\[download\]\s+(.+?) has already been downloaded`)
	sizeRe        = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([KMGT]?i?B)$`)
)

var sizeUnits = map[string]float64{
	"B":   1,
	"KiB": 1 << 10,
	"MiB": 1 << 20,
	"GiB": 1 << 30,
	"TiB": 1 << 40,
	"KB":  1e3,
	"MB":  1e6,
	"GB":  1e9,
	"TB":  1e12,
}

// LineKind classifies one line of downloader output.
type LineKind int

const (
	LineIgnored LineKind = iota
	LineProgress
	LineDestination
	LineMerged
	LineAlreadyDownloaded
)

// Line is the parsed form of one output line.
type Line struct {
	Kind            LineKind
	Progress        float64
	DownloadedBytes *int64
	TotalBytes      *int64
	Speed           string
	ETA             string
	Path            string
}

// ParseLine interprets a line of `--newline` progress output.
func ParseLine(raw string) Line {
	line := strings.TrimSpace(raw)

	if m := progressRe.FindStringSubmatch(line); m != nil {
		pct, _ := strconv.ParseFloat(m[1], 64)
		out := Line{Kind: LineProgress, Progress: pct, Speed: m[3], ETA: m[4]}
		if total, ok := ParseSize(m[2]); ok {
			done := int64(float64(total) * pct / 100)
			out.TotalBytes = &total
			out.DownloadedBytes = &done
		}
		return out
	}

	if m := completionRe.FindStringSubmatch(line); m != nil {
		out := Line{Kind: LineProgress, Progress: 100}
		if total, ok := ParseSize(m[1]); ok {
			done := total
			out.TotalBytes = &total
			out.DownloadedBytes = &done
		}
		return out
	}

	if m := mergerRe.FindStringSubmatch(line); m != nil {
		return Line{Kind: LineMerged, Path: m[1]}
	}
	if m := destinationRe.FindStringSubmatch(line); m != nil {
		return Line{Kind: LineDestination, Path: strings.TrimSpace(m[1])}
	}
	if m := alreadyRe.FindStringSubmatch(line); m != nil {
		return Line{Kind: LineAlreadyDownloaded, Path: m[1], Progress: 100}
	}
	return Line{Kind: LineIgnored}
}

// ParseSize converts "10.00MiB" style sizes to bytes. Binary units use 1024, decimal units 1000.
func ParseSize(s string) (int64, bool) {
	m := sizeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	mult, ok := sizeUnits[m[2]]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return int64(v * mult), true
}
