package agent

import (
	"net/url"
	"strconv"
	"strings"
)

// GiveUpMarker is the sentinel the model writes when it hands control back
// to a human.
const GiveUpMarker = "GIVING UP:"

// Location is the file position a give-up message points at.
type Location struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// XcodeURL renders an xed:// deep link that opens the location in Xcode.
func (l Location) XcodeURL() string {
	file := (&url.URL{Path: l.File}).EscapedPath()
	return "xed://open?file=" + file + "&line=" + strconv.Itoa(l.Line)
}

// ParseGiveUp reports whether text contains the give-up marker and, if so,
// extracts the "File:" and "Line:" lines that follow it. The location is
// nil when either is absent or the line is not a positive integer.
func ParseGiveUp(text string) (*Location, bool) {
	idx := strings.Index(text, GiveUpMarker)
	if idx < 0 {
		return nil, false
	}

	var (
		file    string
		line    int
		hasFile bool
		hasLine bool
	)
	for _, raw := range strings.Split(text[idx+len(GiveUpMarker):], "\n") {
		l := strings.TrimSpace(raw)
		switch {
		case !hasFile && strings.HasPrefix(l, "File:"):
			file = strings.TrimSpace(strings.TrimPrefix(l, "File:"))
			hasFile = file != ""
		case !hasLine && strings.HasPrefix(l, "Line:"):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(l, "Line:")))
			if err == nil && n > 0 {
				line, hasLine = n, true
			}
		}
	}

	if !hasFile || !hasLine {
		return nil, true
	}
	return &Location{File: file, Line: line}, true
}
