// Package detector decides when a statically fetched page needs a headless render.
package detector

import (
	"bytes"
	"net/http"
	"strings"
)

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("__docusaurus"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
}

// ShouldRender reports whether body looks like a client-rendered shell.
func (h *Heuristic) ShouldRender(status int, body []byte) bool {
	if status != http.StatusOK {
		return false
	}
	if len(body) == 0 {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	pos := 0

	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Unterminated tag swallows the rest of the document.
			covered += total - start
			break
		}
		contentStart := start + tagClose + 1

		end := total
		if relEnd := strings.Index(lower[contentStart:], closeTag); relEnd != -1 {
			end = contentStart + relEnd + len(closeTag)
		}

		covered += end - start
		pos = end
	}

	return covered*100/total >= 25
}
