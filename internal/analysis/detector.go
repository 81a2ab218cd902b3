package analysis

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// Detection is one candidate tool mention reported by a detector.
type Detection struct {
	RawName    string  `json:"raw_name"`
	Confidence float64 `json:"confidence"`
}

// Detector is the tool-mention model consumed by the batch processor. The
// production model lives outside this service; KeywordDetector is the
// built-in implementation seeded from the registry.
type Detector interface {
	Detect(ctx context.Context, text string) ([]Detection, error)
}

// MinConfidence gates which detections are accepted into a record's
// detected_tool_ids.
const MinConfidence = 0.8

const (
	wordMatchConfidence      = 0.95
	substringMatchConfidence = 0.6
)

// KeywordDetector matches known tool and alias names against content.
// Whole-word matches score above the confidence gate, bare substring
// matches below it.
type KeywordDetector struct {
	keywords []string
}

func NewKeywordDetector(names ...string) *KeywordDetector {
	seen := make(map[string]bool, len(names))
	keywords := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		keywords = append(keywords, name)
	}
	sort.Strings(keywords)
	return &KeywordDetector{keywords: keywords}
}

func (d *KeywordDetector) Detect(ctx context.Context, text string) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lowered := strings.ToLower(text)
	var detections []Detection
	for _, keyword := range d.keywords {
		idx := strings.Index(lowered, keyword)
		if idx < 0 {
			continue
		}
		confidence := substringMatchConfidence
		if isWordBoundary(lowered, idx, len(keyword)) {
			confidence = wordMatchConfidence
		}
		detections = append(detections, Detection{RawName: keyword, Confidence: confidence})
	}
	return detections, nil
}

func isWordBoundary(text string, start, length int) bool {
	if start > 0 && isWordRune(rune(text[start-1])) {
		return false
	}
	end := start + length
	if end < len(text) && isWordRune(rune(text[end])) {
		return false
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
