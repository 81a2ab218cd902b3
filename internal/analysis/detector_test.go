package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordDetectorWordMatch(t *testing.T) {
	detector := NewKeywordDetector("hammer", "drill press")

	detections, err := detector.Detect(context.Background(), "Loving my new Hammer for deck work")
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Equal(t, "hammer", detections[0].RawName)
	assert.GreaterOrEqual(t, detections[0].Confidence, MinConfidence)
}

func TestKeywordDetectorSubstringBelowGate(t *testing.T) {
	detector := NewKeywordDetector("saw")

	// "sawdust" contains "saw" but not as a whole word; confidence must
	// stay under the acceptance gate.
	detections, err := detector.Detect(context.Background(), "the workshop is full of sawdust")
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Less(t, detections[0].Confidence, MinConfidence)
}

func TestKeywordDetectorNoMatch(t *testing.T) {
	detector := NewKeywordDetector("hammer")

	detections, err := detector.Detect(context.Background(), "nothing relevant here")
	require.NoError(t, err)
	assert.Empty(t, detections)
}

func TestKeywordDetectorMultiWordName(t *testing.T) {
	detector := NewKeywordDetector("drill press")

	detections, err := detector.Detect(context.Background(), "bought a drill press yesterday")
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Equal(t, "drill press", detections[0].RawName)
	assert.GreaterOrEqual(t, detections[0].Confidence, MinConfidence)
}

func TestKeywordDetectorDeduplicatesNames(t *testing.T) {
	detector := NewKeywordDetector("Hammer", "hammer", " HAMMER ")

	detections, err := detector.Detect(context.Background(), "hammer time")
	require.NoError(t, err)
	assert.Len(t, detections, 1)
}
