package events

import (
	"encoding/json"
	"fmt"

	"github.com/devpulse/sentiment-api/internal/models"
)

// Decode parses a raw queue message into a lifecycle event envelope.
func Decode(body []byte) (models.EventEnvelope, error) {
	var env models.EventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("event envelope has no type")
	}
	return env, nil
}

func DecodeToolCreated(env models.EventEnvelope) (models.ToolCreatedEvent, error) {
	var evt models.ToolCreatedEvent
	err := decodePayload(env, &evt)
	return evt, err
}

func DecodeToolStatusChanged(env models.EventEnvelope) (models.ToolStatusChangedEvent, error) {
	var evt models.ToolStatusChangedEvent
	err := decodePayload(env, &evt)
	return evt, err
}

func DecodeToolMerged(env models.EventEnvelope) (models.ToolMergedEvent, error) {
	var evt models.ToolMergedEvent
	err := decodePayload(env, &evt)
	return evt, err
}

func decodePayload(env models.EventEnvelope, target interface{}) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", env.Type, err)
	}
	return nil
}

// Encode wraps a typed payload into an envelope ready for publishing.
func Encode(eventType string, payload interface{}) (models.EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.EventEnvelope{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return models.EventEnvelope{Type: eventType, Payload: raw}, nil
}
