package amqp

import (
	"encoding/json"
	"errors"
	"fmt"

	"budgetcast/internal/core"
)

// RunCompletedType is the AMQP type header of journal messages.
const RunCompletedType = "forecast.run.completed"

// ErrMalformedMessage marks a body that can never be processed.
var ErrMalformedMessage = errors.New("malformed forecast run message")

// EncodeRun converts a run summary to the JSON message body
func EncodeRun(s core.RunSummary) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeRun parses a message body and checks that it identifies a run
func DecodeRun(data []byte) (core.RunSummary, error) {
	var s core.RunSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return core.RunSummary{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if s.ID == "" {
		return core.RunSummary{}, fmt.Errorf("%w: missing id", ErrMalformedMessage)
	}
	if s.Horizon <= 0 {
		return core.RunSummary{}, fmt.Errorf("%w: invalid horizon %d", ErrMalformedMessage, s.Horizon)
	}
	return s, nil
}
