package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"ticket-settlement/utils"
)

// Job is the envelope every settlement queue entry travels in. Payload holds
// the type-specific wire contract untouched so redelivery is byte-stable.
type Job struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	MaxRetries int             `json:"max_retries"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewJob wraps payload for the given job type.
func NewJob(jobType string, payload any) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", jobType, err)
	}

	id, err := utils.GenerateAccessKey(8)
	if err != nil {
		return nil, err
	}

	return &Job{
		ID:        id,
		Type:      jobType,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}
