package twinsync

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// An ImportJob describes one import: where the exported document lives, and
// which workspace and default component type to populate.
type ImportJob struct {
	OutputBucket string `json:"outputBucket" validate:"required"`
	OutputPath   string `json:"outputPath" validate:"required"`
	WorkspaceID  string `json:"workspaceId" validate:"required,max=128"`
	// ComponentTypeID names the component type instantiated by records that do
	// not name one themselves. Empty means such records carry no components.
	ComponentTypeID string `json:"componentTypeId,omitempty" validate:"omitempty,max=256"`
	// RoleARN is the execution role of a new workspace. Empty means the role of
	// the caller's identity.
	RoleARN string `json:"iottwinmakerRoleArn,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports missing or malformed job fields.
func (j ImportJob) Validate() error {
	if err := validate.Struct(j); err != nil {
		return fmt.Errorf("invalid import job: %w", err)
	}
	return nil
}

// DecodeJob decodes and validates an import job from JSON.
//
// It accepts the job object itself, or an event envelope carrying the job in
// its "body" field either as an object or as a JSON-encoded string.
func DecodeJob(p []byte) (ImportJob, error) {
	var envelope struct {
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(p, &envelope); err != nil {
		return ImportJob{}, fmt.Errorf("decode job: %w", err)
	}
	payload := p
	if body := bytes.TrimSpace(envelope.Body); len(body) > 0 && !bytes.Equal(body, []byte("null")) {
		payload = body
		if body[0] == '"' {
			var s string
			if err := json.Unmarshal(body, &s); err != nil {
				return ImportJob{}, fmt.Errorf("decode job body: %w", err)
			}
			payload = []byte(s)
		}
	}

	var job ImportJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return ImportJob{}, fmt.Errorf("decode job: %w", err)
	}
	if err := job.Validate(); err != nil {
		return ImportJob{}, err
	}
	return job, nil
}
