package queue

import (
	"encoding/json"
	"errors"
	"fmt"
)

type TaskType string

const (
	// TaskPurge deletes hosted binaries that no longer have a photo record.
	TaskPurge TaskType = "purge"
	// TaskRetention deletes events that expired long enough ago, together
	// with their binaries.
	TaskRetention TaskType = "retention"
)

type Task struct {
	Type      TaskType `json:"type"`
	EventID   string   `json:"eventId,omitempty"`
	EventCode string   `json:"eventCode,omitempty"`
	PublicIDs []string `json:"publicIds,omitempty"`
}

var ErrMalformedTask = errors.New("malformed task")

const payloadField = "payload"

func (t Task) values() (map[string]any, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":       string(t.Type),
		payloadField: string(raw),
	}, nil
}

// DecodeTask reads a task back from stream message values.
func DecodeTask(values map[string]any) (Task, error) {
	raw, ok := values[payloadField].(string)
	if !ok || raw == "" {
		return Task{}, fmt.Errorf("%w: missing payload", ErrMalformedTask)
	}
	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrMalformedTask, err)
	}
	if task.Type == "" {
		return Task{}, fmt.Errorf("%w: missing type", ErrMalformedTask)
	}
	return task, nil
}
