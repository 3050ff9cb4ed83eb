package notify

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueNotify carries push and email deliveries.
	QueueNotify = "notify"
	// TaskPush delivers a lifecycle notification to the push webhook.
	TaskPush = "notify:push"
	// TaskEmail delivers a lifecycle notification by email.
	TaskEmail = "notify:email"
)

// Payload is the body shared by push and email tasks.
type Payload struct {
	Kind          string            `json:"kind"`
	TransactionID int64             `json:"transaction_id"`
	Number        string            `json:"number"`
	Event         Event             `json:"event"`
	Title         string            `json:"title"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// NewPushTask constructs a notify:push task.
func NewPushTask(payload Payload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPush, data, asynq.Queue(QueueNotify), asynq.MaxRetry(5)), nil
}

// NewEmailTask constructs a notify:email task.
func NewEmailTask(payload Payload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEmail, data, asynq.Queue(QueueNotify), asynq.MaxRetry(5)), nil
}

// DecodePayload parses a task body.
func DecodePayload(t *asynq.Task) (Payload, error) {
	var payload Payload
	err := json.Unmarshal(t.Payload(), &payload)
	return payload, err
}
