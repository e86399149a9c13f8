package types

import "time"

// RequestDescriptor describes one HTTP request to classify. It is built per
// incoming API call or log message and never persisted.
type RequestDescriptor struct {
	Method string `json:"method" validate:"required"`
	URL    string `json:"url" validate:"required"`
	// Body is a raw string, a decoded JSON mapping, or nil.
	Body any `json:"body,omitempty"`
}

// PredictRequest is the body of POST /predict.
type PredictRequest struct {
	Payload *RequestDescriptor `json:"payload" validate:"required"`
}

// LogEvent is a message published on the HTTP log channel by the edge proxy.
type LogEvent struct {
	IPAddress   string `json:"ip_address,omitempty"`
	IP          string `json:"ip,omitempty"`
	Method      string `json:"method"`
	URL         string `json:"url"`
	PayloadData any    `json:"payloadData,omitempty"`
	Payload     any    `json:"payload,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// ClientIP returns the first non-empty address field.
func (e *LogEvent) ClientIP() string {
	if e.IPAddress != "" {
		return e.IPAddress
	}
	if e.IP != "" {
		return e.IP
	}
	return "unknown"
}

// Body returns payloadData, falling back to payload.
func (e *LogEvent) Body() any {
	if !isEmpty(e.PayloadData) {
		return e.PayloadData
	}
	return e.Payload
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case map[string]any:
		return len(x) == 0
	case []any:
		return len(x) == 0
	}
	return false
}

// Task is a queued classification job.
type Task struct {
	ID         string            `json:"id"`
	Status     TaskStatus        `json:"status"`
	Request    RequestDescriptor `json:"request"`
	ClientIP   string            `json:"client_ip"`
	Result     *PredictionResult `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	EndedAt    *time.Time        `json:"ended_at,omitempty"`
}

type TaskStatus string

const (
	TaskQueued   TaskStatus = "queued"
	TaskStarted  TaskStatus = "started"
	TaskFinished TaskStatus = "finished"
	TaskFailed   TaskStatus = "failed"
)
