package types

// PredictionResult is the outcome of one pipeline run. Exactly one of
// Prediction or Error is set.
type PredictionResult struct {
	Prediction Label  `json:"prediction,omitempty"`
	CacheHit   bool   `json:"cache_hit"`
	Error      string `json:"error,omitempty"`
}

func (r PredictionResult) Failed() bool { return r.Error != "" }

// AuditRecord is one line of the audit log.
type AuditRecord struct {
	Timestamp  string `json:"timestamp"`
	Level      string `json:"level"`
	Source     string `json:"source"`
	Worker     string `json:"worker"`
	IP         string `json:"ip"`
	Payload    string `json:"payload"`
	Prediction Label  `json:"prediction,omitempty"`
	CacheHit   bool   `json:"cache_hit"`
	Event      string `json:"event,omitempty"`
	Error      string `json:"error,omitempty"`
	Reason     string `json:"reason,omitempty"`
}
