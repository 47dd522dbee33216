package models

import "time"

// TaskPayload is the unit of work published for validators: a claimed winning solution
type TaskPayload struct {
	Solution Solution     `json:"solution"`
	Metadata TaskMetadata `json:"metadata"`
}

// TaskMetadata describes when and for which intent a task was produced
type TaskMetadata struct {
	IntentID    string    `json:"intentId"`
	ProcessedAt time.Time `json:"processedAt"`
}
