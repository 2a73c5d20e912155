package event

import "time"

const BatchCompletedDestination string = "mailmerge.batch.completed"

type BatchCompletedMessage struct {
	BatchID    string    `json:"batch_id"`
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	Attempted  int       `json:"attempted"`
	Sent       int       `json:"sent"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	FinishedAt time.Time `json:"finished_at"`
}
