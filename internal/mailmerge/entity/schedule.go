package entity

import "time"

type ScheduleStatus int16

const (
	ScheduleStatusUnknown   ScheduleStatus = 0
	ScheduleStatusPending   ScheduleStatus = 1
	ScheduleStatusRunning   ScheduleStatus = 2
	ScheduleStatusCancelled ScheduleStatus = 3
)

func (s ScheduleStatus) String() string {
	switch s {
	case ScheduleStatusPending:
		return "pending"
	case ScheduleStatusRunning:
		return "running"
	case ScheduleStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type Schedule struct {
	ID     string
	SendAt time.Time
	Status ScheduleStatus
}
