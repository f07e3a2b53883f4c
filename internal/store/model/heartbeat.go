package model

import "time"

// HeartbeatID is the primary key of the singleton heartbeat row.
const HeartbeatID = 1

type Heartbeat struct {
	ID                 int `gorm:"primaryKey"`
	LastSeen           time.Time
	StartedAt          time.Time
	DocumentsProcessed int64
	FlagsRaised        int64
}

func (Heartbeat) TableName() string {
	return "agent_heartbeat"
}
