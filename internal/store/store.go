package store

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/biovault/document-agent/internal/store/model"
)

type Store interface {
	Document() Document
	StageResult() StageResult
	SafetyFlag() SafetyFlag
	Heartbeat() Heartbeat
	Activity() Activity
	InitialMigration() error
	Close() error
}

type DataStore struct {
	db          *gorm.DB
	document    Document
	stageResult StageResult
	safetyFlag  SafetyFlag
	heartbeat   Heartbeat
	activity    Activity
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:          db,
		document:    NewDocument(db),
		stageResult: NewStageResult(db),
		safetyFlag:  NewSafetyFlag(db),
		heartbeat:   NewHeartbeat(db),
		activity:    NewActivity(db),
	}
}

func (s *DataStore) Document() Document {
	return s.document
}

func (s *DataStore) StageResult() StageResult {
	return s.stageResult
}

func (s *DataStore) SafetyFlag() SafetyFlag {
	return s.safetyFlag
}

func (s *DataStore) Heartbeat() Heartbeat {
	return s.heartbeat
}

func (s *DataStore) Activity() Activity {
	return s.activity
}

// InitialMigration creates the schema and seeds the singleton heartbeat row.
func (s *DataStore) InitialMigration() error {
	if err := s.db.AutoMigrate(
		&model.Document{},
		&model.StageResult{},
		&model.SafetyFlag{},
		&model.Heartbeat{},
		&model.ActivityEntry{},
	); err != nil {
		return err
	}

	now := time.Now().UTC()
	heartbeat := model.Heartbeat{
		ID:        model.HeartbeatID,
		LastSeen:  now,
		StartedAt: now,
	}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&heartbeat).Error
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
