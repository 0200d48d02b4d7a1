package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/database"
	"github.com/taskwell/mailroom/internal/models"
)

type Repositories struct {
	InboxRepository           interfaces.InboxRepository
	RuleRepository            interfaces.RuleRepository
	IngestionRecordRepository interfaces.IngestionRecordRepository
	SyncStateRepository       interfaces.SyncStateRepository
	LeaseRepository           interfaces.LeaseRepository
	TaskRepository            interfaces.TaskRepository
	ReplyTemplateRepository   interfaces.ReplyTemplateRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		InboxRepository:           NewInboxRepository(db),
		RuleRepository:            NewRuleRepository(db),
		IngestionRecordRepository: NewIngestionRecordRepository(db),
		SyncStateRepository:       NewSyncStateRepository(db),
		LeaseRepository:           NewLeaseRepository(db),
		TaskRepository:            NewTaskRepository(db),
		ReplyTemplateRepository:   NewReplyTemplateRepository(db),
	}
}

func MigrateDB(dbConfig *database.DatabaseConfig, gormDB *gorm.DB) error {
	db, err := gormDB.DB()
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(5)

	err = gormDB.AutoMigrate(
		&models.Inbox{},
		&models.Rule{},
		&models.IngestionRecord{},
		&models.InboxSyncState{},
		&models.InboxLease{},
		&models.Task{},
		&models.ReplyTemplate{},
	)
	if err != nil {
		return err
	}

	db.SetMaxIdleConns(dbConfig.MaxIdleConn)
	db.SetMaxOpenConns(dbConfig.MaxConn)
	db.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return nil
}
