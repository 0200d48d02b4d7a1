package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/enum"
	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/internal/tracing"
)

type ingestionRecordRepository struct {
	db *gorm.DB
}

func NewIngestionRecordRepository(db *gorm.DB) interfaces.IngestionRecordRepository {
	return &ingestionRecordRepository{db: db}
}

// GetRecord looks up the processing record for (inbox, messageId)
func (r *ingestionRecordRepository) GetRecord(ctx context.Context, inboxID, messageID string) (*models.IngestionRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestionRecordRepository.GetRecord")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var record models.IngestionRecord
	result := r.db.WithContext(ctx).
		Where("inbox_id = ? AND message_id = ?", inboxID, messageID).
		First(&record)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		tracing.TraceErr(span, result.Error)
		return nil, result.Error
	}
	return &record, nil
}

// CreateRecord inserts a new processing record. The unique index on
// (inbox_id, message_id) makes a concurrent duplicate insert fail; callers
// treat that as "someone else got here first" and re-read.
func (r *ingestionRecordRepository) CreateRecord(ctx context.Context, record *models.IngestionRecord) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestionRecordRepository.CreateRecord")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Create(record).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// UpdateRecord persists stage/status transitions
func (r *ingestionRecordRepository) UpdateRecord(ctx context.Context, record *models.IngestionRecord) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestionRecordRepository.UpdateRecord")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Save(record).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// ClaimAutoReply stamps auto_reply_sent_at if and only if it is still null.
// The conditional update is the at-most-once guard for reply sends: a retry
// of a crashed run finds the stamp and skips the send.
func (r *ingestionRecordRepository) ClaimAutoReply(ctx context.Context, recordID string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestionRecordRepository.ClaimAutoReply")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("record.id", recordID)

	result := r.db.WithContext(ctx).
		Model(&models.IngestionRecord{}).
		Where("id = ? AND auto_reply_sent_at IS NULL", recordID).
		Updates(map[string]interface{}{
			"auto_reply_sent_at": time.Now(),
			"updated_at":         time.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// GetFailedRecords returns failed records still under the attempt budget,
// oldest first. These are the messages the next poll cycles will refetch.
func (r *ingestionRecordRepository) GetFailedRecords(ctx context.Context, inboxID string, maxAttempts int) ([]*models.IngestionRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestionRecordRepository.GetFailedRecords")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("inbox.id", inboxID)

	var records []*models.IngestionRecord
	err := r.db.WithContext(ctx).
		Where("inbox_id = ? AND status = ? AND attempts < ?", inboxID, enum.IngestionFailed, maxAttempts).
		Order("imap_uid ASC").
		Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return records, nil
}
