package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/enum"
	er "github.com/taskwell/mailroom/internal/errors"
	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/internal/tracing"
)

type inboxRepository struct {
	db *gorm.DB
}

func NewInboxRepository(db *gorm.DB) interfaces.InboxRepository {
	return &inboxRepository{db: db}
}

// GetInboxes returns all registered inboxes
func (r *inboxRepository) GetInboxes(ctx context.Context) ([]*models.Inbox, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "inboxRepository.GetInboxes")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var inboxes []*models.Inbox
	err := r.db.WithContext(ctx).Find(&inboxes).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return inboxes, nil
}

// GetInbox returns a single inbox by ID
func (r *inboxRepository) GetInbox(ctx context.Context, id string) (*models.Inbox, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "inboxRepository.GetInbox")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("inbox.id", id)

	var inbox models.Inbox
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&inbox).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, er.ErrInboxNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &inbox, nil
}

// SaveInbox creates or updates an inbox registration
func (r *inboxRepository) SaveInbox(ctx context.Context, inbox *models.Inbox) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "inboxRepository.SaveInbox")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.LogObjectAsJson(span, "inbox", inbox)

	err := r.db.WithContext(ctx).Save(inbox).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// DeleteInbox soft-deletes an inbox
func (r *inboxRepository) DeleteInbox(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "inboxRepository.DeleteInbox")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("inbox.id", id)

	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Inbox{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return er.ErrInboxNotFound
	}
	return nil
}

// UpdateConnectionStatus records the outcome of the last connection attempt
func (r *inboxRepository) UpdateConnectionStatus(ctx context.Context, id string, status enum.ConnectionStatus, errorMessage string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "inboxRepository.UpdateConnectionStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("inbox.id", id)

	err := r.db.WithContext(ctx).
		Model(&models.Inbox{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"connection_status": status,
			"error_message":     errorMessage,
			"updated_at":        time.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// UpdateLastPolledAt stamps a completed poll cycle
func (r *inboxRepository) UpdateLastPolledAt(ctx context.Context, id string, at time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "inboxRepository.UpdateLastPolledAt")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Model(&models.Inbox{}).
		Where("id = ?", id).
		Update("last_polled_at", at).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
