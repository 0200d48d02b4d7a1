package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/internal/tracing"
)

type syncStateRepository struct {
	db *gorm.DB
}

func NewSyncStateRepository(db *gorm.DB) interfaces.SyncStateRepository {
	return &syncStateRepository{db: db}
}

// GetSyncState retrieves the sync state for a specific inbox and folder
func (r *syncStateRepository) GetSyncState(ctx context.Context, inboxID, folderName string) (*models.InboxSyncState, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.GetSyncState")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var state models.InboxSyncState
	result := r.db.WithContext(ctx).
		Where("inbox_id = ? AND folder_name = ?", inboxID, folderName).
		First(&state)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil // No sync state yet
		}
		tracing.TraceErr(span, result.Error)
		return nil, fmt.Errorf("failed to get sync state: %w", result.Error)
	}

	return &state, nil
}

// SaveSyncState advances the UID low-water mark for an inbox folder. The mark
// never moves backwards: an update carrying a lower UID than the stored one
// leaves the row untouched.
func (r *syncStateRepository) SaveSyncState(ctx context.Context, state *models.InboxSyncState) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.SaveSyncState")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	state.LastSync = time.Now()

	result := r.db.WithContext(ctx).
		Model(&models.InboxSyncState{}).
		Where("inbox_id = ? AND folder_name = ? AND last_uid <= ?", state.InboxID, state.FolderName, state.LastUID).
		Updates(map[string]interface{}{
			"last_uid":   state.LastUID,
			"last_sync":  state.LastSync,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to save sync state: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		// Either no row exists yet, or the stored mark is already ahead.
		var existing models.InboxSyncState
		lookup := r.db.WithContext(ctx).
			Where("inbox_id = ? AND folder_name = ?", state.InboxID, state.FolderName).
			First(&existing)
		if lookup.Error == gorm.ErrRecordNotFound {
			if err := r.db.WithContext(ctx).Create(state).Error; err != nil {
				tracing.TraceErr(span, err)
				return fmt.Errorf("failed to save sync state: %w", err)
			}
			return nil
		}
		if lookup.Error != nil {
			tracing.TraceErr(span, lookup.Error)
			return fmt.Errorf("failed to save sync state: %w", lookup.Error)
		}
		// Stored mark is ahead; keep it.
	}

	return nil
}

// DeleteInboxSyncStates deletes all sync states for an inbox
func (r *syncStateRepository) DeleteInboxSyncStates(ctx context.Context, inboxID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.DeleteInboxSyncStates")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Where("inbox_id = ?", inboxID).
		Delete(&models.InboxSyncState{})

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to delete inbox sync states: %w", result.Error)
	}

	return nil
}
