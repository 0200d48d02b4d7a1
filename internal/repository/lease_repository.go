package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/taskwell/mailroom/interfaces"
	er "github.com/taskwell/mailroom/internal/errors"
	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/internal/tracing"
)

type leaseRepository struct {
	db *gorm.DB
}

func NewLeaseRepository(db *gorm.DB) interfaces.LeaseRepository {
	return &leaseRepository{db: db}
}

// AcquireLease takes the per-inbox lease for owner, or renews it when owner
// already holds it. The upsert only steals a row whose lease has expired, so
// at most one live owner polls an inbox at a time.
func (r *leaseRepository) AcquireLease(ctx context.Context, inboxID, owner string, ttl time.Duration) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "leaseRepository.AcquireLease")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("inbox.id", inboxID)

	now := time.Now()
	lease := models.InboxLease{
		InboxID:   inboxID,
		Owner:     owner,
		ExpiresAt: now.Add(ttl),
		UpdatedAt: now,
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "inbox_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"owner":      owner,
			"expires_at": lease.ExpiresAt,
			"updated_at": now,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("inbox_leases.owner = ? OR inbox_leases.expires_at < ?", owner, now),
		}},
	}).Create(&lease)

	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return er.ErrLeaseHeld
	}
	return nil
}

// ReleaseLease drops the lease if owner still holds it
func (r *leaseRepository) ReleaseLease(ctx context.Context, inboxID, owner string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "leaseRepository.ReleaseLease")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("inbox.id", inboxID)

	err := r.db.WithContext(ctx).
		Where("inbox_id = ? AND owner = ?", inboxID, owner).
		Delete(&models.InboxLease{}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
