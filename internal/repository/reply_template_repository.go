package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/taskwell/mailroom/interfaces"
	er "github.com/taskwell/mailroom/internal/errors"
	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/internal/tracing"
)

type replyTemplateRepository struct {
	db *gorm.DB
}

func NewReplyTemplateRepository(db *gorm.DB) interfaces.ReplyTemplateRepository {
	return &replyTemplateRepository{db: db}
}

func (r *replyTemplateRepository) GetTemplate(ctx context.Context, id string) (*models.ReplyTemplate, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "replyTemplateRepository.GetTemplate")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var template models.ReplyTemplate
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&template)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, er.ErrTemplateNotFound
		}
		tracing.TraceErr(span, result.Error)
		return nil, result.Error
	}
	return &template, nil
}
