package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/taskwell/mailroom/interfaces"
	"github.com/taskwell/mailroom/internal/models"
	"github.com/taskwell/mailroom/internal/tracing"
)

type taskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) interfaces.TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) GetTask(ctx context.Context, id string) (*models.Task, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "taskRepository.GetTask")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var task models.Task
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&task)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		tracing.TraceErr(span, result.Error)
		return nil, result.Error
	}
	return &task, nil
}

func (r *taskRepository) CreateTask(ctx context.Context, task *models.Task) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "taskRepository.CreateTask")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.LogObjectAsJson(span, "task", task)

	err := r.db.WithContext(ctx).Create(task).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *taskRepository) UpdateTask(ctx context.Context, task *models.Task) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "taskRepository.UpdateTask")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, task.ID)

	err := r.db.WithContext(ctx).Save(task).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
