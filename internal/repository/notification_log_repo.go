package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bracketline/notify-engine/internal/domain"
	"gorm.io/gorm"
)

type ListParams struct {
	Status    *domain.DeliveryStatus
	EventType *domain.EventType
	UserID    *string
	Page      int
	PageSize  int
}

type NotificationLogRepository interface {
	Create(ctx context.Context, n *domain.NotificationLog) error
	CreateBatch(ctx context.Context, rows []*domain.NotificationLog) error
	GetByID(ctx context.Context, id string) (*domain.NotificationLog, error)
	// FetchDispatchable returns up to limit PENDING or RETRYING rows,
	// oldest-created first, with the owning user preloaded.
	FetchDispatchable(ctx context.Context, limit int) ([]domain.NotificationLog, error)
	// Update persists the row's delivery outcome fields by primary key.
	Update(ctx context.Context, n *domain.NotificationLog) error
	// CloseOut finalizes a non-terminal row out-of-band and reports whether
	// a row was actually updated. Terminal rows are left untouched.
	CloseOut(ctx context.Context, id string, status domain.DeliveryStatus, errorMessage *string, sentAt time.Time) (bool, error)
	List(ctx context.Context, params ListParams) ([]domain.NotificationLog, int64, error)
}

type GormNotificationLogRepo struct {
	db *gorm.DB
}

func NewGormNotificationLogRepo(db *gorm.DB) *GormNotificationLogRepo {
	return &GormNotificationLogRepo{db: db}
}

func (r *GormNotificationLogRepo) Create(ctx context.Context, n *domain.NotificationLog) error {
	model := notificationLogModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		*n = *notificationLogModelToDomain(model)
	}
	return nil
}

func (r *GormNotificationLogRepo) CreateBatch(ctx context.Context, rows []*domain.NotificationLog) error {
	models := make([]NotificationLogModel, 0, len(rows))
	modelIndexes := make([]int, 0, len(rows))
	for i, n := range rows {
		model := notificationLogModelFromDomain(n)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&models, 100).Error; err != nil {
		return err
	}

	for i := range models {
		idx := modelIndexes[i]
		if idx < len(rows) && rows[idx] != nil {
			*rows[idx] = *notificationLogModelToDomain(&models[i])
		}
	}

	return nil
}

func (r *GormNotificationLogRepo) GetByID(ctx context.Context, id string) (*domain.NotificationLog, error) {
	var model NotificationLogModel
	err := r.db.WithContext(ctx).Preload("User").First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationLogModelToDomain(&model), nil
}

func (r *GormNotificationLogRepo) FetchDispatchable(ctx context.Context, limit int) ([]domain.NotificationLog, error) {
	var models []NotificationLogModel
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("delivery_status IN ?", []domain.DeliveryStatus{domain.StatusPending, domain.StatusRetrying}).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	rows := make([]domain.NotificationLog, 0, len(models))
	for i := range models {
		rows = append(rows, *notificationLogModelToDomain(&models[i]))
	}

	return rows, nil
}

func (r *GormNotificationLogRepo) Update(ctx context.Context, n *domain.NotificationLog) error {
	if n == nil {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&NotificationLogModel{}).
		Where("id = ?", n.ID).
		Updates(map[string]any{
			"delivery_status": n.Status,
			"error_message":   n.ErrorMessage,
			"retry_count":     n.RetryCount,
			"sent_at":         n.SentAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationLogRepo) CloseOut(
	ctx context.Context,
	id string,
	status domain.DeliveryStatus,
	errorMessage *string,
	sentAt time.Time,
) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationLogModel{}).
		Where("id = ? AND delivery_status IN ?", id, []domain.DeliveryStatus{domain.StatusPending, domain.StatusRetrying}).
		Updates(map[string]any{
			"delivery_status": status,
			"error_message":   errorMessage,
			"sent_at":         sentAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormNotificationLogRepo) List(ctx context.Context, params ListParams) ([]domain.NotificationLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&NotificationLogModel{})

	if params.Status != nil {
		query = query.Where("delivery_status = ?", *params.Status)
	}
	if params.EventType != nil {
		query = query.Where("event_type = ?", *params.EventType)
	}
	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []NotificationLogModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	rows := make([]domain.NotificationLog, 0, len(models))
	for i := range models {
		rows = append(rows, *notificationLogModelToDomain(&models[i]))
	}

	return rows, total, nil
}
