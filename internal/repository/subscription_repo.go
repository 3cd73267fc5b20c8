package repository

import (
	"context"
	"errors"

	"github.com/bracketline/notify-engine/internal/domain"
	"gorm.io/gorm"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, s *domain.Subscription) error
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
	// FindByTuple returns the subscription matching the exact
	// (user, event type, method, organization) tuple regardless of its
	// active flag, or ErrNotFound.
	FindByTuple(ctx context.Context, userID string, eventType domain.EventType, method domain.DeliveryMethod, organizationID *string) (*domain.Subscription, error)
	// ListByUser returns the user's active subscriptions, optionally
	// filtered to one organization at the storage layer.
	ListByUser(ctx context.Context, userID string, organizationID *string) ([]domain.Subscription, error)
	// ListActiveForEvent returns every active subscription for the event
	// type whose scope covers the given organization: rows scoped to that
	// organization plus global (NULL organization) rows. A nil organization
	// matches global rows only.
	ListActiveForEvent(ctx context.Context, eventType domain.EventType, organizationID *string) ([]domain.Subscription, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}

type GormSubscriptionRepo struct {
	db *gorm.DB
}

func NewGormSubscriptionRepo(db *gorm.DB) *GormSubscriptionRepo {
	return &GormSubscriptionRepo{db: db}
}

func (r *GormSubscriptionRepo) Create(ctx context.Context, s *domain.Subscription) error {
	model := subscriptionModelFromDomain(s)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if s != nil {
		*s = *subscriptionModelToDomain(model)
	}
	return nil
}

func (r *GormSubscriptionRepo) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	var model SubscriptionModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return subscriptionModelToDomain(&model), nil
}

func (r *GormSubscriptionRepo) FindByTuple(
	ctx context.Context,
	userID string,
	eventType domain.EventType,
	method domain.DeliveryMethod,
	organizationID *string,
) (*domain.Subscription, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND event_type = ? AND method = ?", userID, eventType, method)
	if organizationID == nil {
		query = query.Where("organization_id IS NULL")
	} else {
		query = query.Where("organization_id = ?", *organizationID)
	}

	var model SubscriptionModel
	err := query.First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return subscriptionModelToDomain(&model), nil
}

func (r *GormSubscriptionRepo) ListByUser(ctx context.Context, userID string, organizationID *string) ([]domain.Subscription, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true)
	if organizationID != nil {
		query = query.Where("organization_id = ?", *organizationID)
	}

	var models []SubscriptionModel
	if err := query.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	subscriptions := make([]domain.Subscription, 0, len(models))
	for i := range models {
		subscriptions = append(subscriptions, *subscriptionModelToDomain(&models[i]))
	}

	return subscriptions, nil
}

func (r *GormSubscriptionRepo) ListActiveForEvent(
	ctx context.Context,
	eventType domain.EventType,
	organizationID *string,
) ([]domain.Subscription, error) {
	query := r.db.WithContext(ctx).
		Where("event_type = ? AND is_active = ?", eventType, true)
	if organizationID == nil {
		query = query.Where("organization_id IS NULL")
	} else {
		query = query.Where("organization_id IS NULL OR organization_id = ?", *organizationID)
	}

	var models []SubscriptionModel
	if err := query.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	subscriptions := make([]domain.Subscription, 0, len(models))
	for i := range models {
		subscriptions = append(subscriptions, *subscriptionModelToDomain(&models[i]))
	}

	return subscriptions, nil
}

func (r *GormSubscriptionRepo) SetActive(ctx context.Context, id string, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&SubscriptionModel{}).
		Where("id = ?", id).
		Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormSubscriptionRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&SubscriptionModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
