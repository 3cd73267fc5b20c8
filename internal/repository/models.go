package repository

import (
	"time"

	"github.com/bracketline/notify-engine/internal/domain"
	"gorm.io/datatypes"
)

// UserModel is the persistence model for the users table.
type UserModel struct {
	ID        string  `gorm:"type:uuid;primaryKey"`
	Username  string  `gorm:"type:varchar(100);not null"`
	Email     string  `gorm:"type:varchar(255);not null"`
	DiscordID *string `gorm:"type:varchar(32)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserModel) TableName() string {
	return "users"
}

// SubscriptionModel is the persistence model for the subscriptions table.
// Uniqueness of (user, event type, method, organization) is enforced by
// partial indexes created in the migrations, because NULL organizations need
// their own index to collapse into one logical tuple.
type SubscriptionModel struct {
	ID             string                `gorm:"type:uuid;primaryKey"`
	UserID         string                `gorm:"type:uuid;not null"`
	EventType      domain.EventType      `gorm:"type:varchar(30);not null"`
	Method         domain.DeliveryMethod `gorm:"type:varchar(10);not null"`
	OrganizationID *string               `gorm:"type:uuid"`
	IsActive       bool                  `gorm:"not null;default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// NotificationLogModel is the persistence model for the notification_log table.
type NotificationLogModel struct {
	ID           string                `gorm:"type:uuid;primaryKey"`
	UserID       string                `gorm:"type:uuid;not null"`
	EventType    domain.EventType      `gorm:"type:varchar(30);not null"`
	Method       domain.DeliveryMethod `gorm:"type:varchar(10);not null"`
	EventData    datatypes.JSONMap     `gorm:"type:jsonb"`
	Status       domain.DeliveryStatus `gorm:"type:varchar(10);not null;column:delivery_status"`
	ErrorMessage *string               `gorm:"type:text"`
	RetryCount   int                   `gorm:"not null;default:0"`
	CreatedAt    time.Time
	SentAt       *time.Time
	UpdatedAt    time.Time

	User *UserModel `gorm:"foreignKey:UserID"`
}

func (NotificationLogModel) TableName() string {
	return "notification_log"
}

func userModelToDomain(m *UserModel) *domain.User {
	if m == nil {
		return nil
	}

	return &domain.User{
		ID:        m.ID,
		Username:  m.Username,
		Email:     m.Email,
		DiscordID: m.DiscordID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func userModelFromDomain(u *domain.User) *UserModel {
	if u == nil {
		return nil
	}

	return &UserModel{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		DiscordID: u.DiscordID,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func subscriptionModelFromDomain(s *domain.Subscription) *SubscriptionModel {
	if s == nil {
		return nil
	}

	return &SubscriptionModel{
		ID:             s.ID,
		UserID:         s.UserID,
		EventType:      s.EventType,
		Method:         s.Method,
		OrganizationID: s.OrganizationID,
		IsActive:       s.IsActive,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func subscriptionModelToDomain(m *SubscriptionModel) *domain.Subscription {
	if m == nil {
		return nil
	}

	return &domain.Subscription{
		ID:             m.ID,
		UserID:         m.UserID,
		EventType:      m.EventType,
		Method:         m.Method,
		OrganizationID: m.OrganizationID,
		IsActive:       m.IsActive,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func notificationLogModelFromDomain(n *domain.NotificationLog) *NotificationLogModel {
	if n == nil {
		return nil
	}

	return &NotificationLogModel{
		ID:           n.ID,
		UserID:       n.UserID,
		EventType:    n.EventType,
		Method:       n.Method,
		EventData:    datatypes.JSONMap(n.EventData),
		Status:       n.Status,
		ErrorMessage: n.ErrorMessage,
		RetryCount:   n.RetryCount,
		CreatedAt:    n.CreatedAt,
		SentAt:       n.SentAt,
		UpdatedAt:    n.UpdatedAt,
	}
}

func notificationLogModelToDomain(m *NotificationLogModel) *domain.NotificationLog {
	if m == nil {
		return nil
	}

	return &domain.NotificationLog{
		ID:           m.ID,
		UserID:       m.UserID,
		EventType:    m.EventType,
		Method:       m.Method,
		EventData:    map[string]any(m.EventData),
		Status:       m.Status,
		ErrorMessage: m.ErrorMessage,
		RetryCount:   m.RetryCount,
		CreatedAt:    m.CreatedAt,
		SentAt:       m.SentAt,
		UpdatedAt:    m.UpdatedAt,
		User:         userModelToDomain(m.User),
	}
}
