package migrations

import (
	"github.com/bracketline/notify-engine/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createUsersTable(),
		createSubscriptionsTable(),
		createNotificationLogTable(),
	})

	return m.Migrate()
}

func createUsersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_users",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.UserModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_discord_id ON users (discord_id) WHERE discord_id IS NOT NULL`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.UserModel{})
		},
	}
}

func createSubscriptionsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_subscriptions",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.SubscriptionModel{}); err != nil {
				return err
			}
			// Two partial indexes stand in for one unique constraint:
			// Postgres treats NULLs as distinct, which would let a user hold
			// several "global" subscriptions for the same event and method.
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_tuple ON subscriptions (user_id, event_type, method, organization_id) WHERE organization_id IS NOT NULL`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_tuple_global ON subscriptions (user_id, event_type, method) WHERE organization_id IS NULL`,
				`CREATE INDEX IF NOT EXISTS idx_subscriptions_event_active ON subscriptions (event_type) WHERE is_active`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.SubscriptionModel{})
		},
	}
}

func createNotificationLogTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_notification_log",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.NotificationLogModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_notification_log_dispatchable ON notification_log (created_at) WHERE delivery_status IN ('PENDING', 'RETRYING')`,
				`CREATE INDEX IF NOT EXISTS idx_notification_log_user ON notification_log (user_id, created_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationLogModel{})
		},
	}
}
