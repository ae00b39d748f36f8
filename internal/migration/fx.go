package migration

import (
	auditdomain "github.com/repartia/treasury/internal/audit/domain"
	"github.com/repartia/treasury/internal/config"
	directorydomain "github.com/repartia/treasury/internal/directory/domain"
	expensedomain "github.com/repartia/treasury/internal/expense/domain"
	historydomain "github.com/repartia/treasury/internal/history/domain"
	invoicedomain "github.com/repartia/treasury/internal/invoice/domain"
	paymentdomain "github.com/repartia/treasury/internal/payment/domain"
	ratingdomain "github.com/repartia/treasury/internal/rating/domain"
	"github.com/repartia/treasury/internal/seed"
	taxvaultdomain "github.com/repartia/treasury/internal/taxvault/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// mysql and sqlite deployments rely on the model schema instead
			// of the versioned postgres migrations.
			if err := conn.AutoMigrate(
				&directorydomain.Issuer{},
				&directorydomain.Customer{},
				&invoicedomain.Invoice{},
				&paymentdomain.PaymentReceipt{},
				&taxvaultdomain.VaultEntry{},
				&expensedomain.Expense{},
				&ratingdomain.RatingRange{},
				&historydomain.DeliveryRecord{},
				&auditdomain.AuditLog{},
			); err != nil {
				return err
			}
		}

		return seed.EnsureDefaultRanges(conn)
	}),
)
