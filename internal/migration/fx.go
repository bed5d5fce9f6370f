package migration

import (
	auditdomain "github.com/propbase/propbase/internal/audit/domain"
	"github.com/propbase/propbase/internal/config"
	identitydomain "github.com/propbase/propbase/internal/identity/domain"
	propertydomain "github.com/propbase/propbase/internal/property/domain"
	requestlogdomain "github.com/propbase/propbase/internal/requestlog/domain"
	"github.com/propbase/propbase/internal/seed"
	tokendomain "github.com/propbase/propbase/internal/token/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "sqlite" {
			if err := autoMigrate(conn); err != nil {
				return err
			}
		} else {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB, cfg.DBType); err != nil {
				return err
			}
		}
		return seed.Ensure(conn, cfg)
	}),
)

func autoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&identitydomain.User{},
		&identitydomain.Role{},
		&identitydomain.Permission{},
		&identitydomain.UserRole{},
		&identitydomain.RolePermission{},
		&tokendomain.Token{},
		&propertydomain.Property{},
		&propertydomain.Amenity{},
		&propertydomain.PropertyAmenity{},
		&propertydomain.Media{},
		&propertydomain.Certification{},
		&propertydomain.Connectivity{},
		&auditdomain.AuditLog{},
		&requestlogdomain.RequestLog{},
	)
}
