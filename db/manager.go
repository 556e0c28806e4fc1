package db

import (
	"fmt"

	"github.com/Singhary/chaty/config"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

func dsnFromConfig(dbConf config.DBConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		dbConf.Host, dbConf.Port, dbConf.User, dbConf.Password, dbConf.DBName,
	)
}

// Connect opens the database described by conf.Databases, registers read
// replicas and runs the migrations for the key-value tables.
func Connect(conf *config.ConfigSchema, log *zap.Logger) (*gorm.DB, error) {
	if conf == nil {
		return nil, fmt.Errorf("AppConfig is not loaded")
	}

	var dialector gorm.Dialector
	switch conf.Databases.Driver {
	case "postgres":
		if conf.Databases.Master.Host == "" {
			return nil, fmt.Errorf("master database configuration is missing")
		}
		dialector = postgres.Open(dsnFromConfig(conf.Databases.Master))
	case "sqlite":
		dialector = sqlite.Open(conf.Databases.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown database driver %q", conf.Databases.Driver)
	}

	orm, err := Open(dialector)
	if err != nil {
		return nil, err
	}

	if conf.Databases.Driver == "postgres" && len(conf.Databases.Replicas) > 0 {
		replicas := make([]gorm.Dialector, 0, len(conf.Databases.Replicas))
		for _, r := range conf.Databases.Replicas {
			replicas = append(replicas, postgres.Open(dsnFromConfig(r)))
		}
		err = orm.Use(dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		}))
		if err != nil {
			return nil, fmt.Errorf("failed to register replicas: %w", err)
		}
		log.Info("database replicas registered", zap.Int("replicas", len(replicas)))
	}

	if err := Migrate(orm); err != nil {
		return nil, err
	}
	log.Info("database connected", zap.String("driver", conf.Databases.Driver))
	return orm, nil
}

// Open opens a gorm handle with the project naming strategy.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		Logger: logger.Default.LogMode(logger.Warn),
	})
}
