package database

import (
	"fmt"

	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/models"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Models lists every table the catalog owns, in migration order.
var Models = []any{
	&models.Source{},
	&models.StoreApp{},
	&models.AppVersion{},
	&models.AppScreenshot{},
	&models.AppPermission{},
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: "v1_",
		},
		// store_apps and app_versions reference each other; the repository
		// removes children itself.
		DisableForeignKeyConstraintWhenMigrating: true,
		// unique index violations surface as gorm.ErrDuplicatedKey
		TranslateError: true,
	}
}

func Connect(connStr string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(connStr), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return migrate(db)
}

// ConnectSQLite opens (or creates) a SQLite database file; ":memory:" works
// for throwaway runs.
func ConnectSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return migrate(db)
}

// Open connects with the configured driver: "postgres" takes a connection
// URL, "sqlite" a file path.
func Open(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "postgres":
		return Connect(dsn)
	case "sqlite":
		return ConnectSQLite(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func migrate(db *gorm.DB) (*gorm.DB, error) {
	if err := db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return db, nil
}
