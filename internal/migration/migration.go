package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	businessdomain "github.com/notazul/notazul/internal/business/domain"
	catalogdomain "github.com/notazul/notazul/internal/catalog/domain"
	clientdomain "github.com/notazul/notazul/internal/client/domain"
	fiscalruledomain "github.com/notazul/notazul/internal/fiscalrule/domain"
	invoicedomain "github.com/notazul/notazul/internal/invoice/domain"
	orderdomain "github.com/notazul/notazul/internal/order/domain"
	"gorm.io/gorm"
)

//go:embed migrations
var embeddedMigrations embed.FS

const migrationsDir = "migrations"

// RunMigrations applies the embedded SQL migrations. Postgres only.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema through gorm for databases without
// versioned migrations (mysql and the sqlite used in tests).
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&businessdomain.Business{},
		&clientdomain.Client{},
		&catalogdomain.Product{},
		&fiscalruledomain.NCMGroup{},
		&fiscalruledomain.NCMGroupItem{},
		&fiscalruledomain.FiscalOperation{},
		&fiscalruledomain.ICMSOriginDestination{},
		&orderdomain.Order{},
		&orderdomain.OrderItem{},
		&orderdomain.OrderPayment{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&invoicedomain.InvoicePayment{},
		&invoicedomain.InvoiceTransport{},
		&invoicedomain.InvoiceEvent{},
		&invoicedomain.InvoiceLog{},
	)
}
