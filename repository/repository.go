package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// PostgreSQL error codes
const (
	PgErrForeignKeyViolation = "23503"
	PgErrUniqueViolation     = "23505"
)

const (
	connectAttempts = 10
	connectBackoff  = 2 * time.Second
)

// Sequence names used to mint display ids.
const (
	SeqEmployee   = "employee"
	SeqProduction = "production"
	SeqRejection  = "rejection"
)

var sequencePrefixes = map[string]string{
	SeqEmployee:   "EMP",
	SeqProduction: "PR",
	SeqRejection:  "RJ",
}

// StatusCount is one row of a grouped count.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// Repository handles all metadata persistence
type Repository struct {
	db     *gorm.DB
	logger cmtlog.Logger
}

// ConnectPostgres opens a PostgreSQL connection, retrying while the server
// comes up, and runs migrations.
func ConnectPostgres(ctx context.Context, dsn string, logger cmtlog.Logger) (*Repository, error) {
	return connect(ctx, postgres.Open(dsn), logger)
}

// OpenSQLite opens (or creates) a SQLite database file and runs migrations.
func OpenSQLite(ctx context.Context, path string, logger cmtlog.Logger) (*Repository, error) {
	r, err := connect(ctx, sqlite.Dialector{DriverName: "sqlite", DSN: path}, logger)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	sqlDB, err := r.db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return r, nil
}

func connect(ctx context.Context, dialector gorm.Dialector, logger cmtlog.Logger) (*Repository, error) {
	logger = logger.With("module", "repository")
	config := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent), TranslateError: true}

	for i := range connectAttempts {
		logger.Info("Database connection attempt", "attempt", i+1)
		db, err := gorm.Open(dialector, config)
		if err == nil {
			r := &Repository{db: db, logger: logger}
			if err := r.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migration failed: %w", err)
			}
			logger.Info("Connected to database")
			return r, nil
		}
		logger.Error("Database connection failed", "attempt", i+1, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
	return nil, fmt.Errorf("failed to connect to database after %d attempts", connectAttempts)
}

// Migrate creates missing tables and the id sequences.
func (r *Repository) Migrate(ctx context.Context) error {
	r.logger.Info("Running database migrations")

	migrator := r.db.WithContext(ctx).Migrator()
	tables := []interface{}{
		&models.Sequence{},
		&models.Employee{},
		&models.Login{},
		&models.AccessGrant{},
		&models.ProductionAccessRequest{},
		&models.ProductionJob{},
		&models.QualityAssessment{},
		&models.RejectedProduct{},
		&models.QualityCriteria{},
	}
	for _, table := range tables {
		if !migrator.HasTable(table) {
			if err := migrator.CreateTable(table); err != nil {
				return fmt.Errorf("failed to create table: %w", err)
			}
		}
	}

	for name := range sequencePrefixes {
		seq := models.Sequence{Name: name}
		if err := r.db.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&seq).Error; err != nil {
			return fmt.Errorf("failed to seed sequence %s: %w", name, err)
		}
	}

	r.logger.Info("Database migrations completed")
	return nil
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn inside one database transaction. The repository handed to
// fn is bound to the transaction; any error rolls every write back.
func (r *Repository) WithTx(ctx context.Context, fn func(tx *Repository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&Repository{db: db, logger: r.logger})
	})
	if err != nil {
		if _, tagged := apperr.As(err); tagged {
			return err
		}
		return apperr.Database(err, "Transaction failed")
	}
	return nil
}

// nextID increments the named sequence and formats the new value. Inside a
// transaction the row lock serializes concurrent callers.
func (r *Repository) nextID(ctx context.Context, name string) (string, error) {
	var id string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Sequence{}).Where("name = ?", name).UpdateColumn("value", gorm.Expr("value + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Create(&models.Sequence{Name: name, Value: 1}).Error; err != nil {
				return err
			}
		}
		var seq models.Sequence
		if err := tx.Where("name = ?", name).First(&seq).Error; err != nil {
			return err
		}
		id = fmt.Sprintf("%s%03d", sequencePrefixes[name], seq.Value)
		return nil
	})
	if err != nil {
		return "", apperr.Database(err, "Failed to allocate id")
	}
	return id, nil
}

func (r *Repository) countBy(ctx context.Context, model interface{}, column string, query string, args ...interface{}) ([]StatusCount, error) {
	counts := make([]StatusCount, 0)
	q := r.db.WithContext(ctx).Model(model).Select(column + " AS status, COUNT(*) AS count").Group(column)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Scan(&counts).Error; err != nil {
		return nil, dbError(err, "Failed to count records")
	}
	return counts, nil
}

// IsDuplicate reports whether err is a unique constraint violation on any of
// the supported databases.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == PgErrUniqueViolation {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func dbError(err error, message string) error {
	if IsDuplicate(err) {
		return apperr.Wrap(err, apperr.CodeConflict, "", message)
	}
	return apperr.Database(err, message)
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(format, args...)
	}
	return apperr.Database(err, "Database error")
}
