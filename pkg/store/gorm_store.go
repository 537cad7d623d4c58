package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"bookshelf/pkg/domain"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const migrateLockID int64 = 51170417

type GormStoreOptions struct {
	AutoMigrate bool
}

type GormStoreOption func(*GormStoreOptions)

// WithAutoMigrate creates or updates the books table on startup. Leave it off
// when the schema is owned by the hosted database.
func WithAutoMigrate(enabled bool) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.AutoMigrate = enabled
	}
}

// GormStore implements BookStore using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

var _ BookStore = (*GormStore)(nil)

// NewGormStore opens the DB and optionally runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if opts.AutoMigrate {
		if err := withMigrationLock(db, func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&BookModel{}); err != nil {
				return fmt.Errorf("auto migrate: %w", err)
			}
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

func (s *GormStore) ListOwned(ctx context.Context, ownerID string) ([]domain.Book, error) {
	return s.listBooks(ctx, "owner_id = ?", ownerID)
}

func (s *GormStore) ListAll(ctx context.Context) ([]domain.Book, error) {
	return s.listBooks(ctx)
}

func (s *GormStore) listBooks(ctx context.Context, conds ...any) ([]domain.Book, error) {
	var models []BookModel
	tx := s.db.WithContext(ctx).Order("created_at DESC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

func (s *GormStore) Create(ctx context.Context, book domain.NewBook) (domain.Book, error) {
	model := BookModel{
		ID:        uuid.NewString(),
		Title:     book.Title,
		Author:    book.Author,
		Pages:     book.Pages,
		Year:      book.Year,
		OwnerID:   book.OwnerID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Book{}, err
	}
	return bookFromModel(model), nil
}

func (s *GormStore) FetchOwnership(ctx context.Context, id string) (domain.Ownership, error) {
	var model BookModel
	err := s.db.WithContext(ctx).Select("id", "owner_id").First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Ownership{}, ErrNotFound
		}
		return domain.Ownership{}, err
	}
	return domain.Ownership{ID: model.ID, OwnerID: model.OwnerID}, nil
}

func (s *GormStore) Update(ctx context.Context, id, ownerID string, patch domain.BookPatch) (domain.Book, error) {
	var model BookModel
	if patch.Empty() {
		err := s.db.WithContext(ctx).First(&model, "id = ? AND owner_id = ?", id, ownerID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, ErrNotFound
		}
		if err != nil {
			return domain.Book{}, err
		}
		return bookFromModel(model), nil
	}
	res := s.db.WithContext(ctx).
		Model(&model).
		Clauses(clause.Returning{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(patchColumns(patch))
	if res.Error != nil {
		return domain.Book{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Book{}, ErrNotFound
	}
	return bookFromModel(model), nil
}

func (s *GormStore) Delete(ctx context.Context, id, ownerID string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).Delete(&BookModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func patchColumns(p domain.BookPatch) map[string]any {
	cols := make(map[string]any, 4)
	if p.Title != nil {
		cols["title"] = *p.Title
	}
	if p.Author != nil {
		cols["author"] = *p.Author
	}
	if p.Pages != nil {
		cols["pages"] = *p.Pages
	}
	if p.Year != nil {
		cols["year"] = *p.Year
	}
	return cols
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:        m.ID,
		Title:     m.Title,
		Author:    m.Author,
		Pages:     m.Pages,
		Year:      m.Year,
		OwnerID:   m.OwnerID,
		CreatedAt: m.CreatedAt,
	}
}
