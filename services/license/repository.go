package license

import (
	"context"
	"fmt"

	"license-controlplane/pkg/db/option"
	"license-controlplane/pkg/db/pagination"
	"license-controlplane/pkg/errutil"
	"license-controlplane/pkg/repository"

	"gorm.io/gorm"
)

// Repository stores issued licenses. There is no update path for payload or
// signature columns.
type Repository interface {
	WithTrx(tx *gorm.DB) Repository
	Save(ctx context.Context, rec *Record) error
	List(ctx context.Context, page pagination.Pagination) ([]*Record, *pagination.PageInfo, error)
	Get(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	IncrementDownloadCount(ctx context.Context, id string) error
}

type gormRepository struct {
	db    *gorm.DB
	store repository.Repository[Record]
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db, store: repository.ProvideStore[Record](db)}
}

func (r *gormRepository) WithTrx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{db: tx, store: r.store.WithTrx(tx)}
}

func notFound(id string) error {
	return errutil.NotFound(fmt.Sprintf("license %s not found", id), ErrNotFound)
}

func (r *gormRepository) Save(ctx context.Context, rec *Record) error {
	return r.store.Create(ctx, rec)
}

// List pages newest first.
func (r *gormRepository) List(ctx context.Context, page pagination.Pagination) ([]*Record, *pagination.PageInfo, error) {
	var cursor *pagination.Cursor
	if page.Cursor != "" {
		c, err := pagination.DecodeCursor(page.Cursor)
		if err != nil {
			return nil, nil, errutil.BadRequest("invalid cursor", ErrInvalidRequest)
		}
		cursor = c
	}

	rows, err := r.store.Find(ctx, &Record{}, option.ApplyCursor(page, cursor))
	if err != nil {
		return nil, nil, err
	}

	return pagination.BuildCursorPage(rows, page.PageSize(), func(rec *Record) pagination.Cursor {
		return pagination.Cursor{CreatedAt: rec.CreatedAt, ID: rec.ID}
	})
}

func (r *gormRepository) Get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, notFound(id)
	}
	rec, err := r.store.FindOne(ctx, &Record{ID: id})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, notFound(id)
	}
	return rec, nil
}

func (r *gormRepository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return notFound(id)
	}
	n, err := r.store.Delete(ctx, &Record{ID: id})
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

func (r *gormRepository) IncrementDownloadCount(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&Record{}).
		Where("id = ?", id).
		UpdateColumn("download_count", gorm.Expr("download_count + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(id)
	}
	return nil
}
