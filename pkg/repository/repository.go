package repository

import (
	"context"
	"errors"

	"license-controlplane/pkg/db/option"

	"gorm.io/gorm"
)

// Repository is the generic gorm store used by the services. Query structs
// match on their non-zero fields.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	// FindOne returns nil, nil when no row matches.
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Create(ctx context.Context, entity *T) error
	Update(ctx context.Context, id string, values any) (int64, error)
	Delete(ctx context.Context, query *T) (int64, error)
	Count(ctx context.Context, query *T) (int64, error)
}

type store[T any] struct {
	db *gorm.DB
}

func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (s *store[T]) WithTrx(tx *gorm.DB) Repository[T] {
	if tx == nil {
		return s
	}
	return &store[T]{db: tx}
}

func (s *store[T]) scoped(ctx context.Context, opts []option.QueryOption) *gorm.DB {
	db := s.db.WithContext(ctx)
	for _, opt := range opts {
		db = db.Scopes(opt)
	}
	return db
}

func (s *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var out []*T
	if err := s.scoped(ctx, opts).Where(query).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	var out T
	if err := s.scoped(ctx, opts).Where(query).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (s *store[T]) Create(ctx context.Context, entity *T) error {
	return s.db.WithContext(ctx).Create(entity).Error
}

func (s *store[T]) Update(ctx context.Context, id string, values any) (int64, error) {
	res := s.db.WithContext(ctx).Model(new(T)).Where("id = ?", id).Updates(values)
	return res.RowsAffected, res.Error
}

// Delete refuses an empty query; gorm reports ErrMissingWhereClause.
func (s *store[T]) Delete(ctx context.Context, query *T) (int64, error) {
	res := s.db.WithContext(ctx).Where(query).Delete(new(T))
	return res.RowsAffected, res.Error
}

func (s *store[T]) Count(ctx context.Context, query *T) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(new(T)).Where(query).Count(&n).Error
	return n, err
}
