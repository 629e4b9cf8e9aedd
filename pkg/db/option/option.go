package option

import (
	"fmt"
	"strings"

	"license-controlplane/pkg/db/pagination"

	"gorm.io/gorm"
)

// QueryOption is applied to a query as a gorm scope.
type QueryOption func(*gorm.DB) *gorm.DB

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func ApplyOperator(c Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
	}
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

// WithSortBy orders by SortBy when it is allowed, otherwise by created_at.
func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		field := "created_at"
		if s.SortBy != "" && s.Allow[s.SortBy] {
			field = s.SortBy
		}

		dir := "DESC"
		if strings.EqualFold(s.OrderBy, "asc") {
			dir = "ASC"
		}

		return db.Order(fmt.Sprintf("%s %s", field, dir)).Order(fmt.Sprintf("id %s", dir))
	}
}

// ApplyCursor pages in (created_at DESC, id DESC) order and fetches one extra
// row so pagination.BuildCursorPage can tell whether more rows follow.
func ApplyCursor(p pagination.Pagination, cursor *pagination.Cursor) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if cursor != nil {
			db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
		}
		return db.Order("created_at DESC").Order("id DESC").Limit(p.PageSize() + 1)
	}
}
