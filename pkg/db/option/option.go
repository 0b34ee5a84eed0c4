// Package option composes query modifiers for the generic store.
package option

import (
	"fmt"
	"strconv"
	"time"

	"github.com/smallbiznis/perkway/pkg/db/pagination"
	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type queryOptionFunc func(*gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

type Operator string

const (
	EQ  Operator = "="
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

func ApplyOperator(cond Condition) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where(fmt.Sprintf("%s %s ?", cond.Field, cond.Operator), cond.Value)
	})
}

func WithLimit(limit int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

func WithOrder(expr string) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Order(expr)
	})
}

// ApplyPagination decodes the cursor token and fetches one extra row so the
// caller can detect whether more pages remain.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		size := p.PageSize
		if size <= 0 {
			size = 50
		}
		if p.PageToken != "" {
			cursor, err := pagination.DecodeCursor(p.PageToken)
			if err == nil && cursor != nil && cursor.CreatedAt != "" {
				// Bind native types so every dialect serializes the
				// values the same way it stores them.
				var createdAt any = cursor.CreatedAt
				if ts, perr := time.Parse(time.RFC3339Nano, cursor.CreatedAt); perr == nil {
					createdAt = ts
				}
				var id any = cursor.ID
				if n, perr := strconv.ParseInt(cursor.ID, 10, 64); perr == nil {
					id = n
				}
				db = db.Where("(created_at, id) < (?, ?)", createdAt, id)
			}
		}
		return db.Limit(size + 1)
	})
}
