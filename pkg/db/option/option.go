package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before it is executed.
type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type queryFunc func(*gorm.DB) *gorm.DB

func (f queryFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

type Operator string

const (
	Equal          Operator = "="
	NotEqual       Operator = "<>"
	GreaterThan    Operator = ">"
	LessThan       Operator = "<"
	GreaterOrEqual Operator = ">="
	LessOrEqual    Operator = "<="
	In             Operator = "IN"
)

// ApplyOperator filters column by op and value.
func ApplyOperator(column string, op Operator, value any) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		if op == In {
			return db.Where(fmt.Sprintf("%s IN ?", column), value)
		}
		return db.Where(fmt.Sprintf("%s %s ?", column, op), value)
	})
}

// WithSortBy orders by column; direction defaults to ASC.
func WithSortBy(column, direction string) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		dir := strings.ToUpper(strings.TrimSpace(direction))
		if dir != "DESC" {
			dir = "ASC"
		}
		return db.Order(fmt.Sprintf("%s %s", column, dir))
	})
}
