package criteria

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"sqlmapper/internal/sqlfrag"
)

// Operator is a comparison applied by a specification condition.
type Operator int

const (
	Equal Operator = iota
	NotEqual
	GreaterThan
	GreaterThanEqual
	LessThan
	LessThanEqual
	// Like and NotLike append '%' to the value.
	Like
	NotLike
	StartsWith
	EndsWith
	Contains
	// FreeLike binds the pattern exactly as given.
	FreeLike
	In
	NotIn
	Between
	IsNull
	IsNotNull
)

var operatorNames = map[Operator]string{
	Equal:            "=",
	NotEqual:         "<>",
	GreaterThan:      ">",
	GreaterThanEqual: ">=",
	LessThan:         "<",
	LessThanEqual:    "<=",
	Like:             "LIKE",
	NotLike:          "NOT LIKE",
	StartsWith:       "LIKE",
	EndsWith:         "LIKE",
	Contains:         "LIKE",
	FreeLike:         "LIKE",
	In:               "IN",
	NotIn:            "NOT IN",
	Between:          "BETWEEN",
	IsNull:           "IS NULL",
	IsNotNull:        "IS NOT NULL",
}

func (o Operator) String() string {
	if s, ok := operatorNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

func (o Operator) wildcard() sqlfrag.Wildcard {
	switch o {
	case Like, NotLike, StartsWith:
		return sqlfrag.Prefix
	case EndsWith:
		return sqlfrag.Suffix
	case Contains:
		return sqlfrag.Contains
	}
	return sqlfrag.NoWildcard
}

// sqlizer renders one condition on col with squirrel.
func (o Operator) sqlizer(col string, values []any) (sq.Sqlizer, error) {
	value := func() any {
		if len(values) == 0 {
			return nil
		}
		return values[0]
	}
	pattern := func() string {
		return fmt.Sprint(patternValue(o.wildcard(), value()))
	}
	switch o {
	case Equal:
		return sq.Eq{col: value()}, nil
	case NotEqual:
		return sq.NotEq{col: value()}, nil
	case GreaterThan:
		return sq.Gt{col: value()}, nil
	case GreaterThanEqual:
		return sq.GtOrEq{col: value()}, nil
	case LessThan:
		return sq.Lt{col: value()}, nil
	case LessThanEqual:
		return sq.LtOrEq{col: value()}, nil
	case Like, StartsWith, EndsWith, Contains, FreeLike:
		return sq.Like{col: pattern()}, nil
	case NotLike:
		return sq.NotLike{col: pattern()}, nil
	case In:
		return sq.Eq{col: values}, nil
	case NotIn:
		return sq.NotEq{col: values}, nil
	case Between:
		if len(values) != 2 {
			return nil, fmt.Errorf("BETWEEN on %s needs 2 values, got %d", col, len(values))
		}
		return sq.Expr(col+" BETWEEN ? AND ?", values[0], values[1]), nil
	case IsNull:
		return sq.Expr(col + " IS NULL"), nil
	case IsNotNull:
		return sq.Expr(col + " IS NOT NULL"), nil
	}
	return nil, fmt.Errorf("unsupported operator %v", o)
}

func patternValue(w sqlfrag.Wildcard, v any) any {
	switch w {
	case sqlfrag.Prefix:
		return fmt.Sprint(v) + "%"
	case sqlfrag.Suffix:
		return "%" + fmt.Sprint(v)
	case sqlfrag.Contains:
		return "%" + fmt.Sprint(v) + "%"
	}
	return v
}
