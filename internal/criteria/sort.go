package criteria

import "strings"

// Order is one runtime sort key.
type Order struct {
	Property  string
	Direction string
}

// Asc sorts property ascending.
func Asc(property string) Order {
	return Order{Property: property, Direction: "ASC"}
}

// Desc sorts property descending.
func Desc(property string) Order {
	return Order{Property: property, Direction: "DESC"}
}

// Descending reports whether the order sorts descending.
func (o Order) Descending() bool {
	return strings.EqualFold(o.Direction, "DESC")
}

// Sort is an ordered list of sort keys passed as a method argument.
type Sort struct {
	Orders []Order
}

// SortBy sorts ascending by each property in turn.
func SortBy(properties ...string) Sort {
	s := Sort{Orders: make([]Order, len(properties))}
	for i, p := range properties {
		s.Orders[i] = Asc(p)
	}
	return s
}

// Descending returns a copy with every key sorted descending.
func (s Sort) Descending() Sort {
	return s.with("DESC")
}

// Ascending returns a copy with every key sorted ascending.
func (s Sort) Ascending() Sort {
	return s.with("ASC")
}

// And appends other's keys.
func (s Sort) And(other Sort) Sort {
	out := Sort{Orders: make([]Order, 0, len(s.Orders)+len(other.Orders))}
	out.Orders = append(out.Orders, s.Orders...)
	out.Orders = append(out.Orders, other.Orders...)
	return out
}

func (s Sort) with(direction string) Sort {
	out := Sort{Orders: make([]Order, len(s.Orders))}
	for i, o := range s.Orders {
		out.Orders[i] = Order{Property: o.Property, Direction: direction}
	}
	return out
}

// Page selects Limit rows after skipping Offset rows.
type Page struct {
	Offset int64
	Limit  int64
}

// PageRequest returns the zero-based page of the given size.
func PageRequest(page, size int64) Page {
	if page < 0 {
		page = 0
	}
	return Page{Offset: page * size, Limit: size}
}
