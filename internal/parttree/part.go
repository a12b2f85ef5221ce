package parttree

import (
	"strings"
)

// Type is the comparison a predicate part applies to its property.
type Type int

const (
	SimpleProperty Type = iota
	NegatingSimpleProperty
	Between
	IsNotNull
	IsNull
	LessThan
	LessThanEqual
	GreaterThan
	GreaterThanEqual
	Before
	After
	NotLike
	Like
	StartingWith
	EndingWith
	IsNotEmpty
	IsEmpty
	NotContaining
	Containing
	NotIn
	In
	True
	False
)

type partType struct {
	typ      Type
	args     int
	keywords []string
}

// Matched in order; the first type whose keyword ends the part wins, so
// longer keywords sharing a suffix come first.
var partTypes = []partType{
	{IsNotNull, 0, []string{"IsNotNull", "NotNull"}},
	{IsNull, 0, []string{"IsNull", "Null"}},
	{Between, 2, []string{"IsBetween", "Between"}},
	{LessThan, 1, []string{"IsLessThan", "LessThan"}},
	{LessThanEqual, 1, []string{"IsLessThanEqual", "LessThanEqual"}},
	{GreaterThan, 1, []string{"IsGreaterThan", "GreaterThan"}},
	{GreaterThanEqual, 1, []string{"IsGreaterThanEqual", "GreaterThanEqual"}},
	{Before, 1, []string{"IsBefore", "Before"}},
	{After, 1, []string{"IsAfter", "After"}},
	{NotLike, 1, []string{"IsNotLike", "NotLike"}},
	{Like, 1, []string{"IsLike", "Like"}},
	{StartingWith, 1, []string{"IsStartingWith", "StartingWith", "StartsWith"}},
	{EndingWith, 1, []string{"IsEndingWith", "EndingWith", "EndsWith"}},
	{IsNotEmpty, 0, []string{"IsNotEmpty", "NotEmpty"}},
	{IsEmpty, 0, []string{"IsEmpty", "Empty"}},
	{NotContaining, 1, []string{"IsNotContaining", "NotContaining", "NotContains"}},
	{Containing, 1, []string{"IsContaining", "Containing", "Contains"}},
	{NotIn, 1, []string{"IsNotIn", "NotIn"}},
	{In, 1, []string{"IsIn", "In"}},
	{True, 0, []string{"IsTrue", "True"}},
	{False, 0, []string{"IsFalse", "False"}},
	{NegatingSimpleProperty, 1, []string{"IsNot", "Not"}},
	{SimpleProperty, 1, []string{"Is", "Equals"}},
}

// Arguments returns how many method arguments the type consumes.
func (t Type) Arguments() int {
	for _, pt := range partTypes {
		if pt.typ == t {
			return pt.args
		}
	}
	return 1
}

func (t Type) String() string {
	for _, pt := range partTypes {
		if pt.typ == t {
			return pt.keywords[len(pt.keywords)-1]
		}
	}
	return "Unknown"
}

// detectType splits a raw part such as "AgeGreaterThan" into its type and
// the property text before the keyword.
func detectType(raw string) (Type, string) {
	for _, pt := range partTypes {
		for _, kw := range pt.keywords {
			if strings.HasSuffix(raw, kw) && len(raw) > len(kw) {
				return pt.typ, strings.TrimSuffix(raw, kw)
			}
		}
	}
	return SimpleProperty, raw
}

var ignoreCaseSuffixes = []string{"IgnoringCase", "IgnoreCase"}

func stripIgnoreCase(raw string) (string, bool) {
	for _, s := range ignoreCaseSuffixes {
		if strings.HasSuffix(raw, s) && len(raw) > len(s) {
			return strings.TrimSuffix(raw, s), true
		}
	}
	return raw, false
}

// Part is one comparison in a derived query, e.g. "AgeGreaterThan".
type Part struct {
	Source     string
	Type       Type
	Path       PropertyPath
	IgnoreCase bool
	// Args are positions among the method's value arguments.
	Args []int
}
