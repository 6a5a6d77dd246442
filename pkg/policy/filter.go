package policy

import (
	"fmt"
	"strings"
)

// Record is anything a Filter can be evaluated against
type Record interface {
	Field(name string) any
}

type filterOp int

const (
	opNone filterOp = iota
	opAll
	opEq
	opAnd
	opOr
)

// Filter is a collection scope expressed as data so it can be pushed down to a
// query (SQL) or evaluated against records in memory (Matches). The zero value
// matches nothing.
type Filter struct {
	op    filterOp
	field string
	value any
	terms []Filter
}

// All matches every record
func All() Filter { return Filter{op: opAll} }

// None matches no record
func None() Filter { return Filter{op: opNone} }

// Eq matches records whose field equals value. Values must be comparable.
func Eq(field string, value any) Filter {
	return Filter{op: opEq, field: field, value: value}
}

// And matches records matched by every term
func And(terms ...Filter) Filter {
	kept := make([]Filter, 0, len(terms))
	for _, t := range terms {
		switch t.op {
		case opNone:
			return None()
		case opAll:
			continue
		}
		kept = append(kept, t)
	}
	switch len(kept) {
	case 0:
		return All()
	case 1:
		return kept[0]
	}
	return Filter{op: opAnd, terms: kept}
}

// Or matches records matched by any term
func Or(terms ...Filter) Filter {
	kept := make([]Filter, 0, len(terms))
	for _, t := range terms {
		switch t.op {
		case opAll:
			return All()
		case opNone:
			continue
		}
		kept = append(kept, t)
	}
	switch len(kept) {
	case 0:
		return None()
	case 1:
		return kept[0]
	}
	return Filter{op: opOr, terms: kept}
}

// IsAll reports whether the filter matches everything
func (f Filter) IsAll() bool { return f.op == opAll }

// IsNone reports whether the filter matches nothing
func (f Filter) IsNone() bool { return f.op == opNone }

// Matches evaluates the filter against a record
func (f Filter) Matches(r Record) bool {
	switch f.op {
	case opAll:
		return true
	case opEq:
		if r == nil {
			return false
		}
		v := r.Field(f.field)
		return v != nil && v == f.value
	case opAnd:
		for _, t := range f.terms {
			if !t.Matches(r) {
				return false
			}
		}
		return true
	case opOr:
		for _, t := range f.terms {
			if t.Matches(r) {
				return true
			}
		}
		return false
	}
	return false
}

// SQL renders the filter as a WHERE clause using $n placeholders numbered
// after argOffset. Field names are trusted column names.
func (f Filter) SQL(argOffset int) (string, []any) {
	var args []any
	clause := f.render(&argOffset, &args)
	return clause, args
}

func (f Filter) render(pos *int, args *[]any) string {
	switch f.op {
	case opAll:
		return "1 = 1"
	case opEq:
		*pos++
		*args = append(*args, f.value)
		return fmt.Sprintf("%s = $%d", f.field, *pos)
	case opAnd, opOr:
		sep := " AND "
		if f.op == opOr {
			sep = " OR "
		}
		parts := make([]string, 0, len(f.terms))
		for _, t := range f.terms {
			parts = append(parts, t.render(pos, args))
		}
		return "(" + strings.Join(parts, sep) + ")"
	}
	return "1 = 0"
}

func (f Filter) String() string {
	switch f.op {
	case opAll:
		return "all"
	case opEq:
		return fmt.Sprintf("%s=%v", f.field, f.value)
	case opAnd, opOr:
		sep := " and "
		if f.op == opOr {
			sep = " or "
		}
		parts := make([]string, 0, len(f.terms))
		for _, t := range f.terms {
			parts = append(parts, t.String())
		}
		return "(" + strings.Join(parts, sep) + ")"
	}
	return "none"
}
