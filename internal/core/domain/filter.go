package domain

// FilterOp is the comparison performed by a query filter.
type FilterOp string

// Filter operators of the query mini-language.
const (
	FilterEquals       FilterOp = ":"
	FilterGreater      FilterOp = ">"
	FilterLess         FilterOp = "<"
	FilterGreaterEqual FilterOp = ">="
	FilterLessEqual    FilterOp = "<="
	FilterContains     FilterOp = "~"
	FilterNot          FilterOp = "-"
)

// Filter is one `field:value` clause parsed out of a query.
type Filter struct {
	// Field is the lower-cased field name.
	Field string

	// Op is the comparison operator.
	Op FilterOp

	// Value is the comparison operand with quotes removed.
	Value string

	// Raw is the clause as written in the query.
	Raw string
}
