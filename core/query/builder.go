package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/asaidimu/go-kikapu/core/transport"
	"go.uber.org/zap"
)

// state is the accumulated query owned by exactly one Builder.
type state struct {
	fields   []string
	filters  []Filter
	orGroups []OrGroup
	sorts    []Sort
	joins    []Join
	limit    *int
	offset   *int
	groupBy  []string
	having   []Filter
}

func newState() state {
	return state{fields: []string{"*"}}
}

// Builder provides a fluent API for querying a single table. Chain methods
// mutate the builder and return it; terminal methods compile the accumulated
// state and perform one request each.
//
// A Builder is not safe for concurrent use. Clone it before handing it to
// another goroutine.
type Builder struct {
	table     string
	transport transport.Transport
	logger    *zap.Logger
	state     state
	err       error
}

// New creates an empty builder bound to table.
func New(table string, t transport.Transport, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		table:     table,
		transport: t,
		logger:    logger,
		state:     newState(),
	}
}

// Table returns the table the builder is bound to.
func (b *Builder) Table() string {
	return b.table
}

// Err returns the first argument error recorded by a chain call, if any.
func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Where adds AND filters. The call shape is chosen by argument count:
//
//	Where(map[string]any{"status": "paid"})  // one eq filter per key
//	Where("status", "paid")                  // eq filter
//	Where("total", OpGt, 100)                // explicit operator
//
// An eq or ne comparison against nil is stored as is/not null. Any other
// shape records ErrInvalidArguments, returned by the next terminal call.
func (b *Builder) Where(args ...any) *Builder {
	filters, err := parseWhere(args)
	if err != nil {
		b.fail(err)
		return b
	}
	b.state.filters = append(b.state.filters, filters...)
	return b
}

// Filter is an alias of Where.
func (b *Builder) Filter(args ...any) *Builder {
	return b.Where(args...)
}

// And is an alias of Where.
func (b *Builder) And(args ...any) *Builder {
	return b.Where(args...)
}

// WhereAll adds one eq filter per key, in key order. An empty key records
// ErrInvalidArguments and adds none of the filters.
func (b *Builder) WhereAll(conditions map[string]any) *Builder {
	filters, err := conditionFilters(conditions)
	if err != nil {
		b.fail(err)
		return b
	}
	b.state.filters = append(b.state.filters, filters...)
	return b
}

// WhereEq adds an equality filter, or an is-null filter when value is nil.
func (b *Builder) WhereEq(field string, value any) *Builder {
	return b.WhereOp(field, OpEq, value)
}

// WhereOp adds a filter with an explicit operator.
func (b *Builder) WhereOp(field string, operator Operator, value any) *Builder {
	f, err := newFilter(field, operator, value)
	if err != nil {
		b.fail(err)
		return b
	}
	b.state.filters = append(b.state.filters, f)
	return b
}

// Eq adds field = value, or field is null when value is nil.
func (b *Builder) Eq(field string, value any) *Builder { return b.WhereOp(field, OpEq, value) }

// Ne adds field != value, or field is not null when value is nil.
func (b *Builder) Ne(field string, value any) *Builder { return b.WhereOp(field, OpNe, value) }

// Gt adds field > value.
func (b *Builder) Gt(field string, value any) *Builder { return b.WhereOp(field, OpGt, value) }

// Gte adds field >= value.
func (b *Builder) Gte(field string, value any) *Builder { return b.WhereOp(field, OpGte, value) }

// Lt adds field < value.
func (b *Builder) Lt(field string, value any) *Builder { return b.WhereOp(field, OpLt, value) }

// Lte adds field <= value.
func (b *Builder) Lte(field string, value any) *Builder { return b.WhereOp(field, OpLte, value) }

// Like adds a case-sensitive pattern match.
func (b *Builder) Like(field string, pattern any) *Builder { return b.WhereOp(field, OpLike, pattern) }

// ILike adds a case-insensitive pattern match.
func (b *Builder) ILike(field string, pattern any) *Builder { return b.WhereOp(field, OpILike, pattern) }

// In matches any of values. A single slice argument is expanded, so
// In("id", ids) and In("id", ids...) are equivalent.
func (b *Builder) In(field string, values ...any) *Builder {
	return b.WhereOp(field, OpIn, expandValues(values))
}

// NotIn matches none of values, expanding a single slice argument like In.
func (b *Builder) NotIn(field string, values ...any) *Builder {
	return b.WhereOp(field, OpNin, expandValues(values))
}

// IsNull matches records where field is null.
func (b *Builder) IsNull(field string) *Builder { return b.WhereOp(field, OpIs, nil) }

// IsNotNull matches records where field is not null.
func (b *Builder) IsNotNull(field string) *Builder { return b.WhereOp(field, OpNot, nil) }

// Between adds gte(from) and lte(to).
func (b *Builder) Between(field string, from, to any) *Builder {
	return b.Gte(field, from).Lte(field, to)
}

// NotBetween adds lt(from) and gt(to) to the AND list. The two filters can
// never both hold when from <= to, so this matches nothing; it is kept for
// wire compatibility. Use Or for an actual outside-the-range query.
func (b *Builder) NotBetween(field string, from, to any) *Builder {
	return b.Lt(field, from).Gt(field, to)
}

// Or appends one OR group made of the filters each fn adds to a fresh builder
// for the same table. Everything else those builders accumulate is discarded.
func (b *Builder) Or(conditions ...func(*Builder)) *Builder {
	var group OrGroup
	for _, fn := range conditions {
		sub := New(b.table, b.transport, b.logger)
		fn(sub)
		if sub.err != nil {
			b.fail(sub.err)
			return b
		}
		group = append(group, sub.state.filters...)
	}
	if len(group) > 0 {
		b.state.orGroups = append(b.state.orGroups, group)
	}
	return b
}

// OrWhere appends a new OR group holding the filters of a Where-shaped call.
func (b *Builder) OrWhere(args ...any) *Builder {
	filters, err := parseWhere(args)
	if err != nil {
		b.fail(err)
		return b
	}
	b.state.orGroups = append(b.state.orGroups, OrGroup(filters))
	return b
}

// Select replaces the projected fields. No fields means all fields.
func (b *Builder) Select(fields ...string) *Builder {
	if len(fields) == 0 {
		fields = []string{"*"}
	}
	b.state.fields = append([]string(nil), fields...)
	return b
}

// OrderBy adds a sort key. An empty direction sorts ascending.
func (b *Builder) OrderBy(field string, direction SortDirection) *Builder {
	if direction == "" {
		direction = SortAsc
	}
	b.state.sorts = append(b.state.sorts, Sort{Field: field, Direction: direction})
	return b
}

// OrderByAsc adds an ascending sort key.
func (b *Builder) OrderByAsc(field string) *Builder { return b.OrderBy(field, SortAsc) }

// OrderByDesc adds a descending sort key.
func (b *Builder) OrderByDesc(field string) *Builder { return b.OrderBy(field, SortDesc) }

// Limit sets the maximum number of records returned. Zero is a valid limit.
func (b *Builder) Limit(limit int) *Builder {
	b.state.limit = &limit
	return b
}

// Offset sets the number of records to skip.
func (b *Builder) Offset(offset int) *Builder {
	b.state.offset = &offset
	return b
}

// Join adds a join clause.
func (b *Builder) Join(joinType JoinType, table, on string) *Builder {
	return b.JoinAs(joinType, table, on, "")
}

// JoinAs adds a join clause with an alias for the joined table.
func (b *Builder) JoinAs(joinType JoinType, table, on, alias string) *Builder {
	b.state.joins = append(b.state.joins, Join{Type: joinType, Table: table, On: on, Alias: alias})
	return b
}

// InnerJoin adds an inner join.
func (b *Builder) InnerJoin(table, on string) *Builder { return b.Join(JoinInner, table, on) }

// LeftJoin adds a left outer join.
func (b *Builder) LeftJoin(table, on string) *Builder { return b.Join(JoinLeft, table, on) }

// RightJoin adds a right outer join.
func (b *Builder) RightJoin(table, on string) *Builder { return b.Join(JoinRight, table, on) }

// FullJoin adds a full outer join.
func (b *Builder) FullJoin(table, on string) *Builder { return b.Join(JoinFull, table, on) }

// GroupBy adds grouping fields.
func (b *Builder) GroupBy(fields ...string) *Builder {
	b.state.groupBy = append(b.state.groupBy, fields...)
	return b
}

// Having adds a filter applied after grouping.
func (b *Builder) Having(field string, operator Operator, value any) *Builder {
	f, err := newFilter(field, operator, value)
	if err != nil {
		b.fail(err)
		return b
	}
	b.state.having = append(b.state.having, f)
	return b
}

// Filters returns a copy of the main AND filter list.
func (b *Builder) Filters() []Filter {
	return cloneFilters(b.state.filters)
}

// OrGroups returns a copy of the OR groups.
func (b *Builder) OrGroups() []OrGroup {
	return cloneGroups(b.state.orGroups)
}

// Clone returns an independent builder with copies of every list, so either
// one can be extended without affecting the other.
func (b *Builder) Clone() *Builder {
	return &Builder{
		table:     b.table,
		transport: b.transport,
		logger:    b.logger,
		err:       b.err,
		state: state{
			fields:   append([]string(nil), b.state.fields...),
			filters:  cloneFilters(b.state.filters),
			orGroups: cloneGroups(b.state.orGroups),
			sorts:    append([]Sort(nil), b.state.sorts...),
			joins:    append([]Join(nil), b.state.joins...),
			limit:    cloneInt(b.state.limit),
			offset:   cloneInt(b.state.offset),
			groupBy:  append([]string(nil), b.state.groupBy...),
			having:   cloneFilters(b.state.having),
		},
	}
}

// Reset clears all accumulated state and any recorded error.
func (b *Builder) Reset() *Builder {
	b.state = newState()
	b.err = nil
	return b
}

// String returns a human-readable summary of the builder.
func (b *Builder) String() string {
	parts := []string{fmt.Sprintf("TABLE: %s", b.table)}

	if !isDefaultSelect(b.state.fields) {
		parts = append(parts, fmt.Sprintf("SELECT: %s", strings.Join(b.state.fields, ", ")))
	}
	if len(b.state.filters) > 0 {
		parts = append(parts, fmt.Sprintf("WHERE: %s", formatFilters(b.state.filters, " AND ")))
	}
	for _, group := range b.state.orGroups {
		parts = append(parts, fmt.Sprintf("OR: (%s)", formatFilters(group, " AND ")))
	}
	if len(b.state.joins) > 0 {
		parts = append(parts, fmt.Sprintf("JOINS: %d", len(b.state.joins)))
	}
	if len(b.state.sorts) > 0 {
		sortFields := make([]string, len(b.state.sorts))
		for i, s := range b.state.sorts {
			sortFields[i] = fmt.Sprintf("%s %s", s.Field, s.Direction)
		}
		parts = append(parts, fmt.Sprintf("ORDER BY: %s", strings.Join(sortFields, ", ")))
	}
	if len(b.state.groupBy) > 0 {
		parts = append(parts, fmt.Sprintf("GROUP BY: %s", strings.Join(b.state.groupBy, ", ")))
	}
	if len(b.state.having) > 0 {
		parts = append(parts, fmt.Sprintf("HAVING: %s", formatFilters(b.state.having, " AND ")))
	}
	if b.state.limit != nil {
		parts = append(parts, fmt.Sprintf("LIMIT: %d", *b.state.limit))
	}
	if b.state.offset != nil {
		parts = append(parts, fmt.Sprintf("OFFSET: %d", *b.state.offset))
	}
	return strings.Join(parts, " | ")
}

func parseWhere(args []any) ([]Filter, error) {
	switch len(args) {
	case 1:
		var conditions map[string]any
		switch v := args[0].(type) {
		case map[string]any:
			conditions = v
		case Document:
			conditions = v
		default:
			return nil, fmt.Errorf("%w: single-argument where expects a map of conditions, got %T", ErrInvalidArguments, args[0])
		}
		return conditionFilters(conditions)
	case 2:
		field, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%w: field must be a string, got %T", ErrInvalidArguments, args[0])
		}
		f, err := newFilter(field, OpEq, args[1])
		if err != nil {
			return nil, err
		}
		return []Filter{f}, nil
	case 3:
		field, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%w: field must be a string, got %T", ErrInvalidArguments, args[0])
		}
		var operator Operator
		switch op := args[1].(type) {
		case Operator:
			operator = op
		case string:
			operator = Operator(op)
		default:
			return nil, fmt.Errorf("%w: operator must be a string, got %T", ErrInvalidArguments, args[1])
		}
		f, err := newFilter(field, operator, args[2])
		if err != nil {
			return nil, err
		}
		return []Filter{f}, nil
	default:
		return nil, fmt.Errorf("%w: where expects 1 to 3 arguments, got %d", ErrInvalidArguments, len(args))
	}
}

// newFilter rewrites eq/ne against nil to is/not at insertion time.
func newFilter(field string, operator Operator, value any) (Filter, error) {
	if field == "" {
		return Filter{}, fmt.Errorf("%w: field must not be empty", ErrInvalidArguments)
	}
	if !operator.IsValid() {
		return Filter{}, fmt.Errorf("%w: unknown operator %q", ErrInvalidArguments, operator)
	}
	if value == nil {
		switch operator {
		case OpEq:
			operator = OpIs
		case OpNe:
			operator = OpNot
		}
	}
	return Filter{Field: field, Operator: operator, Value: value}, nil
}

func conditionFilters(conditions map[string]any) ([]Filter, error) {
	keys := make([]string, 0, len(conditions))
	for k := range conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	filters := make([]Filter, 0, len(keys))
	for _, k := range keys {
		f, err := newFilter(k, OpEq, conditions[k])
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// expandValues unwraps a lone slice or array argument into its elements.
func expandValues(values []any) []any {
	if len(values) != 1 || values[0] == nil {
		return values
	}
	rv := reflect.ValueOf(values[0])
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return values
	}
	if _, isBytes := values[0].([]byte); isBytes {
		return values
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func cloneFilters(filters []Filter) []Filter {
	if filters == nil {
		return nil
	}
	out := make([]Filter, len(filters))
	for i, f := range filters {
		out[i] = Filter{Field: f.Field, Operator: f.Operator, Value: cloneValue(f.Value)}
	}
	return out
}

func cloneGroups(groups []OrGroup) []OrGroup {
	if groups == nil {
		return nil
	}
	out := make([]OrGroup, len(groups))
	for i, g := range groups {
		out[i] = OrGroup(cloneFilters(g))
	}
	return out
}

func cloneValue(value any) any {
	if values, ok := value.([]any); ok {
		return append([]any(nil), values...)
	}
	return value
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func isDefaultSelect(fields []string) bool {
	return len(fields) == 0 || (len(fields) == 1 && fields[0] == "*")
}

func formatFilters(filters []Filter, sep string) string {
	out := make([]string, len(filters))
	for i, f := range filters {
		out[i] = fmt.Sprintf("%s %s %v", f.Field, f.Operator, f.Value)
	}
	return strings.Join(out, sep)
}
