package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder() *Builder {
	return New("orders", nil, nil)
}

func TestNew(t *testing.T) {
	b := newTestBuilder()
	assert.Equal(t, "orders", b.Table())
	assert.NoError(t, b.Err())
	assert.Empty(t, b.Filters())
	assert.Empty(t, b.OrGroups())
	assert.Equal(t, []string{"*"}, b.state.fields)
	assert.Nil(t, b.state.limit)
	assert.Nil(t, b.state.offset)
}

func TestWhere_Arity(t *testing.T) {
	tests := []struct {
		name     string
		args     []any
		expected []Filter
		wantErr  bool
	}{
		{
			name:     "two arguments mean eq",
			args:     []any{"status", "paid"},
			expected: []Filter{{Field: "status", Operator: OpEq, Value: "paid"}},
		},
		{
			name:     "three arguments carry the operator",
			args:     []any{"total", OpGt, 100},
			expected: []Filter{{Field: "total", Operator: OpGt, Value: 100}},
		},
		{
			name:     "operator given as plain string",
			args:     []any{"total", "lte", 5},
			expected: []Filter{{Field: "total", Operator: OpLte, Value: 5}},
		},
		{
			name: "map expands to sorted eq filters",
			args: []any{map[string]any{"status": "paid", "currency": "KES"}},
			expected: []Filter{
				{Field: "currency", Operator: OpEq, Value: "KES"},
				{Field: "status", Operator: OpEq, Value: "paid"},
			},
		},
		{
			name:     "document is accepted as a map",
			args:     []any{Document{"id": 7}},
			expected: []Filter{{Field: "id", Operator: OpEq, Value: 7}},
		},
		{name: "no arguments", args: []any{}, wantErr: true},
		{name: "four arguments", args: []any{"a", OpEq, 1, 2}, wantErr: true},
		{name: "single non-map argument", args: []any{"status"}, wantErr: true},
		{name: "non-string field", args: []any{42, "x"}, wantErr: true},
		{name: "unknown operator", args: []any{"total", "between", 1}, wantErr: true},
		{name: "empty field", args: []any{"", "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBuilder().Where(tt.args...)
			if tt.wantErr {
				assert.ErrorIs(t, b.Err(), ErrInvalidArguments)
				assert.Empty(t, b.Filters())
				return
			}
			require.NoError(t, b.Err())
			assert.Equal(t, tt.expected, b.Filters())
		})
	}
}

func TestWhere_NullRewrite(t *testing.T) {
	b := newTestBuilder().
		Where("deleted_at", nil).
		Where("archived_at", OpNe, nil).
		Eq("parent_id", nil).
		Gt("score", nil)

	require.NoError(t, b.Err())
	assert.Equal(t, []Filter{
		{Field: "deleted_at", Operator: OpIs, Value: nil},
		{Field: "archived_at", Operator: OpNot, Value: nil},
		{Field: "parent_id", Operator: OpIs, Value: nil},
		{Field: "score", Operator: OpGt, Value: nil},
	}, b.Filters())
}

func TestFilterAndAliases(t *testing.T) {
	a := newTestBuilder().Where("status", "paid").Where("total", OpGt, 10)
	b := newTestBuilder().Filter("status", "paid").And("total", OpGt, 10)
	assert.Equal(t, a.Filters(), b.Filters())
}

func TestShortcuts(t *testing.T) {
	b := newTestBuilder().
		Ne("status", "void").
		Gte("total", 1).
		Lt("total", 100).
		Like("note", "%gift%").
		ILike("email", "%@EXAMPLE.com").
		In("currency", "KES", "USD").
		NotIn("region", "eu").
		IsNull("refunded_at").
		IsNotNull("paid_at")

	require.NoError(t, b.Err())
	assert.Equal(t, []Filter{
		{Field: "status", Operator: OpNe, Value: "void"},
		{Field: "total", Operator: OpGte, Value: 1},
		{Field: "total", Operator: OpLt, Value: 100},
		{Field: "note", Operator: OpLike, Value: "%gift%"},
		{Field: "email", Operator: OpILike, Value: "%@EXAMPLE.com"},
		{Field: "currency", Operator: OpIn, Value: []any{"KES", "USD"}},
		{Field: "region", Operator: OpNin, Value: []any{"eu"}},
		{Field: "refunded_at", Operator: OpIs, Value: nil},
		{Field: "paid_at", Operator: OpNot, Value: nil},
	}, b.Filters())
}

func TestBetween(t *testing.T) {
	b := newTestBuilder().Between("total", 10, 20)
	assert.Equal(t, []Filter{
		{Field: "total", Operator: OpGte, Value: 10},
		{Field: "total", Operator: OpLte, Value: 20},
	}, b.Filters())

	nb := newTestBuilder().NotBetween("total", 10, 20)
	assert.Equal(t, []Filter{
		{Field: "total", Operator: OpLt, Value: 10},
		{Field: "total", Operator: OpGt, Value: 20},
	}, nb.Filters())
	assert.Empty(t, nb.OrGroups())
}

func TestWhereAll(t *testing.T) {
	b := newTestBuilder().WhereAll(map[string]any{"b": 2, "a": nil})
	assert.Equal(t, []Filter{
		{Field: "a", Operator: OpIs, Value: nil},
		{Field: "b", Operator: OpEq, Value: 2},
	}, b.Filters())
}

func TestOr(t *testing.T) {
	b := newTestBuilder().
		Where("status", "paid").
		Or(
			func(q *Builder) { q.Eq("currency", "KES").Gt("total", 100) },
			func(q *Builder) { q.Eq("vip", true).Limit(5).OrderByDesc("total") },
		).
		OrWhere("region", "ke")

	require.NoError(t, b.Err())
	assert.Equal(t, []Filter{{Field: "status", Operator: OpEq, Value: "paid"}}, b.Filters())
	assert.Equal(t, []OrGroup{
		{
			{Field: "currency", Operator: OpEq, Value: "KES"},
			{Field: "total", Operator: OpGt, Value: 100},
			{Field: "vip", Operator: OpEq, Value: true},
		},
		{{Field: "region", Operator: OpEq, Value: "ke"}},
	}, b.OrGroups())

	// Sub-builder limits and sorts are discarded.
	assert.Nil(t, b.state.limit)
	assert.Empty(t, b.state.sorts)
}

func TestOr_EmptyAndInvalid(t *testing.T) {
	b := newTestBuilder().Or(func(q *Builder) {})
	assert.Empty(t, b.OrGroups())

	b = newTestBuilder().Or(func(q *Builder) { q.Where("a", "b", "c", "d") })
	assert.ErrorIs(t, b.Err(), ErrInvalidArguments)
	assert.Empty(t, b.OrGroups())
}

func TestFirstErrorWins(t *testing.T) {
	b := newTestBuilder().Where(1, 2).Where("x", "unknown-op", 1).Where("ok", 1)
	require.Error(t, b.Err())
	assert.Contains(t, b.Err().Error(), "field must be a string")
	assert.Len(t, b.Filters(), 1)
}

func TestSelectSortPaginationJoins(t *testing.T) {
	b := newTestBuilder().
		Select("id", "total").
		OrderBy("created_at", "").
		OrderByDesc("total").
		Limit(0).
		Offset(20).
		InnerJoin("customers", "customers.id = orders.customer_id").
		JoinAs(JoinLeft, "addresses", "addresses.id = orders.address_id", "addr").
		GroupBy("currency").
		Having("count", OpGt, 2)

	require.NoError(t, b.Err())
	assert.Equal(t, []string{"id", "total"}, b.state.fields)
	assert.Equal(t, []Sort{
		{Field: "created_at", Direction: SortAsc},
		{Field: "total", Direction: SortDesc},
	}, b.state.sorts)
	require.NotNil(t, b.state.limit)
	assert.Equal(t, 0, *b.state.limit)
	assert.Equal(t, 20, *b.state.offset)
	assert.Equal(t, []Join{
		{Type: JoinInner, Table: "customers", On: "customers.id = orders.customer_id"},
		{Type: JoinLeft, Table: "addresses", On: "addresses.id = orders.address_id", Alias: "addr"},
	}, b.state.joins)
	assert.Equal(t, []string{"currency"}, b.state.groupBy)
	assert.Equal(t, []Filter{{Field: "count", Operator: OpGt, Value: 2}}, b.state.having)

	b.Select()
	assert.Equal(t, []string{"*"}, b.state.fields)
}

func TestClone_Independence(t *testing.T) {
	original := newTestBuilder().
		In("status", "paid", "pending").
		Or(func(q *Builder) { q.Eq("vip", true) }).
		OrderByAsc("id").
		Limit(10)

	clone := original.Clone()
	clone.Where("currency", "KES").
		Or(func(q *Builder) { q.Eq("region", "ke") }).
		OrderByDesc("total").
		Limit(50).
		Offset(5)
	clone.state.filters[0].Value.([]any)[0] = "void"
	clone.state.orGroups[0][0].Value = false

	assert.Len(t, original.Filters(), 1)
	assert.Equal(t, []any{"paid", "pending"}, original.Filters()[0].Value)
	assert.Len(t, original.OrGroups(), 1)
	assert.Equal(t, true, original.OrGroups()[0][0].Value)
	assert.Len(t, original.state.sorts, 1)
	assert.Equal(t, 10, *original.state.limit)
	assert.Nil(t, original.state.offset)

	assert.Len(t, clone.Filters(), 2)
	assert.Len(t, clone.OrGroups(), 2)
	assert.Equal(t, 50, *clone.state.limit)
}

func TestFiltersReturnsCopy(t *testing.T) {
	b := newTestBuilder().Eq("a", 1)
	filters := b.Filters()
	filters[0].Field = "mutated"
	assert.Equal(t, "a", b.Filters()[0].Field)
}

func TestReset(t *testing.T) {
	b := newTestBuilder().Where(1, 2).Eq("a", 1).Limit(3).Select("a")
	require.Error(t, b.Err())

	b.Reset()
	assert.NoError(t, b.Err())
	assert.Empty(t, b.Filters())
	assert.Nil(t, b.state.limit)
	assert.Equal(t, []string{"*"}, b.state.fields)
	assert.Equal(t, "orders", b.Table())
}

func TestString(t *testing.T) {
	b := newTestBuilder().
		Select("id").
		Eq("status", "paid").
		Or(func(q *Builder) { q.Gt("total", 5) }).
		OrderByDesc("total").
		Limit(2)

	assert.Equal(t,
		"TABLE: orders | SELECT: id | WHERE: status eq paid | OR: (total gt 5) | ORDER BY: total desc | LIMIT: 2",
		b.String())
	assert.Equal(t, "TABLE: orders", newTestBuilder().String())
}

func TestIn_ExpandsSliceArgument(t *testing.T) {
	ids := []string{"a", "b"}
	b := newTestBuilder().
		In("id", ids).
		NotIn("region", [2]int{1, 2}).
		In("tag", "x")

	require.NoError(t, b.Err())
	assert.Equal(t, []Filter{
		{Field: "id", Operator: OpIn, Value: []any{"a", "b"}},
		{Field: "region", Operator: OpNin, Value: []any{1, 2}},
		{Field: "tag", Operator: OpIn, Value: []any{"x"}},
	}, b.Filters())

	spread := newTestBuilder().In("id", "a", "b")
	assert.Equal(t, b.Filters()[0], spread.Filters()[0])
}

func TestWhereAll_EmptyKey(t *testing.T) {
	b := newTestBuilder().WhereAll(map[string]any{"": 1, "status": "paid"})
	assert.ErrorIs(t, b.Err(), ErrInvalidArguments)
	assert.Empty(t, b.Filters())

	b = newTestBuilder().Where(map[string]any{"": 1})
	assert.ErrorIs(t, b.Err(), ErrInvalidArguments)
	assert.Empty(t, b.Filters())

	b = newTestBuilder().OrWhere(map[string]any{"": 1})
	assert.ErrorIs(t, b.Err(), ErrInvalidArguments)
	assert.Empty(t, b.OrGroups())
}
