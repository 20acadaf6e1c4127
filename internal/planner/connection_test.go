package planner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobez/dojo/internal/dialect"
)

func TestBuildSeekCondition_ASC(t *testing.T) {
	cond := BuildSeekCondition(sqliteDialect, []string{"internal_id"}, []interface{}{int64(42)}, ASC)
	sql, args, err := cond.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "(`internal_id`) > (?)", sql)
	assert.Equal(t, []interface{}{int64(42)}, args)
}

func TestBuildSeekCondition_DESC(t *testing.T) {
	cond := BuildSeekCondition(sqliteDialect, []string{"x", "internal_id"}, []interface{}{int64(69), int64(2)}, DESC)
	sql, args, err := cond.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "(`x`, `internal_id`) < (?, ?)", sql)
	assert.Len(t, args, 2)
}

func TestPlanConnection_FirstPage(t *testing.T) {
	shape := positionShape(t)
	filter, err := CompileFilter(shape, map[string]interface{}{"xGTE": 42})
	require.NoError(t, err)
	order, err := CompileOrder(shape, &OrderInput{Field: "X", Direction: "ASC"})
	require.NoError(t, err)

	plan, err := PlanConnection(sqliteDialect, shape.Model, filter, order, nil, 10)
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT `internal_id`, `player`, `x`, `y`, `label`, `blob` FROM `Position` WHERE `x` >= ? ORDER BY `x` ASC, `internal_id` ASC LIMIT 11",
		plan.Page.SQL)
	assert.Equal(t, []interface{}{int64(42)}, plan.Page.Args)
	assert.Equal(t, "SELECT COUNT(*) FROM (SELECT * FROM `Position` WHERE `x` >= ?) AS __count", plan.Count.SQL)
	assert.Equal(t, []interface{}{int64(42)}, plan.Count.Args)
	assert.Equal(t, []string{"internal_id", "player", "x", "y", "label", "blob"}, plan.Columns)
	assert.Equal(t, 10, plan.First)
}

func TestPlanConnection_SeekDoesNotAffectCount(t *testing.T) {
	shape := positionShape(t)
	filter, err := CompileFilter(shape, nil)
	require.NoError(t, err)
	order, err := CompileOrder(shape, &OrderInput{Field: "X", Direction: "DESC"})
	require.NoError(t, err)

	plan, err := PlanConnection(sqliteDialect, shape.Model, filter, order, []interface{}{int64(69), int64(2)}, 1)
	require.NoError(t, err)

	assert.True(t, strings.Contains(plan.Page.SQL, "WHERE (`x`, `internal_id`) < (?, ?) ORDER BY `x` DESC, `internal_id` DESC LIMIT 2"), plan.Page.SQL)
	assert.Equal(t, "SELECT COUNT(*) FROM (SELECT * FROM `Position`) AS __count", plan.Count.SQL)
	assert.Empty(t, plan.Count.Args)
}

func TestPlanConnection_PostgresNumbering(t *testing.T) {
	shape := positionShape(t)
	pg := dialect.MustFor(dialect.Postgres)
	filter, err := CompileFilter(shape, map[string]interface{}{"xGT": 1, "yLT": 9})
	require.NoError(t, err)
	order, err := CompileOrder(shape, nil)
	require.NoError(t, err)

	plan, err := PlanConnection(pg, shape.Model, filter, order, []interface{}{int64(3)}, 5)
	require.NoError(t, err)
	assert.Contains(t, plan.Page.SQL, `WHERE ("x" > $1 AND "y" < $2) AND ("internal_id") > ($3)`)
	assert.Equal(t, `SELECT COUNT(*) FROM (SELECT * FROM "Position" WHERE ("x" > $1 AND "y" < $2)) AS __count`, plan.Count.SQL)
}

func TestPlanConnection_SeekArity(t *testing.T) {
	shape := positionShape(t)
	order, err := CompileOrder(shape, nil)
	require.NoError(t, err)
	_, err = PlanConnection(sqliteDialect, shape.Model, Filter{}, order, []interface{}{1, 2}, 5)
	assert.Error(t, err)
}

func TestClampFirst(t *testing.T) {
	intPtr := func(v int) *int { return &v }

	n, err := ClampFirst(nil, 25, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	n, err = ClampFirst(intPtr(500), 25, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, n)

	n, err = ClampFirst(intPtr(0), 25, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = ClampFirst(intPtr(-1), 25, 100)
	assert.Error(t, err)
}

func TestPlanEntities(t *testing.T) {
	one, err := PlanEntitiesByKeys(sqliteDialect, []string{"0x2"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT `id`, `keys`, `model_names` FROM `entities` WHERE `keys` = ?", one.SQL)

	many, err := PlanEntitiesByKeys(sqliteDialect, []string{"0x2", "0x3"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT `id`, `keys`, `model_names` FROM `entities` WHERE `keys` IN (?,?)", many.SQL)
	assert.Equal(t, []interface{}{"0x2", "0x3"}, many.Args)

	byID, err := PlanEntityByID(sqliteDialect, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "SELECT `id`, `keys`, `model_names` FROM `entities` WHERE `id` = ?", byID.SQL)
}
