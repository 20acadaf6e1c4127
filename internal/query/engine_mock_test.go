package query

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobez/dojo/internal/dbexec"
	"github.com/jobez/dojo/internal/dialect"
	"github.com/jobez/dojo/internal/planner"
	"github.com/jobez/dojo/internal/queryerr"
	"github.com/jobez/dojo/internal/schema"
)

const feltTwo = "0x0000000000000000000000000000000000000000000000000000000000000002"

func newMockEngine(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	registry := schema.NewRegistry()
	player, err := schema.NewField("player", "ContractAddress", true)
	require.NoError(t, err)
	x, err := schema.NewField("x", "u32", false)
	require.NoError(t, err)
	label, err := schema.NewField("label", "ByteArray", false)
	require.NoError(t, err)
	require.NoError(t, registry.Register(schema.Model{Name: "Position", Version: 1, Fields: []schema.Field{player, x, label}}))

	engine := NewEngine(registry, nil, dialect.MustFor(dialect.SQLite), dbexec.NewStandardExecutor(db), Options{})
	return engine, mock
}

func TestInvalidArgumentsNeverReachTheStore(t *testing.T) {
	tests := []struct {
		name string
		args Args
		kind queryerr.Kind
	}{
		{"unknown member", Args{Where: map[string]interface{}{"z": 1}}, queryerr.KindSchemaValidation},
		{"GT on string", Args{Where: map[string]interface{}{"labelGT": "a"}}, queryerr.KindSchemaValidation},
		{"bad value", Args{Where: map[string]interface{}{"x": "forty-two"}}, queryerr.KindSchemaValidation},
		{"null value", Args{Where: map[string]interface{}{"x": nil}}, queryerr.KindSchemaValidation},
		{"bad direction", Args{Order: &planner.OrderInput{Field: "X", Direction: "UP"}}, queryerr.KindSchemaValidation},
		{"unorderable", Args{Order: &planner.OrderInput{Field: "Z", Direction: "ASC"}}, queryerr.KindSchemaValidation},
		{"negative first", Args{First: intPtr(-5)}, queryerr.KindSchemaValidation},
		{"bad cursor", Args{After: strPtr("AAAA")}, queryerr.KindCursor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, mock := newMockEngine(t)
			conn, err := engine.Connection(context.Background(), "Position", tt.args)
			require.Error(t, err)
			assert.Nil(t, conn)
			assert.True(t, queryerr.Is(err, tt.kind), "got %v", err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCountAndPageShareOneTransaction(t *testing.T) {
	engine, mock := newMockEngine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM (SELECT * FROM `Position` WHERE `x` >= ?) AS __count")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT `internal_id`, `player`, `x`, `label` FROM `Position` WHERE `x` >= ? ORDER BY `internal_id` ASC LIMIT 2")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"internal_id", "player", "x", "label"}).
			AddRow(int64(1), feltTwo, int64(42), "north").
			AddRow(int64(2), feltTwo, int64(69), "south"))
	mock.ExpectCommit()

	conn, err := engine.Connection(context.Background(), "Position", Args{
		Where: map[string]interface{}{"xGTE": 42},
		First: intPtr(1),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, conn.TotalCount)
	require.Len(t, conn.Edges, 1)
	assert.True(t, conn.HasNextPage)
	assert.Equal(t, int64(1), conn.Edges[0].Node.ID)
	assert.Equal(t, "0x2", conn.Edges[0].Node.Values["player"])
	assert.Equal(t, "north", conn.Edges[0].Node.Values["label"])
	assert.NotEmpty(t, conn.Edges[0].Cursor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreFailureIsWrappedAndRolledBack(t *testing.T) {
	engine, mock := newMockEngine(t)
	driverErr := &mysql.MySQLError{Number: 1146, Message: "Table 'world.Position' doesn't exist"}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT").WillReturnError(driverErr)
	mock.ExpectRollback()

	conn, err := engine.Connection(context.Background(), "Position", Args{})
	require.Error(t, err)
	assert.Nil(t, conn)
	assert.True(t, queryerr.Is(err, queryerr.KindStore))
	assert.NotContains(t, err.Error(), "doesn't exist")
	assert.True(t, errors.Is(err, driverErr))

	var qe *queryerr.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "1146", qe.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPageFailureDiscardsCount(t *testing.T) {
	engine, mock := newMockEngine(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectQuery("SELECT `internal_id`").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	conn, err := engine.Connection(context.Background(), "Position", Args{})
	assert.Nil(t, conn)
	assert.True(t, queryerr.Is(err, queryerr.KindStore))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelledContextSurfacesStoreError(t *testing.T) {
	engine, mock := newMockEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Connection(ctx, "Position", Args{})
	require.Error(t, err)
	assert.True(t, queryerr.Is(err, queryerr.KindStore))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, mock.ExpectationsWereMet())
}
