package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jobez/dojo/internal/dialect"
	"github.com/jobez/dojo/internal/schema"
	"github.com/jobez/dojo/internal/typebuilder"
)

var sqliteDialect = dialect.MustFor(dialect.SQLite)

const felt2 = "0x0000000000000000000000000000000000000000000000000000000000000002"

func positionShape(t *testing.T) *typebuilder.Shape {
	t.Helper()
	shape, err := typebuilder.Build(schema.Model{Name: "Position", Version: 1, Fields: []schema.Field{
		{Name: "player", Type: "ContractAddress", Kind: schema.KindFelt, Key: true},
		{Name: "x", Type: "u32", Kind: schema.KindInt},
		{Name: "y", Type: "u32", Kind: schema.KindInt},
		{Name: "label", Type: "ByteArray", Kind: schema.KindString},
		{Name: "blob", Type: "bytes", Kind: schema.KindBytes},
	}})
	require.NoError(t, err)
	return shape
}
