package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobez/dojo/internal/naming"
	"github.com/jobez/dojo/internal/query"
	"github.com/jobez/dojo/internal/testutil"
)

type positionNode struct {
	Player string `json:"player"`
	X      uint32 `json:"x"`
	Y      int    `json:"y"`
	Entity struct {
		ID         string   `json:"id"`
		Keys       []string `json:"keys"`
		ModelNames []string `json:"modelNames"`
	} `json:"entity"`
}

type positionConnection struct {
	TotalCount int `json:"totalCount"`
	Edges      []struct {
		Cursor string       `json:"cursor"`
		Node   positionNode `json:"node"`
	} `json:"edges"`
	PageInfo struct {
		HasNextPage     bool    `json:"hasNextPage"`
		HasPreviousPage bool    `json:"hasPreviousPage"`
		StartCursor     *string `json:"startCursor"`
		EndCursor       *string `json:"endCursor"`
	} `json:"pageInfo"`
}

func newTestSchema(t *testing.T, cfg naming.Config) (*testutil.World, graphql.Schema) {
	t.Helper()
	w := testutil.NewWorld(t)
	w.RegisterModel(t, testutil.Model(t, "Position", "#player:ContractAddress", "x:u32", "y:u16"))
	w.RegisterModel(t, testutil.Model(t, "Moves", "#player:ContractAddress", "remaining:u8", "can_move:bool"))
	w.SetRecord(t, "Position", map[string]interface{}{"player": "0x1", "x": 42, "y": 69})
	w.SetRecord(t, "Position", map[string]interface{}{"player": "0x2", "x": 69, "y": 42})
	w.SetRecord(t, "Moves", map[string]interface{}{"player": "0x1", "remaining": 3, "can_move": true})

	engine := query.NewEngine(w.Registry, nil, w.Dialect, w.Exec, query.Options{})
	s, err := NewResolver(engine, cfg, nil).BuildGraphQLSchema()
	require.NoError(t, err)
	return w, s
}

func run(t *testing.T, s graphql.Schema, request string) *graphql.Result {
	t.Helper()
	return graphql.Do(graphql.Params{
		Schema:        s,
		RequestString: request,
		Context:       query.NewBatchingContext(context.Background()),
	})
}

func decode(t *testing.T, result *graphql.Result, field string, out interface{}) {
	t.Helper()
	require.Empty(t, result.Errors)
	data, ok := result.Data.(map[string]interface{})
	require.True(t, ok)
	raw, err := json.Marshal(data[field])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

const positionSelection = `{
	totalCount
	edges { cursor node { player x y entity { id keys modelNames } } }
	pageInfo { hasNextPage hasPreviousPage startCursor endCursor }
}`

func TestPositionModelsFilterAndOrder(t *testing.T) {
	_, s := newTestSchema(t, naming.DefaultConfig())

	result := run(t, s, `{ positionModels(where: {xGTE: 42}, order: {field: X, direction: ASC}) `+positionSelection+` }`)
	var conn positionConnection
	decode(t, result, "positionModels", &conn)

	assert.Equal(t, 2, conn.TotalCount)
	require.Len(t, conn.Edges, 2)
	assert.Equal(t, uint32(42), conn.Edges[0].Node.X)
	assert.Equal(t, uint32(69), conn.Edges[1].Node.X)
	assert.Equal(t, "0x1", conn.Edges[0].Node.Player)
	assert.Equal(t, 69, conn.Edges[0].Node.Y)
	assert.Equal(t, []string{"Moves", "Position"}, conn.Edges[0].Node.Entity.ModelNames)
	assert.Equal(t, []string{"0x2"}, conn.Edges[1].Node.Entity.Keys)
	assert.False(t, conn.PageInfo.HasNextPage)
	assert.False(t, conn.PageInfo.HasPreviousPage)
	require.NotNil(t, conn.PageInfo.EndCursor)
	assert.Equal(t, conn.Edges[1].Cursor, *conn.PageInfo.EndCursor)

	result = run(t, s, `{ positionModels(where: {xLT: 42}) { totalCount edges { cursor } pageInfo { endCursor } } }`)
	decode(t, result, "positionModels", &conn)
	assert.Equal(t, 0, conn.TotalCount)
	assert.Empty(t, conn.Edges)
	assert.Nil(t, conn.PageInfo.EndCursor)
}

func TestUnsignedMembersAreJSONNumbers(t *testing.T) {
	_, s := newTestSchema(t, naming.DefaultConfig())

	result := run(t, s, `{ positionModels(where: {x: 42}, order: {field: X, direction: ASC}) { edges { node { x y } } } }`)
	require.Empty(t, result.Errors)
	raw, err := json.Marshal(result.Data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"positionModels":{"edges":[{"node":{"x":42,"y":69}}]}}`, string(raw))

	result = run(t, s, `{ positionModels(where: {xGT: -1}) { totalCount } }`)
	var conn positionConnection
	decode(t, result, "positionModels", &conn)
	assert.Equal(t, 2, conn.TotalCount)
}

func TestPositionModelsKeyFilter(t *testing.T) {
	_, s := newTestSchema(t, naming.DefaultConfig())

	result := run(t, s, `{ positionModels(where: {player: "0x0002"}) `+positionSelection+` }`)
	var conn positionConnection
	decode(t, result, "positionModels", &conn)
	require.Len(t, conn.Edges, 1)
	assert.Contains(t, conn.Edges[0].Node.Entity.Keys, "0x2")
	assert.Contains(t, conn.Edges[0].Node.Entity.ModelNames, "Position")
}

func TestPositionModelsPaging(t *testing.T) {
	_, s := newTestSchema(t, naming.DefaultConfig())

	result := run(t, s, `{ positionModels(first: 1, order: {field: Y, direction: DESC}) `+positionSelection+` }`)
	var first positionConnection
	decode(t, result, "positionModels", &first)
	assert.Equal(t, 2, first.TotalCount)
	require.Len(t, first.Edges, 1)
	assert.Equal(t, 69, first.Edges[0].Node.Y)
	assert.True(t, first.PageInfo.HasNextPage)

	result = run(t, s, fmt.Sprintf(`{ positionModels(first: 1, after: %q, order: {field: Y, direction: DESC}) %s }`,
		*first.PageInfo.EndCursor, positionSelection))
	var second positionConnection
	decode(t, result, "positionModels", &second)
	assert.Equal(t, 2, second.TotalCount)
	require.Len(t, second.Edges, 1)
	assert.Equal(t, 42, second.Edges[0].Node.Y)
	assert.False(t, second.PageInfo.HasNextPage)
	assert.True(t, second.PageInfo.HasPreviousPage)

	// The same cursor under another order is rejected.
	result = run(t, s, fmt.Sprintf(`{ positionModels(first: 1, after: %q, order: {field: Y, direction: ASC}) { totalCount } }`,
		*first.PageInfo.EndCursor))
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "cursor", result.Errors[0].Extensions["code"])
}

func TestInvalidInputsAreRejected(t *testing.T) {
	_, s := newTestSchema(t, naming.DefaultConfig())

	tests := []struct {
		name    string
		request string
	}{
		{"unknown field", `{ positionModels(where: {z: "1"}) { totalCount } }`},
		{"GT on bool", `{ movesModels(where: {can_moveGT: true}) { totalCount } }`},
		{"bad felt", `{ positionModels(where: {player: "0xzz"}) { totalCount } }`},
		{"negative first", `{ positionModels(first: -1) { totalCount } }`},
		{"unknown order field", `{ positionModels(order: {field: Z, direction: ASC}) { totalCount } }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := run(t, s, tt.request)
			assert.NotEmpty(t, result.Errors)
		})
	}
}

func TestCursorErrorCarriesCode(t *testing.T) {
	_, s := newTestSchema(t, naming.DefaultConfig())

	result := run(t, s, `{ positionModels(after: "garbage") { totalCount } }`)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "cursor", result.Errors[0].Extensions["code"])
}

func TestEntityLookup(t *testing.T) {
	_, s := newTestSchema(t, naming.DefaultConfig())

	result := run(t, s, `{ positionModels(where: {player: "0x1"}) { edges { node { entity { id } } } } }`)
	var conn positionConnection
	decode(t, result, "positionModels", &conn)
	require.Len(t, conn.Edges, 1)
	id := conn.Edges[0].Node.Entity.ID

	result = run(t, s, fmt.Sprintf(`{ entity(id: %q) { id keys modelNames } }`, id))
	var entity struct {
		ID         string   `json:"id"`
		Keys       []string `json:"keys"`
		ModelNames []string `json:"modelNames"`
	}
	decode(t, result, "entity", &entity)
	assert.Equal(t, id, entity.ID)
	assert.Equal(t, []string{"0x1"}, entity.Keys)
	assert.Equal(t, []string{"Moves", "Position"}, entity.ModelNames)

	result = run(t, s, `{ entity(id: "0xdead") { id } }`)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "not_found", result.Errors[0].Extensions["code"])
}

func TestMissingEntitySurfacesConsistencyError(t *testing.T) {
	w, s := newTestSchema(t, naming.DefaultConfig())
	w.MustExec(t, "DELETE FROM `entities` WHERE `keys` = ?", "0x2")

	result := run(t, s, `{ positionModels(where: {player: "0x2"}) { edges { node { entity { id } } } } }`)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "consistency", result.Errors[0].Extensions["code"])
}

func TestModelsIntrospection(t *testing.T) {
	_, s := newTestSchema(t, naming.DefaultConfig())

	result := run(t, s, `{ models { name version queryName members { name type kind key } } }`)
	var models []struct {
		Name      string `json:"name"`
		Version   int    `json:"version"`
		QueryName string `json:"queryName"`
		Members   []struct {
			Name string `json:"name"`
			Type string `json:"type"`
			Kind string `json:"kind"`
			Key  bool   `json:"key"`
		} `json:"members"`
	}
	decode(t, result, "models", &models)
	require.Len(t, models, 2)
	assert.Equal(t, "Moves", models[0].Name)
	assert.Equal(t, "movesModels", models[0].QueryName)
	assert.Equal(t, "Position", models[1].Name)
	require.Len(t, models[1].Members, 3)
	assert.Equal(t, "player", models[1].Members[0].Name)
	assert.True(t, models[1].Members[0].Key)
	assert.Equal(t, "ContractAddress", models[1].Members[0].Type)
}

func TestPluralQueryStyle(t *testing.T) {
	cfg := naming.DefaultConfig()
	cfg.QueryStyle = naming.QueryStylePlural
	_, s := newTestSchema(t, cfg)

	result := run(t, s, `{ positions { totalCount } }`)
	var conn positionConnection
	decode(t, result, "positions", &conn)
	assert.Equal(t, 2, conn.TotalCount)
}

func TestGeneratedInputShapes(t *testing.T) {
	_, s := newTestSchema(t, naming.DefaultConfig())

	where, ok := s.Type("PositionWhereInput").(*graphql.InputObject)
	require.True(t, ok)
	fields := where.Fields()
	for _, name := range []string{"x", "xNEQ", "xGT", "xGTE", "xLT", "xLTE", "player", "playerGT"} {
		assert.Contains(t, fields, name)
	}

	moves, ok := s.Type("MovesWhereInput").(*graphql.InputObject)
	require.True(t, ok)
	assert.Contains(t, moves.Fields(), "can_move")
	assert.Contains(t, moves.Fields(), "can_moveNEQ")
	assert.NotContains(t, moves.Fields(), "can_moveGT")

	orderField, ok := s.Type("MovesOrderField").(*graphql.Enum)
	require.True(t, ok)
	var values []string
	for _, v := range orderField.Values() {
		values = append(values, v.Name)
	}
	assert.ElementsMatch(t, []string{"PLAYER", "REMAINING", "CAN_MOVE"}, values)
}
