package planner

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/jobez/dojo/internal/dialect"
	"github.com/jobez/dojo/internal/schema"
)

// Entity table layout.
const (
	EntityTable            = "entities"
	EntityIDColumn         = "id"
	EntityKeysColumn       = "keys"
	EntityModelNamesColumn = "model_names"
)

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

func entityColumns(d dialect.Dialect) []string {
	return []string{d.Quote(EntityIDColumn), d.Quote(EntityKeysColumn), d.Quote(EntityModelNamesColumn)}
}

// PlanEntitiesByKeys builds the lookup of entities by their encoded key tuples.
func PlanEntitiesByKeys(d dialect.Dialect, keys []string) (SQLQuery, error) {
	values := make([]interface{}, len(keys))
	for i, k := range keys {
		values[i] = k
	}
	var cond sq.Sqlizer = sq.Eq{d.Quote(EntityKeysColumn): values}
	if len(values) == 1 {
		cond = sq.Eq{d.Quote(EntityKeysColumn): values[0]}
	}
	query, args, err := d.Builder().
		Select(entityColumns(d)...).
		From(d.Quote(EntityTable)).
		Where(cond).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanEntityByID builds the lookup of one entity by id.
func PlanEntityByID(d dialect.Dialect, id string) (SQLQuery, error) {
	query, args, err := d.Builder().
		Select(entityColumns(d)...).
		From(d.Quote(EntityTable)).
		Where(sq.Eq{d.Quote(EntityIDColumn): id}).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanRowExists builds a check for one model row by its identity.
func PlanRowExists(d dialect.Dialect, model string, id int64) (SQLQuery, error) {
	query, args, err := d.Builder().
		Select("1").
		From(d.Quote(model)).
		Where(sq.Eq{d.Quote(schema.IdentityColumn): id}).
		Limit(1).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}
