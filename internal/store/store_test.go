package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobez/dojo/internal/dialect"
	"github.com/jobez/dojo/internal/store"
	"github.com/jobez/dojo/internal/testutil"
)

func TestModelTableDDL(t *testing.T) {
	m := testutil.Model(t, "Moves", "#player:ContractAddress", "remaining:u8", "can_move:bool")

	ddl := store.ModelTableDDL(dialect.MustFor(dialect.MySQL), m)
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS `Moves`")
	assert.Contains(t, ddl, "`internal_id` BIGINT AUTO_INCREMENT PRIMARY KEY")
	assert.Contains(t, ddl, "`player` CHAR(66) NOT NULL")
	assert.Contains(t, ddl, "`remaining` BIGINT NOT NULL")
	assert.Contains(t, ddl, "`can_move` BOOLEAN NOT NULL")
	assert.Contains(t, ddl, "UNIQUE (`player`)")

	ddl = store.ModelTableDDL(dialect.MustFor(dialect.Postgres), m)
	assert.Contains(t, ddl, `"internal_id" BIGSERIAL PRIMARY KEY`)
	assert.Contains(t, ddl, `"player" TEXT NOT NULL`)
}

func TestCatalogDDL(t *testing.T) {
	stmts := store.CatalogDDL(dialect.MustFor(dialect.SQLite))
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS `models`")
	assert.Contains(t, stmts[1], "PRIMARY KEY (`model_name`, `position`)")
	assert.Contains(t, stmts[2], "`keys` TEXT NOT NULL UNIQUE")
}

func TestLoadRegistryRoundTrip(t *testing.T) {
	w := testutil.NewWorld(t)
	w.RegisterModel(t, testutil.Model(t, "Position", "#player:ContractAddress", "x:u32", "y:u32"))
	w.RegisterModel(t, testutil.Model(t, "Moves", "#player:ContractAddress", "#game:u32", "remaining:u8"))

	ctx := context.Background()
	registry, skipped, err := store.LoadRegistry(ctx, w.Exec, w.Dialect)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, w.Registry.Fingerprint(), registry.Fingerprint())

	moves, err := registry.Get("Moves")
	require.NoError(t, err)
	keys := moves.KeyFields()
	require.Len(t, keys, 2)
	assert.Equal(t, "player", keys[0].Name)
	assert.Equal(t, "game", keys[1].Name)

	version, err := store.CatalogVersion(ctx, w.Exec, w.Dialect)
	require.NoError(t, err)
	assert.Equal(t, "2:2", version)
}

func TestCatalogVersionEmpty(t *testing.T) {
	w := testutil.NewWorld(t)
	version, err := store.CatalogVersion(context.Background(), w.Exec, w.Dialect)
	require.NoError(t, err)
	assert.Equal(t, "0:0", version)
}

func TestLoadRegistrySkipsUnmappableModels(t *testing.T) {
	w := testutil.NewWorld(t)
	w.RegisterModel(t, testutil.Model(t, "Position", "#player:ContractAddress", "x:u32"))
	w.MustExec(t, "INSERT INTO `models` (`name`, `version`) VALUES (?, ?)", "Broken", 1)
	w.MustExec(t, "INSERT INTO `model_members` (`model_name`, `position`, `name`, `type`, `is_key`) VALUES (?, ?, ?, ?, ?)",
		"Broken", 0, "cells", "Array<u8>", true)
	w.MustExec(t, "INSERT INTO `models` (`name`, `version`) VALUES (?, ?)", "Keyless", 1)
	w.MustExec(t, "INSERT INTO `model_members` (`model_name`, `position`, `name`, `type`, `is_key`) VALUES (?, ?, ?, ?, ?)",
		"Keyless", 0, "count", "u8", false)

	registry, skipped, err := store.LoadRegistry(context.Background(), w.Exec, w.Dialect)
	require.NoError(t, err)

	_, err = registry.Get("Position")
	assert.NoError(t, err)
	require.Len(t, skipped, 2)
	assert.Equal(t, "Broken", skipped[0].Name)
	assert.Contains(t, skipped[0].Err.Error(), "Array<u8>")
	assert.Equal(t, "Keyless", skipped[1].Name)
	assert.Len(t, registry.Models(), 1)
}

func TestSetRecordUpdatesInPlace(t *testing.T) {
	w := testutil.NewWorld(t)
	w.RegisterModel(t, testutil.Model(t, "Position", "#player:ContractAddress", "x:u32", "y:u32"))

	first := w.SetRecord(t, "Position", map[string]interface{}{"player": "0x1", "x": 1, "y": 1})
	second := w.SetRecord(t, "Position", map[string]interface{}{"player": "0x01", "x": 2, "y": 3})
	assert.Equal(t, first, second)

	var x, y int64
	require.NoError(t, w.DB.QueryRow("SELECT `x`, `y` FROM `Position` WHERE `internal_id` = ?", first).Scan(&x, &y))
	assert.Equal(t, int64(2), x)
	assert.Equal(t, int64(3), y)

	var count int
	require.NoError(t, w.DB.QueryRow("SELECT COUNT(*) FROM `entities`").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSetRecordRequiresKeys(t *testing.T) {
	w := testutil.NewWorld(t)
	m := w.RegisterModel(t, testutil.Model(t, "Position", "#player:ContractAddress", "x:u32"))

	_, err := w.Writer.SetRecord(context.Background(), m, map[string]interface{}{"x": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key member is required")
}

func TestEntityMembership(t *testing.T) {
	w := testutil.NewWorld(t)
	position := w.RegisterModel(t, testutil.Model(t, "Position", "#player:ContractAddress", "x:u32"))
	w.RegisterModel(t, testutil.Model(t, "Moves", "#player:ContractAddress", "remaining:u8"))
	w.SetRecord(t, "Position", map[string]interface{}{"player": "0x1", "x": 1})
	w.SetRecord(t, "Moves", map[string]interface{}{"player": "0x1", "remaining": 3})

	var id, names string
	require.NoError(t, w.DB.QueryRow("SELECT `id`, `model_names` FROM `entities` WHERE `keys` = ?", "0x1").Scan(&id, &names))
	assert.Equal(t, store.EntityID("0x1"), id)
	assert.Equal(t, "Moves,Position", names)

	ctx := context.Background()
	require.NoError(t, w.Writer.DeleteRecord(ctx, position, map[string]interface{}{"player": "0x1"}))
	require.NoError(t, w.DB.QueryRow("SELECT `model_names` FROM `entities` WHERE `keys` = ?", "0x1").Scan(&names))
	assert.Equal(t, "Moves", names)

	moves, err := w.Registry.Get("Moves")
	require.NoError(t, err)
	require.NoError(t, w.Writer.DeleteRecord(ctx, moves, map[string]interface{}{"player": "0x1"}))

	var count int
	require.NoError(t, w.DB.QueryRow("SELECT COUNT(*) FROM `entities`").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestEntityID(t *testing.T) {
	id := store.EntityID("0x1")
	assert.Len(t, id, 2+62)
	assert.NotEqual(t, id, store.EntityID("0x2"))
}
