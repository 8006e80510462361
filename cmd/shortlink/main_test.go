package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/SergeiKhy/shortlink-directory/internal/config"
	"github.com/SergeiKhy/shortlink-directory/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	names := []string{}
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "migrate")
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestMigrateCmd_SQLite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "data", "shortlink.db")
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("STORE_DRIVER=sqlite\nSQLITE_PATH="+dbPath+"\nLOG_LEVEL=error\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"migrate", "--config", envFile})
	require.NoError(t, cmd.Execute())

	db, err := repository.NewSQLiteDB(config.SQLiteConfig{Path: dbPath})
	require.NoError(t, err)
	defer db.Close()

	var tables int
	err = db.DB.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('links', 'link_owners')`,
	).Scan(&tables)
	require.NoError(t, err)
	assert.Equal(t, 2, tables)
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(&config.Config{App: config.AppConfig{Env: "development"}, Log: config.LogConfig{Level: "debug"}})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = newLogger(&config.Config{Log: config.LogConfig{Level: "loud"}})
	assert.Error(t, err)
}
