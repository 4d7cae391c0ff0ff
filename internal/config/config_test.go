package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadControllerMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadController(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultController(), cfg)
}

func TestLoadControllerOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "controller.yaml")
	require.NoError(t, writeFile(path, `
bind_address: "127.0.0.1"
port: 9999
database:
  host: db.internal
  dbname: lobby
`))

	cfg, err := LoadController(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.BindAddress)
	require.Equal(t, 9999, cfg.Port)
	require.Equal(t, "db.internal", cfg.Database.Host)
	require.Equal(t, "lobby", cfg.Database.DBName)
	// untouched fields keep their defaults
	require.Equal(t, "info", cfg.LogLevel)
}

func TestDatabaseConfigDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", DBName: "db", SSLMode: "disable"}
	require.Equal(t, "postgres://u:p@h:5432/db?sslmode=disable", d.DSN())
}

func TestDatabaseConfigDSNWithPoolParams(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", DBName: "db", SSLMode: "disable", MaxConns: 10}
	require.Equal(t, "postgres://u:p@h:5432/db?sslmode=disable&pool_max_conns=10", d.DSN())
}

func TestLoadNodeCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nodes.yaml")
	require.NoError(t, writeFile(path, `
nodes:
  - id: 1
    name: eu-1
    addr: 10.0.0.1:7000
    country: DE
    capacity: 50
  - id: 2
    name: us-1
    addr: 10.0.0.2:7000
    country: US
    capacity: 25
`))

	catalog, err := LoadNodeCatalog(path)
	require.NoError(t, err)
	require.Len(t, catalog, 2)
	require.Equal(t, "eu-1", catalog[1].Name)
	require.Equal(t, int32(25), catalog[2].Capacity)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
