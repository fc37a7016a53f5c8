package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{
		User:     "viewcache",
		Password: "secret",
		Name:     "viewcache",
		Host:     "db.internal",
		Port:     5433,
	})
	require.NoError(t, err)
	require.Contains(t, dsn, "host=db.internal")
	require.Contains(t, dsn, "port=5433")
	require.Contains(t, dsn, "password=secret")
	require.Contains(t, dsn, "sslmode=disable")
}

func TestBuildPostgresDSNRequiresUser(t *testing.T) {
	_, err := buildPostgresDSN(Config{Name: "viewcache"})
	require.Error(t, err)
}

func TestBuildMySQLDSNDefaults(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "root", Name: "viewcache"})
	require.NoError(t, err)
	require.Contains(t, dsn, "root@tcp(127.0.0.1:3306)/viewcache")
	require.Contains(t, dsn, "parseTime=True")
}

func TestBuildMySQLDSNHonoursDSNOverride(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{DSN: "custom-dsn"})
	require.NoError(t, err)
	require.Equal(t, "custom-dsn", dsn)
}
