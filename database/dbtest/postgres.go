// Package dbtest starts a throwaway PostgreSQL container for repository tests.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"vuoksi-trader/database"
	"vuoksi-trader/logging"
)

// StartPostgres returns a migrated database backed by a postgres:16-alpine
// container. The test is skipped in -short mode or without a container runtime.
func StartPostgres(t *testing.T) *database.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "vuoksi",
				"POSTGRES_PASSWORD": "vuoksi",
				"POSTGRES_DB":       "vuoksi_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := database.Connect(database.Config{
		Host:     host,
		Port:     port.Port(),
		User:     "vuoksi",
		Password: "vuoksi",
		DBName:   "vuoksi_test",
	}, logging.NewSilentLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.InitSchema())
	return db
}
