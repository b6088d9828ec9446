//go:build integration

package storagetest

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresImage ships the vector extension used by the pgvector index.
const PostgresImage = "pgvector/pgvector:pg17"

// StartPostgres starts a disposable Postgres container and returns its DSN
// and a teardown function. Call it from TestMain.
func StartPostgres(ctx context.Context) (string, func(ctx context.Context, opts ...testcontainers.TerminateOption) error, error) {
	pgContainer, err := postgres.Run(
		ctx,
		PostgresImage,
		postgres.WithDatabase("artribune"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return "", nil, fmt.Errorf("error starting postgres container: %w", err)
	}

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		pgContainer.Terminate(ctx)
		return "", nil, fmt.Errorf("error getting connection string: %w", err)
	}
	return dsn, pgContainer.Terminate, nil
}
