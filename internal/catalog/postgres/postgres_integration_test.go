package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mercasmart/catalog-search/internal/catalog/catalogtest"
)

// testDSN returns a DSN from CATALOG_SEARCH_TEST_POSTGRES_DSN, or starts a pgvector
// container when CATALOG_SEARCH_TEST_CONTAINERS=1. Otherwise the test is skipped.
func testDSN(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("CATALOG_SEARCH_TEST_POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	if os.Getenv("CATALOG_SEARCH_TEST_CONTAINERS") != "1" {
		t.Skip("CATALOG_SEARCH_TEST_POSTGRES_DSN not set and containers disabled; skipping postgres store integration test")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "catalog",
			"POSTGRES_PASSWORD": "catalog",
			"POSTGRES_DB":       "catalog",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}
	return fmt.Sprintf("postgres://catalog:catalog@%s:%s/catalog?sslmode=disable", host, port.Port())
}

func makePGStore(t *testing.T) catalogtest.Full {
	t.Helper()
	db, err := Open(testDSN(t))
	if err != nil {
		t.Fatalf("postgres open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := NewWithDB(db)
	ctx := context.Background()
	// The suite indexes Dim-sized vectors; drop leftovers from earlier runs.
	if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS product_embeddings, products`); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := s.EnsureSchema(ctx, catalogtest.Dims()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

func TestPostgresStore_Compliance(t *testing.T) {
	catalogtest.Run(t, makePGStore)
}
