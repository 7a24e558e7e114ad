package integration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/claramente/claramente/internal/domain/risk"
	"github.com/claramente/claramente/internal/platform/db"
	"github.com/claramente/claramente/migrations"
)

// testDB holds the shared container for the package.
type testDB struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

var globalDB *testDB

func TestMain(m *testing.M) {
	if _, err := exec.LookPath("docker"); err != nil {
		fmt.Fprintln(os.Stderr, "docker not found, skipping integration tests")
		os.Exit(0)
	}
	ctx := context.Background()

	connStr, cleanup, err := startPostgresContainer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup postgres container: %v\n", err)
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "create pool: %v\n", err)
		os.Exit(1)
	}

	globalDB = &testDB{Pool: pool, ConnStr: connStr}
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// newSchemaPool migrates a fresh schema and returns a pool whose search_path
// points at it, so tests never see each other's rows.
func newSchemaPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	schema := "it_" + strings.ReplaceAll(uuid.NewString()[:13], "-", "")

	migrator, err := db.NewMigrator(globalDB.Pool, migrations.FS).WithSchema(schema)
	if err != nil {
		t.Fatalf("migrator: %v", err)
	}
	if _, err := migrator.Up(ctx); err != nil {
		t.Fatalf("migrate %s: %v", schema, err)
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             globalDB.ConnStr + "&search_path=" + schema,
		MaxConns:        20,
		ApplicationName: "claramente-integration",
	})
	if err != nil {
		t.Fatalf("schema pool: %v", err)
	}
	t.Cleanup(func() {
		pool.Close()
		if _, err := globalDB.Pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+pgx.Identifier{schema}.Sanitize()+" CASCADE"); err != nil {
			t.Logf("warning: drop schema %s: %v", schema, err)
		}
	})
	return pool
}

func newRiskServices(pool *pgxpool.Pool, repo risk.Repository) (*risk.Recorder, *risk.SummaryReader) {
	tx := db.NewTransactor(pool)
	opts := risk.DefaultOptions()
	return risk.NewRecorder(repo, tx, zerolog.Nop(), opts), risk.NewSummaryReader(repo, tx, zerolog.Nop(), opts)
}

func ptrBool(b bool) *bool { return &b }
