package archive

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/raphaelgruber/victor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testStore *Store

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() || os.Getenv("VICTOR_SKIP_CONTAINERS") != "" {
		os.Exit(m.Run())
	}
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v2.3.7",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start surrealdb container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("container port: %v", err)
	}

	store, err := Open(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, port.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
	}, nil)
	if err != nil {
		log.Fatalf("open archive: %v", err)
	}
	testStore = store

	code := m.Run()

	_ = store.Close(ctx)
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func requireStore(t *testing.T) *Store {
	t.Helper()
	if testStore == nil {
		t.Skip("skipping integration test in short mode")
	}
	return testStore
}

func TestStoreSaveLoad(t *testing.T) {
	store := requireStore(t)
	ctx := context.Background()

	msgs := []models.Message{
		{ID: "victor-1", Role: models.RoleAssistant, Content: "Victor online. Awaiting directives, Operator."},
		{ID: "user-1", Role: models.RoleUser, Content: "what is go"},
		{ID: "model-1", Role: models.RoleAssistant, Content: "A language.", Sources: []models.Citation{{URI: "https://go.dev", Title: "Go"}}},
		{ID: "error-1", Role: models.RoleError, Content: "Critical system failure: boom"},
	}
	require.NoError(t, store.Save(ctx, "save-load", msgs))

	got, err := store.Load(ctx, "save-load")
	require.NoError(t, err)
	assert.Equal(t, msgs, got)

	// Saving again replaces the transcript.
	require.NoError(t, store.Save(ctx, "save-load", msgs[:2]))
	got, err = store.Load(ctx, "save-load")
	require.NoError(t, err)
	assert.Equal(t, msgs[:2], got)

	list, err := store.List(ctx, 10)
	require.NoError(t, err)
	var found bool
	for _, s := range list {
		if s.SessionID == "save-load" {
			found = true
			assert.Equal(t, 2, s.MessageCount)
		}
	}
	assert.True(t, found)
}

func TestStoreLoadMissing(t *testing.T) {
	store := requireStore(t)
	_, err := store.Load(context.Background(), "never-saved")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreSaveEmptySession(t *testing.T) {
	store := &Store{}
	assert.ErrorIs(t, store.Save(context.Background(), " ", nil), ErrEmptySession)
}
