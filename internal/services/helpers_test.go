package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/commdir/apiserver/config"
	"github.com/commdir/apiserver/internal/auth"
	"github.com/commdir/apiserver/internal/db"
	"github.com/commdir/apiserver/internal/events"
	"github.com/commdir/apiserver/internal/store"
	"github.com/commdir/apiserver/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSQLiteRepo(t *testing.T) *store.AdminRepository {
	t.Helper()

	cfg := config.Config{Database: config.DatabaseConfig{Driver: config.DriverSQLite}}
	conn, err := db.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	m, err := db.NewMigrator(conn, config.DriverSQLite)
	require.NoError(t, err)
	require.NoError(t, db.MigrateUp(m))

	return store.NewAdminRepository(conn)
}

func newTestHasher() *auth.BcryptHasher {
	return auth.NewBcryptHasher(bcrypt.MinCost)
}

type publishedEvent struct {
	Type  events.Type
	Admin types.AdminAccount
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, eventType events.Type, admin types.AdminAccount) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Type: eventType, Admin: admin})
	return p.err
}

func (p *fakePublisher) eventTypes() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func strPtr(s string) *string {
	return &s
}
