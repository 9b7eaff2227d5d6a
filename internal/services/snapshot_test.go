package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commdir/apiserver/internal/storage"
	"github.com/commdir/apiserver/types"
)

type captureWriter struct {
	key         string
	data        []byte
	size        int64
	contentType string
	err         error

	stored map[string][]byte
}

func (c *captureWriter) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if c.err != nil {
		return c.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.key, c.data, c.size, c.contentType = key, data, size, contentType
	if c.stored == nil {
		c.stored = map[string][]byte{}
	}
	c.stored[key] = data
	return nil
}

func (c *captureWriter) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := c.stored[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (c *captureWriter) Delete(ctx context.Context, key string) error {
	delete(c.stored, key)
	return nil
}

func (c *captureWriter) List(ctx context.Context, prefix string) ([]storage.Object, error) {
	var out []storage.Object
	for key, data := range c.stored {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.Object{Key: key, Size: int64(len(data))})
		}
	}
	return out, nil
}

type staticLister []types.AdminAccount

func (l staticLister) List(ctx context.Context) ([]types.AdminAccount, error) {
	return l, nil
}

func TestSnapshotServiceExport(t *testing.T) {
	writer := &captureWriter{}
	svc := NewSnapshotService(staticLister{
		{ID: 1, Username: "alice", Email: "a@x.com", PasswordHash: "secret-hash", Roles: types.RoleList{"admin"}},
		{ID: 2, Username: "bob", Email: "b@x.com", PasswordHash: "secret-hash"},
	}, writer, discardLogger())
	svc.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	key, err := svc.Export(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, `^snapshots/admins-20260304T050607\.000Z-[0-9a-f]{8}\.json$`, key)
	assert.Equal(t, key, writer.key)
	assert.Equal(t, "application/json", writer.contentType)
	assert.Equal(t, int64(len(writer.data)), writer.size)
	assert.NotContains(t, string(writer.data), "secret-hash")

	var snap Snapshot
	require.NoError(t, json.Unmarshal(writer.data, &snap))
	assert.Equal(t, 2, snap.Count)
	require.Len(t, snap.Admins, 2)
	assert.Equal(t, types.RoleList{"admin"}, snap.Admins[0].Roles)
	assert.Equal(t, types.RoleList{}, snap.Admins[1].Roles)
}

func TestSnapshotServiceUploadFailure(t *testing.T) {
	svc := NewSnapshotService(staticLister{}, &captureWriter{err: errors.New("bucket gone")}, discardLogger())
	_, err := svc.Export(context.Background())
	assert.ErrorIs(t, err, ErrInternal)
}

func TestSnapshotServiceListLoadPrune(t *testing.T) {
	ctx := context.Background()
	store := &captureWriter{}
	svc := NewSnapshotService(staticLister{
		{ID: 1, Username: "alice", Email: "a@x.com", Roles: types.RoleList{"admin"}},
	}, store, discardLogger())

	base := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	var keys []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		svc.now = func() time.Time { return at }
		key, err := svc.Export(ctx)
		require.NoError(t, err)
		keys = append(keys, key)
	}
	require.NoError(t, store.Put(ctx, "snapshots/admins-notes.txt", strings.NewReader("x"), 1, "text/plain"))

	listed, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, keys[2], listed[0].Key)
	assert.Equal(t, keys[0], listed[2].Key)

	snap, err := svc.Load(ctx, keys[1])
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Count)
	assert.Equal(t, base.Add(time.Hour), snap.GeneratedAt)

	_, err = svc.Load(ctx, "snapshots/admins-missing.json")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	_, err = svc.Prune(ctx, 0)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	deleted, err := svc.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{keys[1], keys[0]}, deleted)

	listed, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, keys[2], listed[0].Key)

	deleted, err = svc.Prune(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestSnapshotServiceExportsInSameInstantDoNotCollide(t *testing.T) {
	ctx := context.Background()
	objects := &captureWriter{}
	svc := NewSnapshotService(staticLister{{ID: 1, Username: "alice", Email: "a@x.com"}}, objects, discardLogger())
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	first, err := svc.Export(ctx)
	require.NoError(t, err)
	second, err := svc.Export(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	listed, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}
