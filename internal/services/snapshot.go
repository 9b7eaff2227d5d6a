package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/commdir/apiserver/internal/storage"
	"github.com/commdir/apiserver/types"
)

const (
	snapshotPrefix     = "snapshots/admins-"
	snapshotTimeFormat = "20060102T150405.000Z"
)

// ErrSnapshotNotFound is returned by Load for an unknown key.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ObjectStore is the bucket surface snapshots need.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]storage.Object, error)
}

// AdminLister lists admin accounts.
type AdminLister interface {
	List(ctx context.Context) ([]types.AdminAccount, error)
}

// Snapshot is the exported directory document. Password hashes are never included.
type Snapshot struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Count       int                  `json:"count"`
	Admins      []types.AdminProfile `json:"admins"`
}

// SnapshotService exports the admin directory to object storage.
type SnapshotService struct {
	admins  AdminLister
	objects ObjectStore
	logger  *slog.Logger
	now     func() time.Time
}

func NewSnapshotService(admins AdminLister, objects ObjectStore, logger *slog.Logger) *SnapshotService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotService{admins: admins, objects: objects, logger: logger, now: time.Now}
}

// Export writes a snapshot and returns its object key.
func (s *SnapshotService) Export(ctx context.Context) (string, error) {
	admins, err := s.admins.List(ctx)
	if err != nil {
		return "", internalError("list admins", err)
	}

	generated := s.now().UTC()
	snap := Snapshot{
		GeneratedAt: generated,
		Count:       len(admins),
		Admins:      make([]types.AdminProfile, 0, len(admins)),
	}
	for _, admin := range admins {
		snap.Admins = append(snap.Admins, admin.Profile())
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", internalError("encode snapshot", err)
	}

	// The suffix keeps exports within the same millisecond from overwriting each other.
	key := fmt.Sprintf("%s%s-%s.json", snapshotPrefix, generated.Format(snapshotTimeFormat), uuid.NewString()[:8])
	if err := s.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return "", internalError("upload snapshot", err)
	}

	s.logger.InfoContext(ctx, "admin snapshot exported", "key", key, "count", snap.Count)
	return key, nil
}

// List returns stored snapshots, newest first.
func (s *SnapshotService) List(ctx context.Context) ([]storage.Object, error) {
	objects, err := s.objects.List(ctx, snapshotPrefix)
	if err != nil {
		return nil, internalError("list snapshots", err)
	}
	snapshots := make([]storage.Object, 0, len(objects))
	for _, o := range objects {
		if strings.HasSuffix(o.Key, ".json") {
			snapshots = append(snapshots, o)
		}
	}
	// Keys embed a fixed-width UTC timestamp, so key order is time order.
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Key > snapshots[j].Key })
	return snapshots, nil
}

// Load reads and decodes the snapshot stored at key.
func (s *SnapshotService) Load(ctx context.Context, key string) (Snapshot, error) {
	rc, err := s.objects.Get(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return Snapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return Snapshot{}, internalError("open snapshot", err)
	}
	defer rc.Close()

	var snap Snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return Snapshot{}, internalError("decode snapshot", err)
	}
	return snap, nil
}

// Prune deletes all but the newest keep snapshots and returns the deleted keys.
func (s *SnapshotService) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep < 1 {
		return nil, newValidationError("keep", "must be at least 1")
	}

	snapshots, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(snapshots) <= keep {
		return nil, nil
	}

	var deleted []string
	for _, o := range snapshots[keep:] {
		if err := s.objects.Delete(ctx, o.Key); err != nil {
			return deleted, internalError("delete snapshot", err)
		}
		deleted = append(deleted, o.Key)
	}
	s.logger.InfoContext(ctx, "admin snapshots pruned", "deleted", len(deleted), "kept", keep)
	return deleted, nil
}
