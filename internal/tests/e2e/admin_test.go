//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/commdir/apiserver/config"
	"github.com/commdir/apiserver/internal/db"
	"github.com/commdir/apiserver/internal/server"
	_ "github.com/lib/pq"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	setTestEnv()

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown(context.Background())
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown(context.Background())
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestAdminLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	suffix := time.Now().UnixNano()
	email := fmt.Sprintf("admin_%d@example.com", suffix)
	password := "testpass123!"

	created, err := registerAdmin(t, baseURL, fmt.Sprintf("admin_%d", suffix), email, password, "admin")
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected admin ID to be set")
	}
	if len(created.Roles) != 1 || created.Roles[0] != "admin" {
		t.Fatalf("unexpected roles: %v", created.Roles)
	}

	if _, err := registerAdmin(t, baseURL, "dup", email, "otherpass1", nil); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}

	login, status, err := loginAdmin(t, baseURL, email, password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("unexpected login status: %d", status)
	}
	if login.Token == "" || login.User.ID != created.ID {
		t.Fatalf("unexpected login response: %+v", login)
	}

	if _, status, err := loginAdmin(t, baseURL, email, "wrongpass"); err != nil || status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d (%v)", status, err)
	}

	newName := "renamed"
	var updated adminResponse
	status, err = doJSON(t, http.MethodPut, fmt.Sprintf("%s/admins/%d", baseURL, created.ID), login.Token,
		map[string]any{"username": newName, "role": []string{"admin", "editor"}}, &updated)
	if err != nil || status != http.StatusOK {
		t.Fatalf("update admin: status %d (%v)", status, err)
	}
	if updated.Username != newName || len(updated.Roles) != 2 {
		t.Fatalf("unexpected updated admin: %+v", updated)
	}

	var fetched adminResponse
	status, err = doJSON(t, http.MethodGet, fmt.Sprintf("%s/admins/%d", baseURL, created.ID), login.Token, nil, &fetched)
	if err != nil || status != http.StatusOK {
		t.Fatalf("get admin: status %d (%v)", status, err)
	}
	if fetched.Username != newName {
		t.Fatalf("unexpected fetched admin: %+v", fetched)
	}

	status, err = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/admins/%d", baseURL, created.ID), login.Token, nil, nil)
	if err != nil || status != http.StatusOK {
		t.Fatalf("delete admin: status %d (%v)", status, err)
	}

	status, err = doJSON(t, http.MethodGet, fmt.Sprintf("%s/admins/%d", baseURL, created.ID), login.Token, nil, nil)
	if err != nil || status != http.StatusNotFound {
		t.Fatalf("expected deleted admin to be missing, got %d (%v)", status, err)
	}
}

type adminResponse struct {
	ID       int      `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

type loginResponse struct {
	Token string        `json:"token"`
	User  adminResponse `json:"user"`
}

func registerAdmin(t *testing.T, baseURL, username, email, password string, role any) (adminResponse, error) {
	t.Helper()

	payload := map[string]any{
		"username": username,
		"email":    email,
		"password": password,
	}
	if role != nil {
		payload["role"] = role
	}

	var created adminResponse
	status, err := doJSON(t, http.MethodPost, baseURL+"/admins/register", "", payload, &created)
	if err != nil {
		return adminResponse{}, err
	}
	if status != http.StatusCreated {
		return adminResponse{}, fmt.Errorf("register status %d", status)
	}
	return created, nil
}

func loginAdmin(t *testing.T, baseURL, email, password string) (loginResponse, int, error) {
	t.Helper()

	var parsed loginResponse
	status, err := doJSON(t, http.MethodPost, baseURL+"/auth/login", "",
		map[string]string{"email": email, "password": password}, &parsed)
	return parsed, status, err
}

// doJSON sends payload as JSON and decodes a 2xx body into out when out is non-nil.
func doJSON(t *testing.T, method, url, token string, payload any, out any) (int, error) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		t.Logf("%s %s: %d %s", method, url, resp.StatusCode, strings.TrimSpace(string(msg)))
		return resp.StatusCode, nil
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	conn, err := sql.Open("postgres", db.PostgresURL(cfg))
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(ctx context.Context) error {
	cfg := config.LoadConfig()
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}

	migrator, err := db.NewMigrator(conn, cfg.Database.Driver)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	return db.MigrateUp(migrator)
}

func setTestEnv() {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_DRIVER", "postgres")
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "commdir")
	_ = os.Setenv("DB_PASSWORD", "commdir")
	_ = os.Setenv("DB_NAME", "commdir")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("MQ_BACKEND", "none")
	_ = os.Setenv("STORAGE_BACKEND", "none")
}

func startServer(ctx context.Context) (*server.Server, error) {
	cfg := config.LoadConfig()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
