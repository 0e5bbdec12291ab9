//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pconfig "github.com/forever-store/api/internal/platform/config"
	pfirestore "github.com/forever-store/api/internal/platform/firestore"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

type counterDoc struct {
	Name  string `firestore:"name"`
	Count int    `firestore:"count"`
}

func TestUnitOfWorkAndRepositoryIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	defer stopContainer(containerID)
	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "test-project", EmulatorHost: endpoint})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := pfirestore.NewBaseRepository[counterDoc](provider, "counters")
	uow := pfirestore.NewUnitOfWork(provider)

	if err := repo.Create(ctx, "c1", counterDoc{Name: "alpha", Count: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := repo.Create(ctx, "c1", counterDoc{Name: "alpha", Count: 1})
	var repoErr *pfirestore.Error
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	if err := uow.RunInTx(ctx, func(ctx context.Context) error {
		doc, err := repo.Get(ctx, "c1")
		if err != nil {
			return err
		}
		doc.Data.Count++
		return repo.Set(ctx, "c1", doc.Data)
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}

	doc, err := repo.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Data.Count != 2 {
		t.Fatalf("expected count 2, got %d", doc.Data.Count)
	}

	sentinel := errors.New("abort")
	err = uow.RunInTx(ctx, func(ctx context.Context) error {
		if err := repo.Set(ctx, "c1", counterDoc{Name: "alpha", Count: 99}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected callback error to pass through, got %v", err)
	}
	doc, _ = repo.Get(ctx, "c1")
	if doc.Data.Count != 2 {
		t.Fatalf("expected rollback to keep count 2, got %d", doc.Data.Count)
	}

	docs, err := repo.GetAll(ctx, []string{"c1", "missing"})
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}

	total, err := repo.Count(ctx, func(q firestore.Query) firestore.Query { return q.Where("name", "==", "alpha") })
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected count 1, got %d", total)
	}

	if _, err := repo.Get(ctx, "missing"); err == nil {
		t.Fatalf("expected not found error")
	} else if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found classification, got %v", err)
	}

	if err := uow.RunInTx(ctx, func(ctx context.Context) error {
		return repo.Update(ctx, "c1", []firestore.Update{{Path: "count", Value: 5}})
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	doc, _ = repo.Get(ctx, "c1")
	if doc.Data.Count != 5 || doc.Data.Name != "alpha" {
		t.Fatalf("expected field update to keep other fields, got %+v", doc.Data)
	}

	if err := repo.Delete(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	cancelCtx, cancelTxn := context.WithCancel(context.Background())
	cancelTxn()
	if err := uow.RunInTx(cancelCtx, func(context.Context) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	cmd := exec.Command("docker", "run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}
}
