//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	domain "github.com/forever-store/api/internal/domain"
	pconfig "github.com/forever-store/api/internal/platform/config"
	pfirestore "github.com/forever-store/api/internal/platform/firestore"
	"github.com/forever-store/api/internal/repositories"
)

func TestOrderRepositoriesIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "orders-test",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	reg, err := NewRegistry(provider, nil, nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}
	if _, err := client.Collection(productsCollection).Doc("prod_1").Set(ctx, map[string]any{
		"name":  "Linen Shirt",
		"price": 4200,
		"sizes": []map[string]any{{"size": "M", "stock": 2}, {"size": "L", "stock": 7}},
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	order := domain.Order{
		ID:            "ord_it_1",
		UserID:        "user_1",
		Items:         []domain.OrderLineItem{{ProductID: "prod_1", Name: "Linen Shirt", UnitPrice: 4200, Quantity: 3, Size: "M"}},
		Amount:        13600,
		Currency:      "usd",
		Address:       domain.Address{FirstName: "Ada", Street: "1 Main St", City: "Springfield"},
		PaymentMethod: domain.PaymentMethodCOD,
		Status:        domain.StatusOrderPlaced,
		TimelineSeq:   1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = reg.RunInTx(ctx, func(ctx context.Context) error {
		stocks, err := reg.Products().FindStock(ctx, []string{"prod_1", "ghost"})
		if err != nil {
			return err
		}
		if _, ok := stocks["ghost"]; ok {
			return errors.New("unknown product must be omitted")
		}
		product := stocks["prod_1"]
		product.Sizes[0].Stock = 0
		if err := reg.Products().SaveStock(ctx, product); err != nil {
			return err
		}
		if err := reg.Timeline().Append(ctx, domain.TimelineEntry{
			ID: "tle_1", OrderID: order.ID, Seq: 1, Status: domain.StatusOrderPlaced,
			Note: "Order created", ActorType: domain.ActorSystem, ActorID: order.UserID, CreatedAt: now,
		}); err != nil {
			return err
		}
		return reg.Orders().Insert(ctx, order)
	})
	if err != nil {
		t.Fatalf("checkout transaction: %v", err)
	}

	snap, err := client.Collection(productsCollection).Doc("prod_1").Get(ctx)
	if err != nil {
		t.Fatalf("read product: %v", err)
	}
	if price, _ := snap.DataAt("price"); price != int64(4200) {
		t.Fatalf("stock write must keep catalog fields, price=%v", price)
	}

	err = reg.RunInTx(ctx, func(ctx context.Context) error {
		stored, err := reg.Orders().FindByID(ctx, order.ID)
		if err != nil {
			return err
		}
		latest, err := reg.Timeline().Latest(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := reg.Timeline().Append(ctx, domain.TimelineEntry{
			ID: "tle_2", OrderID: order.ID, Seq: latest.Seq + 1, Status: domain.StatusOrderShipped,
			ActorType: domain.ActorAdmin, ActorID: "admin_1", CreatedAt: now.Add(time.Minute),
			Meta: &domain.ShipmentMeta{Courier: "DHL", AWB: "AWB1", Location: "Hub"},
		}); err != nil {
			return err
		}
		stored.Status = domain.StatusOrderShipped
		stored.TimelineSeq = latest.Seq + 1
		stored.PaymentReference = "cs_it_1"
		return reg.Orders().Update(ctx, stored)
	})
	if err != nil {
		t.Fatalf("status transaction: %v", err)
	}

	stored, err := reg.Orders().FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if stored.Status != domain.StatusOrderShipped || stored.TimelineSeq != 2 || len(stored.Items) != 1 || stored.PaymentReference != "cs_it_1" {
		t.Fatalf("unexpected stored order %+v", stored)
	}

	page, err := reg.Timeline().List(ctx, repositories.TimelineFilter{OrderID: order.ID, Sort: domain.SortDesc, Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("list timeline: %v", err)
	}
	if page.Total != 2 || page.Items[0].Seq != 2 || page.Items[0].Meta == nil || page.Items[0].Meta.AWB != "AWB1" {
		t.Fatalf("unexpected timeline page %+v", page)
	}

	shipped := domain.StatusOrderShipped
	orders, err := reg.Orders().List(ctx, repositories.OrderListFilter{UserID: "user_1", Status: &shipped, Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if orders.Total != 1 || orders.Items[0].ID != order.ID {
		t.Fatalf("unexpected order page %+v", orders)
	}

	var removed int
	err = reg.RunInTx(ctx, func(ctx context.Context) error {
		removed, err = reg.Timeline().DeleteByOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		return reg.Orders().Delete(ctx, order.ID)
	})
	if err != nil {
		t.Fatalf("abandon transaction: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed entries, got %d", removed)
	}

	_, err = reg.Timeline().Latest(ctx, order.ID)
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found for purged timeline, got %v", err)
	}
	_, err = reg.Orders().FindByID(ctx, order.ID)
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found for deleted order, got %v", err)
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
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}

	cmd := exec.Command("docker", args...)
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

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "info")
	if err := cmd.Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "docker", "stop", id)
	_ = cmd.Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
