//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/maplecart/orders/internal/domain"
	pconfig "github.com/maplecart/orders/internal/platform/config"
	pfirestore "github.com/maplecart/orders/internal/platform/firestore"
	"github.com/maplecart/orders/internal/repositories"
)

func TestInventoryRepositoryIntegration(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "inventory-test",
		EmulatorHost: endpoint,
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewInventoryRepository(provider)
	if err != nil {
		t.Fatalf("new inventory repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Second)

	seeded, err := repo.Save(ctx, domain.InventoryRecord{
		ProductID:         "prod_001",
		Available:         5,
		LowStockThreshold: 3,
		UpdatedAt:         now,
	})
	if err != nil {
		t.Fatalf("save seed record: %v", err)
	}
	if seeded.Available != 5 {
		t.Fatalf("expected seeded available 5, got %d", seeded.Available)
	}

	reserved, err := repo.Reserve(ctx, repositories.InventoryAdjustment{
		ProductID: "prod_001",
		Quantity:  3,
		Now:       now,
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if reserved.Available != 2 {
		t.Fatalf("expected available 2 after reserve, got %d", reserved.Available)
	}

	var invErr *repositories.InventoryError

	_, err = repo.Reserve(ctx, repositories.InventoryAdjustment{
		ProductID: "prod_001",
		Quantity:  3,
		Now:       now.Add(time.Second),
	})
	if err == nil {
		t.Fatalf("expected insufficient stock error")
	}
	if !errors.As(err, &invErr) {
		t.Fatalf("expected inventory error, got %T %v", err, err)
	}
	if invErr.Code != repositories.InventoryErrorInsufficientStock {
		t.Fatalf("expected insufficient stock code, got %s", invErr.Code)
	}
	if invErr.Requested != 3 || invErr.Available != 2 {
		t.Fatalf("expected requested=3 available=2 on error, got %+v", invErr)
	}

	invErr = nil
	_, err = repo.Reserve(ctx, repositories.InventoryAdjustment{
		ProductID: "prod_missing",
		Quantity:  1,
		Now:       now,
	})
	if err == nil {
		t.Fatalf("expected record not found error")
	}
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorRecordNotFound {
		t.Fatalf("expected record not found code, got %v", err)
	}

	released, err := repo.Release(ctx, repositories.InventoryAdjustment{
		ProductID: "prod_001",
		Quantity:  1,
		Now:       now.Add(2 * time.Second),
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Available != 3 {
		t.Fatalf("expected available 3 after release, got %d", released.Available)
	}

	// Concurrent reservations must never oversell the remaining units.
	if _, err := repo.Save(ctx, domain.InventoryRecord{
		ProductID:         "prod_002",
		Available:         10,
		LowStockThreshold: 0,
		UpdatedAt:         now,
	}); err != nil {
		t.Fatalf("save contended record: %v", err)
	}

	const workers = 16
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := repo.Reserve(ctx, repositories.InventoryAdjustment{
				ProductID: "prod_002",
				Quantity:  1,
				Now:       time.Now().UTC(),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			default:
				var concurrentErr *repositories.InventoryError
				if errors.As(err, &concurrentErr) && concurrentErr.Code == repositories.InventoryErrorInsufficientStock {
					insufficient++
				} else {
					t.Errorf("unexpected reserve error: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 || insufficient != workers-10 {
		t.Fatalf("expected 10 successes and %d rejections, got %d/%d", workers-10, succeeded, insufficient)
	}

	drained, err := repo.Find(ctx, "prod_002")
	if err != nil {
		t.Fatalf("find drained record: %v", err)
	}
	if drained.Available != 0 {
		t.Fatalf("expected drained available 0, got %d", drained.Available)
	}

	// prod_001 sits exactly at its threshold, prod_002 sits at 0.
	lowPage, err := repo.ListLowStock(ctx, repositories.InventoryLowStockQuery{PageSize: 10})
	if err != nil {
		t.Fatalf("list low stock: %v", err)
	}
	if len(lowPage.Items) != 2 {
		t.Fatalf("expected 2 low stock items, got %d", len(lowPage.Items))
	}
	found := map[string]bool{}
	for _, item := range lowPage.Items {
		found[item.ProductID] = true
	}
	if !found["prod_001"] || !found["prod_002"] {
		t.Fatalf("expected prod_001 and prod_002 in low stock page, got %+v", lowPage.Items)
	}

	// Page through one record at a time to exercise the cursor.
	firstPage, err := repo.ListLowStock(ctx, repositories.InventoryLowStockQuery{PageSize: 1})
	if err != nil {
		t.Fatalf("list low stock page 1: %v", err)
	}
	if len(firstPage.Items) != 1 || firstPage.NextPageToken == "" {
		t.Fatalf("expected 1 item and a next token, got %+v", firstPage)
	}
	secondPage, err := repo.ListLowStock(ctx, repositories.InventoryLowStockQuery{PageSize: 1, PageToken: firstPage.NextPageToken})
	if err != nil {
		t.Fatalf("list low stock page 2: %v", err)
	}
	if len(secondPage.Items) != 1 {
		t.Fatalf("expected 1 item on second page, got %d", len(secondPage.Items))
	}
	if secondPage.Items[0].ProductID == firstPage.Items[0].ProductID {
		t.Fatalf("expected distinct items across pages, got %s twice", firstPage.Items[0].ProductID)
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
