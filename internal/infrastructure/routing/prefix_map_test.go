package routing

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

const sampleMap = `
tenants:
  weiss:
    tenant_id: tenant-weiss
    namespace: cuit=33712152449
  acme:
    tenant_id: tenant-acme
    namespace: cuit=30712345678
  broken:
    tenant_id: ""
    namespace: cuit=1
`

func writeMap(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write map: %v", err)
	}
	return path
}

func TestLoadPrefixMapSkipsMalformedEntries(t *testing.T) {
	pm, err := LoadPrefixMap(writeMap(t, sampleMap))
	if err != nil {
		t.Fatalf("LoadPrefixMap() error = %v", err)
	}
	if pm.Size() != 2 {
		t.Fatalf("expected 2 valid prefixes, got %d", pm.Size())
	}

	tenant, ok := pm.Resolve("weiss")
	if !ok {
		t.Fatalf("expected weiss to resolve")
	}
	if tenant.ID != "tenant-weiss" || tenant.Namespace != "cuit=33712152449" {
		t.Fatalf("unexpected tenant: %+v", tenant)
	}

	if _, ok := pm.Resolve("broken"); ok {
		t.Fatalf("malformed entry must not resolve")
	}
	if _, ok := pm.Resolve("unknown"); ok {
		t.Fatalf("unknown prefix must not resolve")
	}
}

func TestReloadFailureKeepsPreviousSnapshot(t *testing.T) {
	path := writeMap(t, sampleMap)
	pm, err := LoadPrefixMap(path)
	if err != nil {
		t.Fatalf("LoadPrefixMap() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("tenants: [not a map"), 0o644); err != nil {
		t.Fatalf("corrupt map: %v", err)
	}
	if err := pm.Reload(); err == nil {
		t.Fatalf("expected parse error")
	}

	if _, ok := pm.Resolve("weiss"); !ok {
		t.Fatalf("previous snapshot must survive a failed reload")
	}
}

func TestConcurrentReadersNeverSeeMixedSnapshots(t *testing.T) {
	path := writeMap(t, sampleMap)
	pm, err := LoadPrefixMap(path)
	if err != nil {
		t.Fatalf("LoadPrefixMap() error = %v", err)
	}

	const swapped = `
tenants:
  weiss:
    tenant_id: tenant-weiss-v2
    namespace: cuit=33712152449
`
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				tenant, ok := pm.Resolve("weiss")
				if !ok {
					t.Errorf("weiss disappeared mid-reload")
					return
				}
				if tenant.ID != "tenant-weiss" && tenant.ID != "tenant-weiss-v2" {
					t.Errorf("mixed snapshot observed: %+v", tenant)
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		content := sampleMap
		if i%2 == 1 {
			content = swapped
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("rewrite map: %v", err)
		}
		if err := pm.Reload(); err != nil {
			t.Fatalf("Reload() error = %v", err)
		}
	}
	close(stop)
	wg.Wait()
}
