// Package routing maps filename prefixes to owning tenants.
package routing

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/facturo/ingesta/internal/core/domain"
)

type mapFile struct {
	Tenants map[string]domain.Tenant `yaml:"tenants"`
}

// PrefixMap is the reloadable prefix-to-tenant mapping. Readers take an
// atomic snapshot; Reload parses the whole file and swaps the snapshot in
// one store, so a reader sees either the old map or the new one, never a
// mix. Reload is single-writer by convention (the ops endpoint).
type PrefixMap struct {
	path     string
	snapshot atomic.Pointer[map[string]domain.Tenant]
}

func LoadPrefixMap(path string) (*PrefixMap, error) {
	pm := &PrefixMap{path: path}
	if err := pm.Reload(); err != nil {
		return nil, err
	}
	return pm, nil
}

func (pm *PrefixMap) Resolve(prefix string) (domain.Tenant, bool) {
	snap := pm.snapshot.Load()
	if snap == nil {
		return domain.Tenant{}, false
	}
	tenant, ok := (*snap)[prefix]
	return tenant, ok
}

// Reload re-reads the config file and atomically swaps the mapping.
// Malformed entries are skipped with a warning; a malformed file is an
// error and leaves the previous snapshot in place.
func (pm *PrefixMap) Reload() error {
	data, err := os.ReadFile(pm.path)
	if err != nil {
		return fmt.Errorf("read tenant map %s: %w", pm.path, err)
	}

	var parsed mapFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse tenant map %s: %w", pm.path, err)
	}

	next := make(map[string]domain.Tenant, len(parsed.Tenants))
	for prefix, tenant := range parsed.Tenants {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" || strings.TrimSpace(tenant.ID) == "" || strings.TrimSpace(tenant.Namespace) == "" {
			slog.Warn("tenant_map_entry_skipped", "prefix", prefix, "tenant_id", tenant.ID)
			continue
		}
		next[prefix] = tenant
	}

	pm.snapshot.Store(&next)
	slog.Info("tenant_map_loaded", "path", pm.path, "prefixes", len(next))
	return nil
}

// Size reports how many prefixes the current snapshot routes.
func (pm *PrefixMap) Size() int {
	snap := pm.snapshot.Load()
	if snap == nil {
		return 0
	}
	return len(*snap)
}
