package domain

import "strings"

// Tenant describes the owner of a filename prefix: its id and the object
// storage namespace its documents are stored under.
type Tenant struct {
	ID        string `yaml:"tenant_id" json:"tenant_id"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// ExtractPrefix returns the routing prefix of a filename: the substring
// before the first underscore. A filename with no underscore has no prefix
// and is unroutable.
func ExtractPrefix(filename string) (string, bool) {
	idx := strings.IndexByte(filename, '_')
	if idx <= 0 {
		return "", false
	}
	return filename[:idx], true
}
