package naming

import (
	"log/slog"
	"strconv"
)

// nameTable hands out unique names within one GraphQL namespace. A name
// already owned by a different model gets the lowest free numeric suffix.
type nameTable struct {
	namespace string
	owners    map[string]string
	logger    *slog.Logger
}

func newNameTable(namespace string, logger *slog.Logger) *nameTable {
	return &nameTable{namespace: namespace, owners: make(map[string]string), logger: logger}
}

// claim returns the name to use for owner. Claiming the same name twice for
// the same owner is a no-op.
func (t *nameTable) claim(name, owner string) string {
	existing, taken := t.owners[name]
	if !taken || existing == owner {
		t.owners[name] = owner
		return name
	}

	for i := 2; ; i++ {
		candidate := name + strconv.Itoa(i)
		if _, used := t.owners[candidate]; used {
			continue
		}
		t.owners[candidate] = owner
		t.logger.Warn("naming collision detected, applying suffix",
			slog.String("namespace", t.namespace),
			slog.String("name", name),
			slog.String("existing_model", existing),
			slog.String("model", owner),
			slog.String("renamed", candidate),
		)
		return candidate
	}
}
