// Package naming converts registered model and member names into GraphQL
// type, field and query names, including pluralization, collision detection
// and reserved word handling.
package naming

// Query field styles.
const (
	// QueryStyleModels names list queries "<model>Models", e.g. "positionModels".
	QueryStyleModels = "models"
	// QueryStylePlural names list queries with the inflected plural, e.g. "positions".
	QueryStylePlural = "plural"
)

// Config holds naming customization options
type Config struct {
	// QueryStyle selects how list query fields are named.
	QueryStyle string `mapstructure:"query_style"`

	// PluralOverrides maps singular -> custom plural
	// Example: {"person": "people", "status": "statuses"}
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		QueryStyle:      QueryStyleModels,
		PluralOverrides: make(map[string]string),
	}
}
