package naming

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Namer provides the name transformations used when building the GraphQL
// schema from registered models. It handles pluralization, reserved words,
// and collisions.
type Namer struct {
	config  Config
	logger  *slog.Logger
	types   *nameTable
	queries *nameTable
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueryStyle == "" {
		cfg.QueryStyle = QueryStyleModels
	}
	n := &Namer{config: cfg, logger: logger}
	n.Reset()
	return n
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset forgets every registered name so the namer can serve a new schema build.
func (n *Namer) Reset() {
	n.types = newNameTable("type", n.logger)
	n.queries = newNameTable("query", n.logger)
}

// Pluralize returns the configured override for word, or its inflected plural.
func (n *Namer) Pluralize(word string) string {
	if override, ok := n.config.PluralOverrides[word]; ok {
		return override
	}
	return inflection.Plural(word)
}

// ToTypeName converts a model name to a GraphQL type name (PascalCase).
// Example: "player_config" -> "PlayerConfig", "Position" -> "Position"
func (n *Namer) ToTypeName(modelName string) string {
	name := toPascalCase(modelName)
	if isReservedTypeName(name) {
		safeName := name + "_"
		n.logger.Warn("GraphQL name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

// RegisterType registers a model and returns its resolved GraphQL type name.
func (n *Namer) RegisterType(modelName string) string {
	return n.types.claim(n.ToTypeName(modelName), modelName)
}

// QueryFieldName returns the list query field for a model.
// Example (models style): "Position" -> "positionModels"
// Example (plural style): "Position" -> "positions"
func (n *Namer) QueryFieldName(modelName string) string {
	base := lowerFirst(toPascalCase(modelName))
	if n.config.QueryStyle == QueryStylePlural {
		return n.Pluralize(base)
	}
	return base + "Models"
}

// RegisterQueryField registers the list query field for a model and returns the resolved name.
func (n *Namer) RegisterQueryField(modelName string) string {
	fieldName := n.QueryFieldName(modelName)
	if isReservedQueryField(fieldName) {
		safeName := fieldName + "_"
		n.logger.Warn("GraphQL name conflicts with reserved query field, auto-suffixed",
			slog.String("original", fieldName),
			slog.String("renamed", safeName),
		)
		fieldName = safeName
	}
	return n.queries.claim(fieldName, modelName)
}

// EnumValue converts a member name to an order enum value (UPPER_SNAKE_CASE).
// Example: "x" -> "X", "lastDirection" -> "LAST_DIRECTION", "last_direction" -> "LAST_DIRECTION"
func EnumValue(memberName string) string {
	var b strings.Builder
	runes := []rune(memberName)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 && runes[i-1] != '_' && !unicode.IsUpper(runes[i-1]) {
			b.WriteRune('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// WhereInputName returns the filter input type name for a model type.
func WhereInputName(typeName string) string { return typeName + "WhereInput" }

// OrderInputName returns the order input type name for a model type.
func OrderInputName(typeName string) string { return typeName + "Order" }

// OrderFieldEnumName returns the orderable field enum name for a model type.
func OrderFieldEnumName(typeName string) string { return typeName + "OrderField" }

// ConnectionName returns the connection type name for a model type.
func ConnectionName(typeName string) string { return typeName + "Connection" }

// EdgeName returns the edge type name for a model type.
func EdgeName(typeName string) string { return typeName + "Edge" }

// toPascalCase converts snake_case to PascalCase
func toPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
