package redis

import (
	"strings"
)

// KeyBuilder helps build Redis keys according to our naming convention:
// namespace:context:entity[:attribute]. Namespace and context are normalised to
// lower case; entity and attribute are ids and kept verbatim.
type KeyBuilder struct {
	namespace string
	context   string
}

// NewKeyBuilder creates a new KeyBuilder with the given namespace.
func NewKeyBuilder(namespace, context string) *KeyBuilder {
	return &KeyBuilder{
		namespace: strings.ToLower(namespace),
		context:   strings.ToLower(context),
	}
}

// Build creates a Redis key following our naming convention.
func (kb *KeyBuilder) Build(entity, attribute string) string {
	parts := []string{kb.namespace, kb.context, entity}
	if attribute != "" {
		parts = append(parts, attribute)
	}
	return strings.Join(parts, ":")
}
