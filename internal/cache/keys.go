package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Key namespaces. Every cache key of the catalog is built by the functions below.
const (
	ProductNamespace    = "catalog:product"
	ListNamespace       = "catalog:list"
	FacetNamespace      = "catalog:facets"
	CategoriesNamespace = "catalog:categories"
)

// PointKey is the key of a single record: {namespace}:{id}
func PointKey(namespace, id string) string {
	return namespace + ":" + id
}

// ShapeKey hashes the JSON encoding of a query shape into {namespace}:{md5}.
func ShapeKey(namespace string, shape any) (string, error) {
	data, err := json.Marshal(shape)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache key shape: %w", err)
	}
	sum := md5.Sum(data)
	return namespace + ":" + hex.EncodeToString(sum[:]), nil
}

// CategoriesKey is the key of the distinct active category list.
func CategoriesKey() string {
	return CategoriesNamespace
}

// namespaceOf returns the first two segments of a key, used as the metrics label.
func namespaceOf(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 {
		return key
	}
	return parts[0] + ":" + parts[1]
}
