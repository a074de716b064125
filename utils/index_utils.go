package utils

import (
	"fmt"
	"strings"
)

// GenerateIndexName generates a consistent index name for database indexes.
// If the index already has a name, it returns that name unchanged.
func GenerateIndexName(tableName string, fields []string, unique bool, existingName string) string {
	if existingName != "" {
		return existingName
	}

	prefix := "idx"
	if unique {
		prefix = "uniq"
	}

	columnPart := strings.Join(fields, "_")
	return fmt.Sprintf("%s_%s_%s", prefix, tableName, columnPart)
}
