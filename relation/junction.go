package relation

import (
	"strings"

	"github.com/rediwo/redi-orm/schema"
)

// JunctionColumns returns the column names the association table uses
// to reference owner and the other side of a manyToMany relation:
// Shared overrides take precedence, otherwise "<lowerModelName>Id"
// (§3 Relation Config, §4.8).
func JunctionColumns(owner, other *schema.Model, rel *schema.RelationConfig) (ownerCol, otherCol string) {
	ownerCol = defaultColumn(owner.Name)
	otherCol = defaultColumn(other.Name)
	for local, remote := range rel.Shared {
		// Shared maps local column -> remote column from the owning
		// side's perspective; a self-relation disambiguates by which
		// key appears first in declaration order, which the caller
		// resolves before calling in (both keys equal owner.Name).
		ownerCol, otherCol = local, remote
	}
	return ownerCol, otherCol
}

func defaultColumn(modelName string) string {
	if modelName == "" {
		return modelName
	}
	return strings.ToLower(modelName[:1]) + modelName[1:] + "Id"
}
