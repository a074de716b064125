package sqlite

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rediwo/redi-orm/schema"
	"github.com/rediwo/redi-orm/types"
)

func buildCreateTable(m *schema.Model) string {
	var cols []string
	for _, name := range m.FieldOrder {
		f := m.Fields[name]
		if f.Relation != nil {
			continue
		}
		col := quoteIdent(name) + " " + sqlType(f.Kind)
		if len(m.Primary) == 1 && m.Primary[0] == name {
			col += " PRIMARY KEY"
			if m.AutoIncrement {
				col += " AUTOINCREMENT"
			}
		} else if !f.Nullable {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	if len(m.Primary) > 1 {
		cols = append(cols, "PRIMARY KEY ("+strings.Join(quoteIdents(m.Primary), ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quoteIdent(m.TableName), strings.Join(cols, ",\n\t"))
}

func sqlType(k types.Kind) string {
	switch k {
	case types.KindInteger, types.KindUnsigned, types.KindBigint, types.KindBoolean:
		return "INTEGER"
	case types.KindFloat, types.KindDouble, types.KindDecimal:
		return "REAL"
	case types.KindChar, types.KindString, types.KindText, types.KindDate, types.KindTime, types.KindTimestamp:
		return "TEXT"
	case types.KindBinary:
		return "BLOB"
	case types.KindJSON, types.KindObject, types.KindArray, types.KindList:
		return "TEXT" // stored as JSON text, decoded by the field's own transformer
	default:
		return "TEXT"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdents(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdent(n)
	}
	return out
}

// sortedAssignments returns data's keys in a stable order paired with
// their values, so generated SQL is deterministic and easy to test.
func sortedAssignments(data map[string]any) ([]string, []any) {
	cols := make([]string, 0, len(data))
	for k := range data {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = data[c]
	}
	return cols, args
}
