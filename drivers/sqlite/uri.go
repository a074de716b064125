package sqlite

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rediwo/redi-orm/types"
)

// URIParser implements types.URIParser for SQLite connection strings:
//
//	sqlite:///absolute/path/database.db
//	sqlite://relative/path/database.db
//	sqlite://:memory:
type URIParser struct{}

func (p *URIParser) GetDriverType() string        { return "sqlite" }
func (p *URIParser) GetSupportedSchemes() []string { return []string{"sqlite", "sqlite3"} }

func (p *URIParser) ParseURI(uri string) (types.Config, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return types.Config{}, fmt.Errorf("sqlite: invalid URI %q: %w", uri, err)
	}
	if parsed.Scheme != "sqlite" && parsed.Scheme != "sqlite3" {
		return types.Config{}, fmt.Errorf("sqlite: unsupported scheme %q", parsed.Scheme)
	}

	if parsed.Host == "" && strings.HasPrefix(parsed.Path, "/:memory:") {
		return types.Config{Type: "sqlite", FilePath: ":memory:"}, nil
	}

	path := parsed.Path
	if parsed.Host != "" {
		path = parsed.Host + path
	} else if strings.HasPrefix(uri, "sqlite:///") || strings.HasPrefix(uri, "sqlite3:///") {
		// keep the leading slash: an explicit absolute path
	} else if strings.HasPrefix(path, "/") {
		path = path[1:]
	}
	return types.Config{Type: "sqlite", FilePath: path}, nil
}
