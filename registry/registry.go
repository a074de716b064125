// Package registry is the process-wide lookup table that lets Open
// dispatch to a concrete Driver without importing
// every driver package directly: drivers self-register a factory and a
// URI parser from their own init().
package registry

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/rediwo/redi-orm/query"
	"github.com/rediwo/redi-orm/types"
)

// DriverFactory builds a query.Driver from its connection config.
type DriverFactory func(config types.Config) (query.Driver, error)

var (
	drivers    = make(map[string]DriverFactory)
	uriParsers = make(map[string]types.URIParser)
	schemes    = make(map[string]string) // URI scheme -> driver type
	mu         sync.RWMutex
)

// Register registers a driver factory under dbType (e.g. "sqlite").
func Register(dbType string, factory DriverFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := drivers[dbType]; exists {
		panic(fmt.Sprintf("registry: driver %q already registered", dbType))
	}
	drivers[dbType] = factory
}

// Get retrieves a registered driver factory.
func Get(dbType string) (DriverFactory, error) {
	mu.RLock()
	defer mu.RUnlock()
	factory, exists := drivers[dbType]
	if !exists {
		return nil, fmt.Errorf("registry: driver %q not registered", dbType)
	}
	return factory, nil
}

// RegisterURIParser registers a URI parser for dbType and binds every
// scheme it claims to support.
func RegisterURIParser(dbType string, parser types.URIParser) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := uriParsers[dbType]; exists {
		panic(fmt.Sprintf("registry: URI parser for driver %q already registered", dbType))
	}
	uriParsers[dbType] = parser
	for _, scheme := range parser.GetSupportedSchemes() {
		schemes[scheme] = parser.GetDriverType()
	}
}

// GetURIParser retrieves a registered URI parser.
func GetURIParser(dbType string) (types.URIParser, error) {
	mu.RLock()
	defer mu.RUnlock()
	parser, exists := uriParsers[dbType]
	if !exists {
		return nil, fmt.Errorf("registry: URI parser for driver %q not registered", dbType)
	}
	return parser, nil
}

// GetAllURIParsers returns every registered URI parser, keyed by
// driver type.
func GetAllURIParsers() map[string]types.URIParser {
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[string]types.URIParser, len(uriParsers))
	for dbType, parser := range uriParsers {
		out[dbType] = parser
	}
	return out
}

// ParseURI resolves uri's scheme to a registered parser and parses it.
func ParseURI(uri string) (types.Config, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return types.Config{}, fmt.Errorf("registry: invalid URI %q: %w", uri, err)
	}

	mu.RLock()
	defer mu.RUnlock()

	if dbType, ok := schemes[parsed.Scheme]; ok {
		if parser, exists := uriParsers[dbType]; exists {
			return parser.ParseURI(uri)
		}
	}

	var lastErr error
	for _, parser := range uriParsers {
		if config, err := parser.ParseURI(uri); err == nil {
			return config, nil
		} else {
			lastErr = err
		}
	}
	if lastErr != nil {
		return types.Config{}, fmt.Errorf("registry: no driver supports URI %q: %w", uri, lastErr)
	}
	return types.Config{}, fmt.Errorf("registry: no URI parsers registered")
}

// Open resolves uri to a Config and builds the matching Driver.
func Open(uri string) (query.Driver, error) {
	config, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	factory, err := Get(config.Type)
	if err != nil {
		return nil, err
	}
	return factory(config)
}
