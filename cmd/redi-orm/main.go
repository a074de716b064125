// Command redi-orm is a thin CLI front door over the Database Facade:
// it opens a driver from a URI, prepares a JSON schema description,
// and prints table stats. The query language, relation engine, and
// driver contract it exercises are THE CORE; concrete application
// servers and code generators built on top of it are out of scope
// here.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rediwo/redi-orm/database"
	_ "github.com/rediwo/redi-orm/drivers/sqlite"
	"github.com/rediwo/redi-orm/logger"
	"github.com/rediwo/redi-orm/registry"
	"github.com/rediwo/redi-orm/schema"
)

var version = "dev"

const usage = `redi-orm - relational data-access core CLI

Usage:
  redi-orm stats --db <uri> --schema <file.json>
  redi-orm version

Flags:
  --db       Database URI, e.g. sqlite://./app.db
  --schema   Path to a JSON schema file (see schemaFile in this package)
  --verbose  Enable debug logging
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "version":
		fmt.Println(version)
	case "stats":
		runStats(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dbURI := fs.String("db", "", "database URI")
	schemaPath := fs.String("schema", "", "path to a JSON schema file")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Parse(args)

	if *dbURI == "" || *schemaPath == "" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	if *verbose {
		logger.SetGlobalLogger(logger.NewDefaultLogger("redi-orm"))
	}

	ctx := context.Background()
	drv, err := registry.Open(*dbURI)
	fatalIf(err)
	fatalIf(drv.Start(ctx))
	defer drv.Stop(ctx)

	reg := schema.NewRegistry()
	fatalIf(loadSchemaFile(reg, *schemaPath))

	db := database.New(reg, drv)
	fatalIf(db.Prepare(ctx))

	stats, err := db.Stats(ctx)
	fatalIf(err)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	fatalIf(enc.Encode(stats))
}

func fatalIf(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "redi-orm:", err)
		os.Exit(1)
	}
}
