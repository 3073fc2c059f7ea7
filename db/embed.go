// Package db embeds the SQL schema shipped with the binaries.
package db

import _ "embed"

// Schema holds the DDL for every table the services touch.
//
//go:embed migrations/001_schema.sql
var Schema string
