package clabstt

import _ "embed"

// SchemaSQL is applied to a fresh database at startup.
//
//go:embed schema.sql
var SchemaSQL []byte
