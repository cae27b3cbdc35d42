// Package migrations holds the SQL schema files applied by `doctorbot migrate up`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
