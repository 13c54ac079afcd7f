// Package migrations embeds the SQL migrations of the run registry.
package migrations

import "embed"

// Postgres holds the golang-migrate files under postgres/
//
//go:embed postgres/*.sql
var Postgres embed.FS

// ClickHouse holds the ordered statement files under clickhouse/
//
//go:embed clickhouse/*.sql
var ClickHouse embed.FS

// Directory names inside the embedded filesystems
const (
	PostgresDir   = "postgres"
	ClickHouseDir = "clickhouse"
)
