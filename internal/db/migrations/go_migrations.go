// Package migrations contains dialect-aware Go database migrations. Column types for
// counters, ids and indexed text differ between SQLite, PostgreSQL and MySQL, so every
// table is created from Go rather than from a shared SQL file.
package migrations

// dialect is set by the parent db package before migrations are applied.
var dialect string

// SetDialect configures the SQL dialect for Go migrations.
// Must be called before goose.Up. Valid values: "sqlite3", "postgres", "mysql".
func SetDialect(d string) {
	dialect = d
}
