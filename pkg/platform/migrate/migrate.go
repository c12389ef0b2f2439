// Package migrate runs the embedded schema migrations shared by the
// identity registry and receipt store, the two services that persist
// state. Hierarchy-derived tenant fields are maintained in application
// code (see pkg/tenant), the alternative §6.5 explicitly permits, so no
// database-side trigger is defined here.
package migrate

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Up applies every pending migration against db.
func Up(db *sql.DB) error {
	goose.SetBaseFS(schemaFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "schema")
}

// Status reports the current migration version without applying
// anything.
func Status(db *sql.DB) error {
	goose.SetBaseFS(schemaFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Status(db, "schema")
}
