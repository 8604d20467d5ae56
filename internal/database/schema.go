package database

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ErrInvalidSchema is returned for schema names outside the allowed shape.
var ErrInvalidSchema = errors.New("invalid schema name")

var schemaNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

const resetStatement = "RESET search_path"

// ValidateSchemaName accepts lower-case Postgres identifiers that do not name
// a system schema.
func ValidateSchemaName(name string) error {
	if !schemaNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidSchema, name)
	}
	if strings.HasPrefix(name, "pg_") || name == "information_schema" {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidSchema, name)
	}
	return nil
}

// bindStatement returns the directive that points a session at schema. The
// name has already passed ValidateSchemaName; quoting is applied regardless.
func bindStatement(schema string) string {
	return "SET search_path TO " + pgx.Identifier{schema}.Sanitize()
}
