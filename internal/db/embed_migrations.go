package db

import "embed"

// MigrationFS holds the schema for users, WebAuthn challenges and credentials,
// master secrets and the audit log. Applied by internal/db/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
