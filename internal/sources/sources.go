// Package sources provides snapshot source implementations.
// Import this package to register all built-in source types.
package sources

import (
	// Import all source types for self-registration
	_ "github.com/shyim/db-vault/internal/sources/file"
	_ "github.com/shyim/db-vault/internal/sources/mysql"
	_ "github.com/shyim/db-vault/internal/sources/postgres"
	_ "github.com/shyim/db-vault/internal/sources/sqlite"
)
