// Package all registers every preset repository backend and the SQL Server
// database/sql driver. Import it for side effects from main packages.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "pivot/internal/storage/mssql"
	_ "pivot/internal/storage/postgres"
	_ "pivot/internal/storage/sqlite"
)
