package storage

import "codeberg.org/mutker/benchlog/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrInvalidDBPath

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("storage_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("storage_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("storage_schema_migration_failed")
	ErrSchemaTooNew           = errors.ErrorCode("storage_schema_too_new")
	ErrTransactionFailed      = errors.ErrorCode("storage_transaction_failed")

	// Storage Errors
	ErrStorageAccess = errors.ErrorCode("storage_access_failed")
	ErrStorageInit   = errors.ErrInitFailed
	ErrStorageClose  = errors.ErrShutdownFailed

	// Data Errors
	ErrSessionNotFound = errors.ErrorCode("storage_session_not_found")
	ErrInvalidStatus   = errors.ErrorCode("storage_invalid_status")

	// Export/Import Errors
	ErrExportFailed = errors.ErrorCode("storage_export_failed")
	ErrImportFailed = errors.ErrorCode("storage_import_failed")
	ErrInvalidCSV   = errors.ErrorCode("storage_invalid_csv")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrSchemaInitFailed:       "Failed to initialize schema",
		ErrSchemaValidationFailed: "Failed to validate schema",
		ErrSchemaMigrationFailed:  "Failed to migrate schema",
		ErrSchemaTooNew:           "Database schema is newer than this build",
		ErrTransactionFailed:      "Transaction failed",
		ErrStorageAccess:          "Storage access failed",
		ErrSessionNotFound:        "Session not found",
		ErrInvalidStatus:          "Invalid session status",
		ErrExportFailed:           "Failed to export session",
		ErrImportFailed:           "Failed to import session",
		ErrInvalidCSV:             "Invalid session CSV",
	})
}
