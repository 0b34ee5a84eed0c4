package db

import "gorm.io/gorm"

// LockClause returns the row-lock suffix for the active dialect. SQLite has
// no FOR UPDATE; its single-writer model already serializes the transaction.
func LockClause(tx *gorm.DB) string {
	switch tx.Dialector.Name() {
	case "sqlite", "sqlite3":
		return ""
	default:
		return " FOR UPDATE"
	}
}

// SkipLockedClause is LockClause plus SKIP LOCKED for work-claiming queries.
func SkipLockedClause(tx *gorm.DB) string {
	switch tx.Dialector.Name() {
	case "sqlite", "sqlite3":
		return ""
	default:
		return " FOR UPDATE SKIP LOCKED"
	}
}
