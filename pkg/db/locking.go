package db

import "gorm.io/gorm"

// ForUpdate returns the row-locking suffix for the active dialect. SQLite has
// no FOR UPDATE; its single-writer model covers the same guarantee in tests.
func ForUpdate(conn *gorm.DB) string {
	if conn != nil && conn.Dialector != nil && conn.Dialector.Name() == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}

// ForUpdateSkipLocked is the work-claiming variant used by batch jobs.
func ForUpdateSkipLocked(conn *gorm.DB) string {
	if conn != nil && conn.Dialector != nil && conn.Dialector.Name() == "postgres" {
		return " FOR UPDATE SKIP LOCKED"
	}
	return ""
}
