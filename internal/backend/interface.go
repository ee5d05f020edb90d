package backend

import (
	"advancebot/internal/ledger"
)

// Backend bundles every port the conversation engine needs from one
// system of record.
type Backend interface {
	ledger.Store
	ledger.AuditLog
	ledger.Catalog
	ledger.Directory
	ledger.SummarySink
}

// CleanupFunc releases backend resources at shutdown.
type CleanupFunc func() error

// Result contains the backend instance and optional cleanup function.
type Result struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Kind selects the system of record.
type Kind string

const (
	MemoryBackend Kind = "memory"
	SQLiteBackend Kind = "sqlite"
	SheetsBackend Kind = "sheets"
)

// String implements fmt.Stringer
func (k Kind) String() string {
	return string(k)
}

// IsValid returns true if the backend kind is known.
func (k Kind) IsValid() bool {
	switch k {
	case MemoryBackend, SQLiteBackend, SheetsBackend:
		return true
	default:
		return false
	}
}
