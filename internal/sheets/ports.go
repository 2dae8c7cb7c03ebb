package sheets

import (
	"context"

	"sitetakip/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerExporter appends ledger records to an external journal. A
	// record may be exported more than once; every call appends rows.
	LedgerExporter interface {
		ExportDues(ctx context.Context, dues []core.Due) error
		ExportExpenses(ctx context.Context, expenses []core.Expense) error
	}
)
