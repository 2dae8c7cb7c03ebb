// Package memory provides an in-process ledger exporter that records what
// it was given.
package memory

import (
	"context"
	"sync"

	"sitetakip/internal/core"
	ports "sitetakip/internal/sheets"
)

var _ ports.LedgerExporter = (*Exporter)(nil)

type Exporter struct {
	mu       sync.Mutex
	dues     []core.Due
	expenses []core.Expense
	err      error
	calls    int
}

func NewExporter() *Exporter {
	return &Exporter{}
}

// FailWith makes every following export return err. A nil err restores
// normal behaviour.
func (e *Exporter) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

func (e *Exporter) ExportDues(_ context.Context, dues []core.Due) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return e.err
	}
	e.dues = append(e.dues, dues...)
	return nil
}

func (e *Exporter) ExportExpenses(_ context.Context, expenses []core.Expense) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return e.err
	}
	e.expenses = append(e.expenses, expenses...)
	return nil
}

// Dues returns a copy of the exported dues in export order.
func (e *Exporter) Dues() []core.Due {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]core.Due(nil), e.dues...)
}

func (e *Exporter) Expenses() []core.Expense {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]core.Expense(nil), e.expenses...)
}

// Calls counts export attempts, failed ones included.
func (e *Exporter) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
