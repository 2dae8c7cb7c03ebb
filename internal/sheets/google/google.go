package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"sitetakip/internal/core"
	ports "sitetakip/internal/sheets"
)

const (
	DefaultDuesSheet     = "Dues"
	DefaultExpensesSheet = "Expenses"
)

var (
	duesHeader     = []any{"ID", "Organization", "Unit", "Due date", "Amount", "Status", "Payment method", "Paid at", "Description", "Recorded at"}
	expensesHeader = []any{"ID", "Organization", "Date", "Category", "Amount", "Description", "Receipt", "Recorded at"}
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	duesSheet     string
	expensesSheet string
	now           func() time.Time
}

// Ensure interface conformance
var _ ports.LedgerExporter = (*Client)(nil)

type Config struct {
	SpreadsheetID string
	DuesSheet     string
	ExpensesSheet string
	// Service account credentials; JSON wins over the file.
	CredentialsJSON string
	CredentialsFile string
}

// New creates a Sheets client authenticated with a service account. Extra
// client options are appended last, so they can replace the endpoint or
// the transport.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	var clientOpts []goption.ClientOption
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		clientOpts = append(clientOpts, goption.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.InfoContext(ctx, "Read service account credentials", "path", cfg.CredentialsFile)
		clientOpts = append(clientOpts, goption.WithCredentialsJSON(credentialsJSON))
	case len(opts) == 0:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
	clientOpts = append(clientOpts, goption.WithScopes(gsheet.SpreadsheetsScope))
	clientOpts = append(clientOpts, opts...)

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	c := &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		duesSheet:     orDefault(cfg.DuesSheet, DefaultDuesSheet),
		expensesSheet: orDefault(cfg.ExpensesSheet, DefaultExpensesSheet),
		now:           time.Now,
	}
	return c, nil
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

// EnsureHeaders writes the header row of each tab whose first row is empty.
// The tabs themselves must exist.
func (c *Client) EnsureHeaders(ctx context.Context) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	for _, tab := range []struct {
		name   string
		header []any
	}{
		{c.duesSheet, duesHeader},
		{c.expensesSheet, expensesHeader},
	} {
		rng := fmt.Sprintf("%s!A1:%s1", tab.name, lastColumn(len(tab.header)))
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("read %s: %w", rng, err)
		}
		if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
			continue
		}
		vr := &gsheet.ValueRange{Values: [][]any{tab.header}}
		if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return fmt.Errorf("write header %s: %w", rng, err)
		}
		slog.InfoContext(ctx, "Wrote sheet header", "sheet", tab.name)
	}
	return nil
}

func (c *Client) ExportDues(ctx context.Context, dues []core.Due) error {
	if len(dues) == 0 {
		return nil
	}
	recorded := c.now().UTC().Format(time.RFC3339)
	rows := make([][]any, 0, len(dues))
	for _, d := range dues {
		rows = append(rows, dueRow(d, recorded))
	}
	return c.appendRows(ctx, c.duesSheet, len(duesHeader), rows)
}

func (c *Client) ExportExpenses(ctx context.Context, expenses []core.Expense) error {
	if len(expenses) == 0 {
		return nil
	}
	recorded := c.now().UTC().Format(time.RFC3339)
	rows := make([][]any, 0, len(expenses))
	for _, e := range expenses {
		rows = append(rows, expenseRow(e, recorded))
	}
	return c.appendRows(ctx, c.expensesSheet, len(expensesHeader), rows)
}

func (c *Client) appendRows(ctx context.Context, sheet string, width int, rows [][]any) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:%s", sheet, lastColumn(width))
	vr := &gsheet.ValueRange{Values: rows}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to sheet %s: %w", sheet, err)
	}
	updated := ""
	if resp.Updates != nil {
		updated = resp.Updates.UpdatedRange
	}
	slog.DebugContext(ctx, "Rows appended", "sheet", sheet, "rows", len(rows), "range", updated)
	return nil
}

func dueRow(d core.Due, recorded string) []any {
	paidAt := ""
	if d.PaidAt != nil {
		paidAt = d.PaidAt.UTC().Format(time.RFC3339)
	}
	unit := d.UnitNumber
	if unit == "" {
		unit = d.UnitID
	}
	return []any{
		d.ID,
		d.OrganizationID,
		unit,
		d.DueDate.String(),
		d.Amount.Display(),
		string(d.Status),
		string(d.PaymentMethod),
		paidAt,
		d.Description,
		recorded,
	}
}

func expenseRow(e core.Expense, recorded string) []any {
	return []any{
		e.ID,
		e.OrganizationID,
		e.Date.String(),
		string(e.Category),
		e.Amount.Display(),
		e.Description,
		e.ReceiptURL,
		recorded,
	}
}

// lastColumn returns the A1 letter of the n-th column, n <= 26.
func lastColumn(n int) string {
	return string(rune('A' + n - 1))
}
