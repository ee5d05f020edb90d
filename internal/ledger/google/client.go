// Package google implements the ledger ports on a Google spreadsheet,
// the production system of record. Each employee gets a tab; shared
// tabs hold the reference catalog, the user directory, the audit trail
// and the monthly-summary projection.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"advancebot/internal/core"
	"advancebot/internal/ledger"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const auditTimeLayout = "2006-01-02 15:04:05"

type Config struct {
	SpreadsheetID   string
	CredentialsJSON []byte
	ReferenceSheet  string
	AuditSheet      string
	UsersSheet      string
	SummarySheet    string
	TemplateSheet   string
	Location        *time.Location
}

type Client struct {
	svc            *gsheet.Service
	spreadsheetID  string
	referenceSheet string
	auditSheet     string
	usersSheet     string
	summarySheet   string
	templateSheet  string
	loc            *time.Location

	mu        sync.Mutex
	directory map[string]core.Employee
	tokens    map[string]int
}

// Token states for the in-process append guard. The sheet has no token
// column, so after an ambiguous failure the tail row is compared
// before writing again.
const (
	tokenIssued = iota + 1
	tokenCommitted
)

// Ensure interface conformance
var (
	_ ledger.Store       = (*Client)(nil)
	_ ledger.AuditLog    = (*Client)(nil)
	_ ledger.Catalog     = (*Client)(nil)
	_ ledger.Directory   = (*Client)(nil)
	_ ledger.SummarySink = (*Client)(nil)
)

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if len(cfg.CredentialsJSON) == 0 {
		return nil, errors.New("missing service account credentials")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(cfg.CredentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	c := &Client{
		svc:            svc,
		spreadsheetID:  cfg.SpreadsheetID,
		referenceSheet: defaultName(cfg.ReferenceSheet, "Reference"),
		auditSheet:     defaultName(cfg.AuditSheet, "Audit_Log"),
		usersSheet:     defaultName(cfg.UsersSheet, "Users"),
		summarySheet:   defaultName(cfg.SummarySheet, "Monthly_Summary"),
		templateSheet:  defaultName(cfg.TemplateSheet, "Employee_Template"),
		loc:            loc,
		directory:      map[string]core.Employee{},
		tokens:         map[string]int{},
	}

	slog.InfoContext(ctx, "Google Sheets backend ready",
		"spreadsheet_id", cfg.SpreadsheetID,
		"reference_sheet", c.referenceSheet,
		"users_sheet", c.usersSheet)
	return c, nil
}

// ReadCredentials resolves service-account JSON from an inline value or
// a file path, falling back to GOOGLE_APPLICATION_CREDENTIALS.
func ReadCredentials(inlineJSON, filePath string) ([]byte, error) {
	if strings.TrimSpace(inlineJSON) != "" {
		return []byte(inlineJSON), nil
	}
	if strings.TrimSpace(filePath) == "" {
		filePath = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if filePath == "" {
		return nil, errors.New("missing service account credentials")
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

func defaultName(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}

// Append implements ledger.Store. The row lands in the employee's tab,
// columns A..F; G keeps its formula. A token whose write already
// landed turns the call into a no-op success.
func (c *Client) Append(ctx context.Context, employeeID string, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	emp, err := c.Lookup(ctx, employeeID)
	if err != nil {
		return err
	}

	switch c.tokenState(employeeID, tx.Token) {
	case tokenCommitted:
		slog.InfoContext(ctx, "Duplicate commit token, append skipped",
			"employee_id", employeeID, "token", tx.Token)
		return nil
	case tokenIssued:
		// Previous attempt failed ambiguously. Check whether it landed.
		landed, err := c.tailMatches(ctx, emp.Collection, tx)
		if err != nil {
			return err
		}
		if landed {
			c.setTokenState(employeeID, tx.Token, tokenCommitted)
			slog.InfoContext(ctx, "Earlier append already landed, skipping",
				"employee_id", employeeID, "token", tx.Token)
			return nil
		}
	}
	c.setTokenState(employeeID, tx.Token, tokenIssued)

	// Find the next empty row from the date column.
	rng := fmt.Sprintf("%s!A:A", emp.Collection)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return wrapErr(fmt.Sprintf("read dimensions of %s", emp.Collection), err)
	}
	nextRow := len(resp.Values) + 1

	dataRange := fmt.Sprintf("%s!A%d:F%d", emp.Collection, nextRow, nextRow)
	vr := &gsheet.ValueRange{Values: [][]any{ledgerRow(tx)}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return wrapErr(fmt.Sprintf("update %s", dataRange), err)
	}
	c.setTokenState(employeeID, tx.Token, tokenCommitted)

	slog.InfoContext(ctx, "Transaction appended to sheet",
		"employee_id", employeeID,
		"collection", emp.Collection,
		"row", nextRow,
		"direction", tx.Direction,
		"amount_cents", tx.Amount.Cents)
	return nil
}

// tailMatches compares the last data row of the collection with the
// transaction about to be written.
func (c *Client) tailMatches(ctx context.Context, collection string, tx core.Transaction) (bool, error) {
	rng := fmt.Sprintf("%s!A:F", collection)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return false, wrapErr(fmt.Sprintf("read tail of %s", collection), err)
	}
	if len(resp.Values) == 0 {
		return false, nil
	}
	got, ok := parseLedgerRow(toStrings(resp.Values[len(resp.Values)-1]), c.loc)
	if !ok {
		return false, nil
	}
	return got.Date.Format(dateLayout) == tx.Date.Format(dateLayout) &&
		got.Direction == tx.Direction &&
		got.Amount.Cents == tx.Amount.Cents &&
		strings.EqualFold(got.Category, tx.Category) &&
		strings.EqualFold(got.Type, tx.Type) &&
		got.Description == tx.Description, nil
}

func (c *Client) ListMonth(ctx context.Context, employeeID string, month core.Month) ([]core.Transaction, error) {
	emp, err := c.Lookup(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	rows, err := c.readCollection(ctx, emp.Collection)
	if err != nil {
		return nil, err
	}
	var out []core.Transaction
	for _, tx := range rows {
		if month.Contains(tx.Date) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (c *Client) Months(ctx context.Context, employeeID string) ([]core.Month, error) {
	emp, err := c.Lookup(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	rows, err := c.readCollection(ctx, emp.Collection)
	if err != nil {
		return nil, err
	}
	seen := map[core.Month]struct{}{}
	var out []core.Month
	for _, tx := range rows {
		m := core.MonthOf(tx.Date)
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// Balance reads the derived column: the last row's G cell when the
// formula produced one, otherwise a fold over the amount columns.
func (c *Client) Balance(ctx context.Context, employeeID string) (core.Money, error) {
	emp, err := c.Lookup(ctx, employeeID)
	if err != nil {
		return core.Money{}, err
	}
	rng := fmt.Sprintf("%s!A:G", emp.Collection)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return core.Money{}, wrapErr(fmt.Sprintf("read %s", rng), err)
	}
	var fold int64
	haveRows := false
	for i := len(resp.Values) - 1; i >= 0; i-- {
		cols := toStrings(resp.Values[i])
		if _, ok := parseLedgerRow(cols, c.loc); !ok {
			continue
		}
		if !haveRows {
			// Last data row: prefer its balance cell.
			if cents, ok := parseAmountCents(safeGet(cols, colBalance)); ok {
				return core.Money{Cents: cents}, nil
			}
		}
		haveRows = true
		if in, ok := parseAmountCents(safeGet(cols, colIn)); ok {
			fold += in
		}
		if out, ok := parseAmountCents(safeGet(cols, colOut)); ok {
			fold -= out
		}
	}
	if !haveRows {
		return core.Money{}, nil
	}
	return core.Money{Cents: fold}, nil
}

func (c *Client) readCollection(ctx context.Context, collection string) ([]core.Transaction, error) {
	rng := fmt.Sprintf("%s!A:F", collection)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("read %s", rng), err)
	}
	var out []core.Transaction
	for _, row := range resp.Values {
		if tx, ok := parseLedgerRow(toStrings(row), c.loc); ok {
			out = append(out, tx)
		}
	}
	return out, nil
}

// Record implements ledger.AuditLog with a plain row append; the trail
// has no derived columns to protect.
func (c *Client) Record(ctx context.Context, rec core.AuditRecord) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	when := rec.Time
	if when.IsZero() {
		when = time.Now().In(c.loc)
	}
	vr := &gsheet.ValueRange{Values: [][]any{{
		when.Format(auditTimeLayout), rec.Actor, rec.Collection, rec.Action, rec.Field, rec.Old, rec.New,
	}}}
	rng := fmt.Sprintf("%s!A:G", c.auditSheet)
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return wrapErr(fmt.Sprintf("append audit row to %s", c.auditSheet), err)
	}
	return nil
}

// Entries implements ledger.Catalog from the reference tab, skipping
// the header row.
func (c *Client) Entries(ctx context.Context) ([]core.ReferenceEntry, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A2:D", c.referenceSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("read %s", rng), err)
	}
	var out []core.ReferenceEntry
	for _, row := range resp.Values {
		cols := toStrings(row)
		dir, err := core.ParseDirection(safeGet(cols, 0))
		if err != nil {
			continue
		}
		category := safeGet(cols, 1)
		typ := safeGet(cols, 2)
		if category == "" || typ == "" {
			continue
		}
		out = append(out, core.ReferenceEntry{
			Direction: dir,
			Category:  category,
			Type:      typ,
			Active:    parseActive(safeGet(cols, 3)),
		})
	}
	return out, nil
}

// Lookup implements ledger.Directory. The users tab is read on cache
// misses only; registrations from this process warm the cache.
func (c *Client) Lookup(ctx context.Context, employeeID string) (core.Employee, error) {
	c.mu.Lock()
	emp, ok := c.directory[employeeID]
	c.mu.Unlock()
	if ok {
		return emp, nil
	}

	rng := fmt.Sprintf("%s!A2:E", c.usersSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return core.Employee{}, wrapErr(fmt.Sprintf("read %s", rng), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range resp.Values {
		cols := toStrings(row)
		id := safeGet(cols, 0)
		if id == "" {
			continue
		}
		e := core.Employee{
			ID:         id,
			Name:       safeGet(cols, 1),
			Collection: safeGet(cols, 2),
			Active:     parseActive(safeGet(cols, 4)),
		}
		if t, err := time.ParseInLocation(dateLayout, safeGet(cols, 3), c.loc); err == nil {
			e.Registered = t
		}
		if e.Active {
			c.directory[id] = e
		}
	}
	if emp, ok := c.directory[employeeID]; ok {
		return emp, nil
	}
	return core.Employee{}, ledger.ErrUnknownEmployee
}

// Register appends the directory row and provisions the employee's tab
// by duplicating the template, falling back to a bare tab with a
// header row.
func (c *Client) Register(ctx context.Context, emp core.Employee) error {
	if err := emp.Validate(); err != nil {
		return err
	}
	if err := c.ensureCollection(ctx, emp.Collection); err != nil {
		return err
	}

	registered := emp.Registered
	if registered.IsZero() {
		registered = time.Now().In(c.loc)
		emp.Registered = registered
	}
	active := "FALSE"
	if emp.Active {
		active = "TRUE"
	}
	vr := &gsheet.ValueRange{Values: [][]any{{
		emp.ID, emp.Name, emp.Collection, registered.Format(dateLayout), active,
	}}}
	rng := fmt.Sprintf("%s!A:E", c.usersSheet)
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return wrapErr(fmt.Sprintf("append user row to %s", c.usersSheet), err)
	}

	c.mu.Lock()
	c.directory[emp.ID] = emp
	c.mu.Unlock()

	slog.InfoContext(ctx, "Employee registered in sheet",
		"employee_id", emp.ID,
		"collection", emp.Collection)
	return nil
}

func (c *Client) ensureCollection(ctx context.Context, collection string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return wrapErr("read spreadsheet properties", err)
	}
	var templateID int64 = -1
	for _, sh := range ss.Sheets {
		if sh.Properties == nil {
			continue
		}
		if sh.Properties.Title == collection {
			return nil
		}
		if sh.Properties.Title == c.templateSheet {
			templateID = sh.Properties.SheetId
		}
	}

	var req gsheet.Request
	if templateID >= 0 {
		req = gsheet.Request{DuplicateSheet: &gsheet.DuplicateSheetRequest{
			SourceSheetId:    templateID,
			NewSheetName:     collection,
			InsertSheetIndex: int64(len(ss.Sheets)),
		}}
	} else {
		req = gsheet.Request{AddSheet: &gsheet.AddSheetRequest{
			Properties: &gsheet.SheetProperties{Title: collection},
		}}
	}
	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{&req},
	}).Context(ctx).Do()
	if err != nil {
		return wrapErr(fmt.Sprintf("create collection %s", collection), err)
	}

	if templateID < 0 {
		// Bare tab: write the header so readers can skip row one.
		vr := &gsheet.ValueRange{Values: [][]any{{
			"Date", "In", "Out", "Category", "Type", "Description", "Balance",
		}}}
		hdr := fmt.Sprintf("%s!A1:G1", collection)
		if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, hdr, vr).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return wrapErr(fmt.Sprintf("write header of %s", collection), err)
		}
	}

	slog.InfoContext(ctx, "Collection created",
		"collection", collection,
		"from_template", templateID >= 0)
	return nil
}

// Upsert implements ledger.SummarySink on the summary tab, updating
// the (employee, month) row in place or appending a new one.
func (c *Client) Upsert(ctx context.Context, s core.MonthlySummary) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:E", c.summarySheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return wrapErr(fmt.Sprintf("read %s", rng), err)
	}

	row := []any{
		s.EmployeeID,
		s.Month.String(),
		float64(s.TotalIn.Cents) / 100.0,
		float64(s.TotalOut.Cents) / 100.0,
		float64(s.Net().Cents) / 100.0,
	}
	for i, existing := range resp.Values {
		cols := toStrings(existing)
		if safeGet(cols, 0) == s.EmployeeID && safeGet(cols, 1) == s.Month.String() {
			target := fmt.Sprintf("%s!A%d:E%d", c.summarySheet, i+1, i+1)
			vr := &gsheet.ValueRange{Values: [][]any{row}}
			if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, target, vr).
				ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
				return wrapErr(fmt.Sprintf("update %s", target), err)
			}
			return nil
		}
	}

	vr := &gsheet.ValueRange{Values: [][]any{row}}
	if _, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do(); err != nil {
		return wrapErr(fmt.Sprintf("append summary row to %s", c.summarySheet), err)
	}
	return nil
}

func (c *Client) tokenState(employeeID, token string) int {
	if token == "" {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[employeeID+"|"+token]
}

func (c *Client) setTokenState(employeeID, token string, state int) {
	if token == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[employeeID+"|"+token] = state
}

// wrapErr marks plausibly transient failures with ledger.ErrUnavailable
// so read retries recognize them. Client errors except rate limiting
// stay permanent.
func wrapErr(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code != http.StatusTooManyRequests && gerr.Code < 500 {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ledger.ErrUnavailable, err)
}
