package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// GoogleConfig holds the Google Sheets backend configuration. Credentials
// are a service-account key, either inline or read from a file.
type GoogleConfig struct {
	CredentialsFile string
	CredentialsJSON []byte
	SpreadsheetID   string
	LiveSheet       string
	ArchiveSheet    string
	AccountSheet    string
}

func (c *GoogleConfig) setDefaults() {
	if c.LiveSheet == "" {
		c.LiveSheet = "Shipments"
	}
	if c.ArchiveSheet == "" {
		c.ArchiveSheet = "Archive"
	}
}

// GoogleStore implements RowStore and AccountList on a Google
// spreadsheet.
type GoogleStore struct {
	svc      *sheets.Service
	cfg      GoogleConfig
	sheetIDs map[string]int64
}

func NewGoogleStore(ctx context.Context, cfg GoogleConfig) (*GoogleStore, error) {
	cfg.setDefaults()
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}

	data := cfg.CredentialsJSON
	if len(data) == 0 {
		if cfg.CredentialsFile == "" {
			return nil, fmt.Errorf("service account credentials are required")
		}
		var err error
		data, err = os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
	}

	jwt, err := google.JWTConfigFromJSON(data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	s := &GoogleStore{svc: svc, cfg: cfg, sheetIDs: make(map[string]int64)}
	if err := s.loadSheetIDs(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureHeader(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *GoogleStore) loadSheetIDs(ctx context.Context) error {
	meta, err := s.svc.Spreadsheets.Get(s.cfg.SpreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	for _, sh := range meta.Sheets {
		if sh.Properties != nil {
			s.sheetIDs[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	for _, title := range []string{s.cfg.LiveSheet, s.cfg.ArchiveSheet} {
		if _, ok := s.sheetIDs[title]; !ok {
			return fmt.Errorf("spreadsheet has no sheet named %q", title)
		}
	}
	return nil
}

func (s *GoogleStore) ensureHeader(ctx context.Context) error {
	for _, title := range []string{s.cfg.LiveSheet, s.cfg.ArchiveSheet} {
		rng := fmt.Sprintf("%s!A1:%s1", title, columnLetter(ColumnCount-1))
		resp, err := s.svc.Spreadsheets.Values.Get(s.cfg.SpreadsheetID, rng).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to read header of %s: %w", title, err)
		}
		if len(resp.Values) > 0 {
			continue
		}
		vr := &sheets.ValueRange{Values: [][]interface{}{toInterfaces(Header)}}
		_, err = s.svc.Spreadsheets.Values.Update(s.cfg.SpreadsheetID, rng, vr).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to write header of %s: %w", title, err)
		}
	}
	return nil
}

func (s *GoogleStore) Rows(ctx context.Context) ([]Row, error) {
	rng := fmt.Sprintf("%s!A2:%s", s.cfg.LiveSheet, columnLetter(ColumnCount-1))
	resp, err := s.svc.Spreadsheets.Values.Get(s.cfg.SpreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	rows := make([]Row, 0, len(resp.Values))
	for i, raw := range resp.Values {
		cells := make([]string, len(raw))
		for j, v := range raw {
			cells[j] = strings.TrimSpace(fmt.Sprint(v))
		}
		rows = append(rows, Row{Index: i, Cells: cells})
	}
	return rows, nil
}

func (s *GoogleStore) AppendRow(ctx context.Context, cells []string) error {
	return s.appendTo(ctx, s.cfg.LiveSheet, cells)
}

func (s *GoogleStore) AppendArchive(ctx context.Context, cells []string) error {
	return s.appendTo(ctx, s.cfg.ArchiveSheet, cells)
}

func (s *GoogleStore) appendTo(ctx context.Context, sheet string, cells []string) error {
	rng := fmt.Sprintf("%s!A:%s", sheet, columnLetter(ColumnCount-1))
	vr := &sheets.ValueRange{Values: [][]interface{}{toInterfaces(cells)}}
	_, err := s.svc.Spreadsheets.Values.Append(s.cfg.SpreadsheetID, rng, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", sheet, err)
	}
	return nil
}

func (s *GoogleStore) UpdateRow(ctx context.Context, index int, cells []string) error {
	rowNum := index + 2
	rng := fmt.Sprintf("%s!A%d:%s%d", s.cfg.LiveSheet, rowNum, columnLetter(ColumnCount-1), rowNum)
	vr := &sheets.ValueRange{Values: [][]interface{}{toInterfaces(cells)}}
	_, err := s.svc.Spreadsheets.Values.Update(s.cfg.SpreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update row %d: %w", index, err)
	}
	return nil
}

func (s *GoogleStore) UpdateCell(ctx context.Context, index, col int, value string) error {
	rng := fmt.Sprintf("%s!%s%d", s.cfg.LiveSheet, columnLetter(col), index+2)
	vr := &sheets.ValueRange{Values: [][]interface{}{{value}}}
	_, err := s.svc.Spreadsheets.Values.Update(s.cfg.SpreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update cell: %w", err)
	}
	return nil
}

func (s *GoogleStore) SetRowColor(ctx context.Context, index int, color RowColor) error {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          s.sheetIDs[s.cfg.LiveSheet],
					StartRowIndex:    int64(index + 1),
					EndRowIndex:      int64(index + 2),
					StartColumnIndex: 0,
					EndColumnIndex:   ColumnCount,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						BackgroundColor: &sheets.Color{
							Red:   color.Red,
							Green: color.Green,
							Blue:  color.Blue,
						},
					},
				},
				Fields: "userEnteredFormat.backgroundColor",
			},
		}},
	}
	_, err := s.svc.Spreadsheets.BatchUpdate(s.cfg.SpreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to color row %d: %w", index, err)
	}
	return nil
}

func (s *GoogleStore) DeleteRow(ctx context.Context, index int) error {
	return s.deleteSheetRow(ctx, s.cfg.LiveSheet, index)
}

func (s *GoogleStore) deleteSheetRow(ctx context.Context, sheet string, index int) error {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    s.sheetIDs[sheet],
					Dimension:  "ROWS",
					StartIndex: int64(index + 1),
					EndIndex:   int64(index + 2),
				},
			},
		}},
	}
	_, err := s.svc.Spreadsheets.BatchUpdate(s.cfg.SpreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to delete row %d of %s: %w", index, sheet, err)
	}
	return nil
}

// RemoveAccount deletes the first row of the account sheet whose first
// column matches the address. Without a configured account sheet this is
// a no-op.
func (s *GoogleStore) RemoveAccount(ctx context.Context, email string) error {
	if s.cfg.AccountSheet == "" {
		return nil
	}
	if _, ok := s.sheetIDs[s.cfg.AccountSheet]; !ok {
		return fmt.Errorf("spreadsheet has no sheet named %q", s.cfg.AccountSheet)
	}

	rng := fmt.Sprintf("%s!A2:A", s.cfg.AccountSheet)
	resp, err := s.svc.Spreadsheets.Values.Get(s.cfg.SpreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read account list: %w", err)
	}

	want := strings.ToLower(strings.TrimSpace(email))
	for i, raw := range resp.Values {
		if len(raw) == 0 {
			continue
		}
		if strings.ToLower(strings.TrimSpace(fmt.Sprint(raw[0]))) == want {
			return s.deleteSheetRow(ctx, s.cfg.AccountSheet, i)
		}
	}
	return nil
}

func toInterfaces(cells []string) []interface{} {
	out := make([]interface{}, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}

func columnLetter(col int) string {
	return string(rune('A' + col))
}
