package sheets

import "context"

// Column order of the live sheet. The header row is written once at
// startup and never touched afterwards.
const (
	ColEmail = iota
	ColCustomer
	ColCarrier
	ColStatus
	ColOrderNumber
	ColPackageNumber
	ColSecondaryPackage
	ColPickupCode
	ColPickupLocation
	ColPickupDeadline
	ColAvailableHours
	ColDeliveryAddress
	ColPhone
	ColExpectedDelivery
	ColEmailDate
	ColInfo

	ColumnCount
)

// Header is the first row of both the live and the archive sheet.
var Header = []string{
	"Email", "Customer", "Carrier", "Status", "Order number",
	"Package number", "Secondary package number", "Pickup code",
	"Pickup location", "Pickup deadline", "Available hours",
	"Delivery address", "Phone", "Expected delivery", "Email date", "Info",
}

// Row is one data row of the live sheet. Index is the zero-based data
// row position (the header row is not counted).
type Row struct {
	Index int
	Cells []string
}

// Cell returns the value at col, tolerating short rows.
func (r Row) Cell(col int) string {
	if col < 0 || col >= len(r.Cells) {
		return ""
	}
	return r.Cells[col]
}

// RowColor is a backend-neutral background color for a data row.
type RowColor struct {
	Red, Green, Blue float64
}

// RowStore is the spreadsheet surface the projector writes through.
// Implementations are expected to be slow and remote; the projector
// calls them sparingly and treats most failures as non-fatal.
type RowStore interface {
	// Rows returns all data rows of the live sheet.
	Rows(ctx context.Context) ([]Row, error)

	// AppendRow adds a data row at the bottom of the live sheet.
	AppendRow(ctx context.Context, cells []string) error

	// UpdateRow overwrites the data row at index.
	UpdateRow(ctx context.Context, index int, cells []string) error

	// UpdateCell overwrites a single cell of the data row at index.
	UpdateCell(ctx context.Context, index, col int, value string) error

	// SetRowColor paints the background of the data row at index.
	SetRowColor(ctx context.Context, index int, color RowColor) error

	// AppendArchive adds a data row at the bottom of the archive sheet.
	AppendArchive(ctx context.Context, cells []string) error

	// DeleteRow removes the data row at index; rows below shift up.
	DeleteRow(ctx context.Context, index int) error
}

// AccountList is the optional roster of active recipient addresses kept
// on a side sheet.
type AccountList interface {
	RemoveAccount(ctx context.Context, email string) error
}

// MappingRemover drops a user's stored order/package cross references
// once their shipment is delivered.
type MappingRemover interface {
	RemoveMapping(emailOrKey string) error
}
