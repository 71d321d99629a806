package sheets

import (
	"context"
	"fmt"
	"log/slog"

	"parcelmail/internal/carriers"
)

var carrierLabels = map[carriers.Carrier]string{
	carriers.CarrierAliExpress:   "AliExpress",
	carriers.CarrierInPost:       "InPost",
	carriers.CarrierDHL:          "DHL",
	carriers.CarrierDPD:          "DPD",
	carriers.CarrierGLS:          "GLS",
	carriers.CarrierPocztaPolska: "Poczta Polska",
}

var statusLabels = map[carriers.Status]string{
	carriers.StatusConfirmed:    "Confirmed",
	carriers.StatusShipmentSent: "Shipment sent",
	carriers.StatusTransit:      "In transit",
	carriers.StatusPickup:       "Ready for pickup",
	carriers.StatusDelivered:    "Delivered",
	carriers.StatusClosed:       "Closed",
	carriers.StatusUnknown:      "Unknown",
}

var statusColors = map[carriers.Status]RowColor{
	carriers.StatusConfirmed:    {Red: 0.92, Green: 0.92, Blue: 0.92},
	carriers.StatusShipmentSent: {Red: 0.80, Green: 0.88, Blue: 1.00},
	carriers.StatusTransit:      {Red: 1.00, Green: 0.95, Blue: 0.60},
	carriers.StatusPickup:       {Red: 1.00, Green: 0.80, Blue: 0.45},
	carriers.StatusDelivered:    {Red: 0.72, Green: 0.90, Blue: 0.70},
}

// Projector maintains the live sheet: one row per active shipment,
// updated in place as new emails arrive, archived and removed on
// delivery. The account list and mapping remover are optional hooks.
type Projector struct {
	store    RowStore
	accounts AccountList
	mappings MappingRemover
	logger   *slog.Logger
}

func NewProjector(store RowStore, accounts AccountList, mappings MappingRemover, logger *slog.Logger) *Projector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{store: store, accounts: accounts, mappings: mappings, logger: logger}
}

// Project applies one shipment update to the sheet. The matching row is
// located by package number first, order number second, user identity
// last; no match means a fresh row. Delivered updates additionally run
// the teardown.
func (p *Projector) Project(ctx context.Context, u *carriers.ShipmentUpdate) error {
	rows, err := p.store.Rows(ctx)
	if err != nil {
		return fmt.Errorf("failed to read sheet rows: %w", err)
	}

	existing, found := findRow(rows, u)
	cells := buildCells(u, existing)

	index := existing.Index
	if found {
		if err := p.store.UpdateRow(ctx, index, cells); err != nil {
			return fmt.Errorf("failed to update row %d: %w", index, err)
		}
	} else {
		if err := p.store.AppendRow(ctx, cells); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
		index = len(rows)
	}

	if color, ok := statusColors[u.Status]; ok {
		if err := p.store.SetRowColor(ctx, index, color); err != nil {
			p.logger.Warn("failed to color row", "row", index, "error", err)
		}
	}

	if u.Status == carriers.StatusDelivered {
		p.tearDown(ctx, index, cells, u)
	}
	return nil
}

// tearDown runs the delivered sequence: mark the status cell, archive
// the row, drop the account and the stored mappings, then delete the
// live row. Every step is best effort except the delete, which is
// skipped when archiving failed so the data is not lost.
func (p *Projector) tearDown(ctx context.Context, index int, cells []string, u *carriers.ShipmentUpdate) {
	if err := p.store.UpdateCell(ctx, index, ColStatus, statusLabels[carriers.StatusDelivered]); err != nil {
		p.logger.Warn("teardown: status cell update failed", "row", index, "error", err)
	}

	archived := true
	if err := p.store.AppendArchive(ctx, cells); err != nil {
		archived = false
		p.logger.Warn("teardown: archive failed", "row", index, "error", err)
	}

	if p.accounts != nil && u.Email != "" {
		if err := p.accounts.RemoveAccount(ctx, u.Email); err != nil {
			p.logger.Warn("teardown: account removal failed", "email", u.Email, "error", err)
		}
	}

	if p.mappings != nil && u.Email != "" {
		if err := p.mappings.RemoveMapping(u.Email); err != nil {
			p.logger.Warn("teardown: mapping removal failed", "email", u.Email, "error", err)
		}
	}

	if !archived {
		p.logger.Warn("teardown: keeping live row, archive did not succeed", "row", index)
		return
	}
	if err := p.store.DeleteRow(ctx, index); err != nil {
		p.logger.Warn("teardown: row delete failed", "row", index, "error", err)
	}
}

// findRow locates the row an update belongs to. Package numbers are the
// strongest identity, then order numbers, then the owning user.
func findRow(rows []Row, u *carriers.ShipmentUpdate) (Row, bool) {
	if u.PackageNumber != "" {
		for _, r := range rows {
			if r.Cell(ColPackageNumber) == u.PackageNumber || r.Cell(ColSecondaryPackage) == u.PackageNumber {
				return r, true
			}
		}
	}
	if u.OrderNumber != "" {
		for _, r := range rows {
			if r.Cell(ColOrderNumber) == u.OrderNumber {
				return r, true
			}
		}
	}
	if key := u.UserKey(); key != "" {
		for _, r := range rows {
			if carriers.DeriveUserKey(r.Cell(ColEmail)) == key {
				return r, true
			}
		}
	}
	return Row{}, false
}

// buildCells merges the update into the existing row. A field the new
// email did not carry keeps the value already on the sheet.
func buildCells(u *carriers.ShipmentUpdate, existing Row) []string {
	pick := func(col int, value string) string {
		if value != "" {
			return value
		}
		return existing.Cell(col)
	}

	info := u.Info
	if info == "" {
		info = u.ItemLink
	}

	cells := make([]string, ColumnCount)
	cells[ColEmail] = pick(ColEmail, u.Email)
	cells[ColCustomer] = pick(ColCustomer, u.CustomerName)
	cells[ColCarrier] = pick(ColCarrier, carrierLabels[u.Carrier])
	cells[ColStatus] = pick(ColStatus, statusLabels[u.Status])
	cells[ColOrderNumber] = pick(ColOrderNumber, u.OrderNumber)
	cells[ColPackageNumber] = pick(ColPackageNumber, u.PackageNumber)
	cells[ColSecondaryPackage] = pick(ColSecondaryPackage, u.SecondaryPackageNumber)
	cells[ColPickupCode] = pick(ColPickupCode, u.PickupCode)
	cells[ColPickupLocation] = pick(ColPickupLocation, u.PickupLocation)
	cells[ColPickupDeadline] = pick(ColPickupDeadline, u.PickupDeadline)
	cells[ColAvailableHours] = pick(ColAvailableHours, u.AvailableHours)
	cells[ColDeliveryAddress] = pick(ColDeliveryAddress, u.DeliveryAddress)
	cells[ColPhone] = pick(ColPhone, u.PhoneNumber)
	cells[ColExpectedDelivery] = pick(ColExpectedDelivery, u.ExpectedDeliveryDate)
	if !u.EmailDate.IsZero() {
		cells[ColEmailDate] = u.EmailDate.Format("02.01.2006 15:04")
	} else {
		cells[ColEmailDate] = existing.Cell(ColEmailDate)
	}
	cells[ColInfo] = pick(ColInfo, info)
	return cells
}
