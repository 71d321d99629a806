package carriers

import (
	"context"
	"strings"
	"time"
)

// Carrier identifies the parcel company (or marketplace) that owns a
// notification email.
type Carrier string

const (
	CarrierAliExpress   Carrier = "aliexpress"
	CarrierInPost       Carrier = "inpost"
	CarrierDHL          Carrier = "dhl"
	CarrierDPD          Carrier = "dpd"
	CarrierGLS          Carrier = "gls"
	CarrierPocztaPolska Carrier = "poczta_polska"
	CarrierUnknown      Carrier = "unknown"
)

// Status represents a shipment lifecycle stage. Not every carrier emits
// every stage.
type Status string

const (
	StatusConfirmed    Status = "confirmed"
	StatusShipmentSent Status = "shipment_sent"
	StatusTransit      Status = "transit"
	StatusPickup       Status = "pickup"
	StatusDelivered    Status = "delivered"
	StatusClosed       Status = "closed"
	StatusUnknown      Status = "unknown"
)

// Message is the raw material a carrier handler works with: the already
// fetched subject/body plus the mailbox identity the email arrived at.
type Message struct {
	Subject   string
	Body      string
	Recipient string
	Source    string
	Date      time.Time
}

// ShipmentUpdate is the normalized record produced by extraction. Every
// field except Carrier is optional; empty strings mean "not present in
// this email".
type ShipmentUpdate struct {
	Carrier Carrier `json:"carrier"`
	Status  Status  `json:"status"`

	PackageNumber          string `json:"package_number,omitempty"`
	OrderNumber            string `json:"order_number,omitempty"`
	SecondaryPackageNumber string `json:"secondary_package_number,omitempty"`

	PickupCode     string `json:"pickup_code,omitempty"`
	PickupLocation string `json:"pickup_location,omitempty"`
	PickupDeadline string `json:"pickup_deadline,omitempty"`
	AvailableHours string `json:"available_hours,omitempty"`

	DeliveryAddress string `json:"delivery_address,omitempty"`
	PhoneNumber     string `json:"phone_number,omitempty"`
	CustomerName    string `json:"customer_name,omitempty"`
	Sender          string `json:"sender,omitempty"`

	ShippingDate         string `json:"shipping_date,omitempty"`
	DeliveryDate         string `json:"delivery_date,omitempty"`
	ExpectedDeliveryDate string `json:"expected_delivery_date,omitempty"`

	Email       string    `json:"email,omitempty"`
	EmailSource string    `json:"email_source,omitempty"`
	EmailDate   time.Time `json:"email_date"`

	ItemLink string `json:"item_link,omitempty"`
	QRCode   string `json:"qr_code,omitempty"`
	Info     string `json:"info,omitempty"`
}

// UserKey derives the cross-reference identity for this update from the
// owning email address.
func (u *ShipmentUpdate) UserKey() string {
	return DeriveUserKey(u.Email)
}

// DeriveUserKey returns the lowercased local-part of an email address.
// Input that already looks like a bare local-part is returned unchanged,
// which makes the derivation idempotent. The empty string is the sentinel
// for malformed input. Two addresses sharing a local-part collide on
// purpose; callers accept that.
func DeriveUserKey(email string) string {
	s := strings.ToLower(strings.TrimSpace(email))
	if s == "" {
		return ""
	}
	if i := strings.Index(s, "@"); i >= 0 {
		s = s[:i]
	}
	return s
}

// AIResult is the fixed key set the language-model fallback is asked to
// produce. Every field is optional; unknown keys in the response are
// ignored.
type AIResult struct {
	PackageNumber          string `json:"package_number"`
	OrderNumber            string `json:"order_number"`
	SecondaryPackageNumber string `json:"secondary_package_number"`
	PickupCode             string `json:"pickup_code"`
	PickupLocation         string `json:"pickup_location"`
	PickupDeadline         string `json:"pickup_deadline"`
	AvailableHours         string `json:"available_hours"`
	DeliveryAddress        string `json:"delivery_address"`
	PhoneNumber            string `json:"phone_number"`
	CustomerName           string `json:"customer_name"`
	Sender                 string `json:"sender"`
	ShippingDate           string `json:"shipping_date"`
	DeliveryDate           string `json:"delivery_date"`
	ExpectedDeliveryDate   string `json:"expected_delivery_date"`
	ItemLink               string `json:"item_link"`
	QRCode                 string `json:"qr_code"`
	Info                   string `json:"info"`
}

// AIExtractor is the narrow capability interface the extraction pipeline
// uses for its language-model tier. The pipeline never requires it: a nil
// or disabled extractor simply skips the tier.
type AIExtractor interface {
	// ExtractFields asks the model for the fixed key set, given the
	// lifecycle stage the keyword triage already decided.
	ExtractFields(ctx context.Context, stage Status, subject, body string) (*AIResult, error)

	// Enabled reports whether calls may be attempted at all.
	Enabled() bool
}
