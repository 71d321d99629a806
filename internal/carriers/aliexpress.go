package carriers

import (
	"context"
	"regexp"
)

// AliExpress marketplace notifications. Order numbers are 16 digits and
// usually appear in the subject ("Zamówienie 3054169918883922: ...").
// Shipment emails delegate the physical leg to a local carrier, so a
// package number may show up alongside the order number.

var (
	aliOrderSubject    = regexp.MustCompile(`(?i)zam[óo]wienie\s+(\d{16})`)
	aliOrderPattern    = regexp.MustCompile(`\b(\d{16})\b`)
	aliPackagePattern  = regexp.MustCompile(`(?i)(?:numer przesyłki|tracking number)[:\s]+([A-Z]{2}\d{9}[A-Z]{2}|[A-Z0-9]{10,24})`)
	aliItemLinkPattern = regexp.MustCompile(`https://(?:www\.)?aliexpress\.com/item/[^\s"<>]+`)
	aliExpectedPattern = regexp.MustCompile(`(?i)(?:przewidywana dostawa|expected delivery)[:\s]+(\d{2}[.-]\d{2}[.-]\d{4}|\d{4}-\d{2}-\d{2})`)
)

func classifyAliExpress(subject, body string) bool {
	if containsAny(subject, "aliexpress") {
		return true
	}
	if aliOrderSubject.MatchString(subject) {
		return true
	}
	return containsAny(head(body, 1000), "aliexpress.com", "aliexpress")
}

func aliexpressStatus(subject, body string) Status {
	text := subject + " " + head(body, 1500)
	switch {
	case containsAny(text, "zostało dostarczone", "has been delivered", "doręczono zamówienie"):
		return StatusDelivered
	case containsAny(text, "gotowe do odbioru", "ready for pickup"):
		return StatusPickup
	case containsAny(text, "w drodze", "in transit", "jest transportowane"):
		return StatusTransit
	case containsAny(text, "zostało wysłane", "has been shipped", "wysłano zamówienie"):
		return StatusShipmentSent
	case containsAny(text, "zamówienie potwierdzone", "order confirmed", "płatność została potwierdzona"):
		return StatusConfirmed
	default:
		return StatusUnknown
	}
}

func extractAliExpress(ctx context.Context, env *Env, msg Message) ShipmentUpdate {
	u := base(CarrierAliExpress, msg)
	u.Status = aliexpressStatus(msg.Subject, msg.Body)

	u.OrderNumber = firstMatch(aliOrderSubject, msg.Subject)
	if u.OrderNumber == "" {
		u.OrderNumber = firstMatch(aliOrderPattern, msg.Subject+"\n"+msg.Body)
	}
	u.PackageNumber = firstMatch(aliPackagePattern, msg.Body)
	u.ItemLink = aliItemLinkPattern.FindString(msg.Body)

	switch u.Status {
	case StatusShipmentSent:
		u.ShippingDate = FindDate(msg.Body)
		u.ExpectedDeliveryDate = NormalizeDate(firstMatch(aliExpectedPattern, msg.Body))
	case StatusTransit:
		u.ExpectedDeliveryDate = NormalizeDate(firstMatch(aliExpectedPattern, msg.Body))
	case StatusDelivered:
		u.DeliveryDate = FindDate(msg.Body)
	}

	env.aiFill(ctx, &u, msg)
	return u
}
