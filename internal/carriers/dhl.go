package carriers

import (
	"context"
	"regexp"
)

// DHL Parcel notifications. Package numbers carry a JJD, 3S or JVGL
// prefix; plain 10-11 digit waybill numbers appear in older templates.

var (
	dhlPackagePattern  = regexp.MustCompile(`\b(JJD\d{16,20}|JVGL[A-Z0-9]{10,20}|3S[A-Z0-9]{10,18})\b`)
	dhlWaybillPattern  = regexp.MustCompile(`(?i)(?:numer przesyłki|nr przesyłki|shipment number)[:\s]+(\d{10,11})`)
	dhlPickupCode      = regexp.MustCompile(`(?i)kod odbioru:?\s*\n?\s*(\d{4,6})`)
	dhlPickupLocation  = regexp.MustCompile(`(?i)(?:punkt(?:u)? (?:odbioru|dhl pop)|parcelshop)[:\s]+([^\n<]{3,80})`)
	dhlPickupDeadline  = regexp.MustCompile(`(?i)(?:odbierz do|do dnia)[:\s]+(\d{2}[.-]\d{2}[.-]\d{4}|\d{4}-\d{2}-\d{2})`)
	dhlHoursPattern    = regexp.MustCompile(`(?i)(?:godziny otwarcia|czynne)[:\s]+([^\n<]{3,60})`)
	dhlAddressPattern  = regexp.MustCompile(`(?i)(?:adres dostawy|deliver(?:y|ed) to)[:\s]+([^\n<]{5,120})`)
	dhlExpectedPattern = regexp.MustCompile(`(?i)(?:planowana dostawa|planowany termin|expected delivery)[:\s]+(\d{2}[.-]\d{2}[.-]\d{4}|\d{4}-\d{2}-\d{2})`)
)

func classifyDHL(subject, body string) bool {
	if containsAny(subject, "dhl") {
		return true
	}
	return containsAny(head(body, 1000), "dhl.com", "dhl parcel", "dhl.pl")
}

func dhlStatus(subject, body string) Status {
	text := subject + " " + head(body, 1500)
	switch {
	case containsAny(text, "została dostarczona", "przesyłka doręczona", "has been delivered"):
		return StatusDelivered
	case containsAny(text, "czeka na odbiór", "gotowa do odbioru", "w punkcie dhl pop", "kod odbioru"):
		return StatusPickup
	case containsAny(text, "w doręczeniu", "jest w drodze", "out for delivery", "w transporcie"):
		return StatusTransit
	case containsAny(text, "została nadana", "przyjęta w terminalu", "has been shipped"):
		return StatusShipmentSent
	case containsAny(text, "zapowiedź przesyłki", "utworzono przesyłkę"):
		return StatusConfirmed
	default:
		return StatusUnknown
	}
}

func extractDHL(ctx context.Context, env *Env, msg Message) ShipmentUpdate {
	u := base(CarrierDHL, msg)
	u.Status = dhlStatus(msg.Subject, msg.Body)

	text := msg.Subject + "\n" + msg.Body
	u.PackageNumber = firstMatch(dhlPackagePattern, text)
	if u.PackageNumber == "" {
		u.PackageNumber = firstMatch(dhlWaybillPattern, text)
	}

	switch u.Status {
	case StatusPickup:
		u.PickupCode = firstMatch(dhlPickupCode, msg.Body)
		u.PickupLocation = firstMatch(dhlPickupLocation, msg.Body)
		u.PickupDeadline = NormalizeDate(firstMatch(dhlPickupDeadline, msg.Body))
		u.AvailableHours = firstMatch(dhlHoursPattern, msg.Body)
		u.PhoneNumber = FindPhone(msg.Body)
	case StatusTransit:
		u.ExpectedDeliveryDate = NormalizeDate(firstMatch(dhlExpectedPattern, msg.Body))
		u.DeliveryAddress = firstMatch(dhlAddressPattern, msg.Body)
		u.PhoneNumber = FindPhone(msg.Body)
	case StatusShipmentSent:
		u.ShippingDate = FindDate(msg.Body)
		u.ExpectedDeliveryDate = NormalizeDate(firstMatch(dhlExpectedPattern, msg.Body))
	case StatusDelivered:
		u.DeliveryDate = FindDate(msg.Body)
	}

	env.aiFill(ctx, &u, msg)
	return u
}
