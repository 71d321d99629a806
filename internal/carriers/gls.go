package carriers

import (
	"context"
	"regexp"
)

// GLS notifications. Evaluated first in the chain: the substring "gls"
// must take the message before the DPD classifier sees it.

var (
	glsPackagePattern  = regexp.MustCompile(`\b(\d{11,12})\b`)
	glsTrackidPattern  = regexp.MustCompile(`(?i)(?:numer paczki|parcel number|track ?id)[:\s]+([A-Z0-9]{8,14})`)
	glsPickupLocation  = regexp.MustCompile(`(?i)(?:szopka gls|parcelshop|punkt(?:u)? odbioru)[:\s]+([^\n<]{3,80})`)
	glsPickupDeadline  = regexp.MustCompile(`(?i)(?:odbierz do|do dnia)[:\s]+(\d{2}[.-]\d{2}[.-]\d{4}|\d{4}-\d{2}-\d{2})`)
	glsExpectedPattern = regexp.MustCompile(`(?i)(?:planowane doręczenie|estimated delivery)[:\s]+(\d{2}[.-]\d{2}[.-]\d{4}|\d{4}-\d{2}-\d{2})`)
)

func classifyGLS(subject, body string) bool {
	if containsAny(subject, "gls") {
		return true
	}
	return containsAny(head(body, 1000), "gls-group.eu", "gls poland", "gls-poland")
}

func glsStatus(subject, body string) Status {
	text := subject + " " + head(body, 1500)
	switch {
	case containsAny(text, "paczka została doręczona", "doręczyliśmy", "parcel has been delivered"):
		return StatusDelivered
	case containsAny(text, "czeka w szopce", "czeka na odbiór", "gotowa do odbioru w"):
		return StatusPickup
	case containsAny(text, "jest w drodze", "in transit", "wyruszyła w drogę"):
		return StatusTransit
	case containsAny(text, "została nadana", "przyjęliśmy paczkę", "parcel data received"):
		return StatusShipmentSent
	default:
		return StatusUnknown
	}
}

func extractGLS(ctx context.Context, env *Env, msg Message) ShipmentUpdate {
	u := base(CarrierGLS, msg)
	u.Status = glsStatus(msg.Subject, msg.Body)

	text := msg.Subject + "\n" + msg.Body
	u.PackageNumber = firstMatch(glsTrackidPattern, text)
	if u.PackageNumber == "" {
		u.PackageNumber = firstMatch(glsPackagePattern, text)
	}

	switch u.Status {
	case StatusPickup:
		u.PickupLocation = firstMatch(glsPickupLocation, msg.Body)
		u.PickupDeadline = NormalizeDate(firstMatch(glsPickupDeadline, msg.Body))
	case StatusTransit, StatusShipmentSent:
		u.ExpectedDeliveryDate = NormalizeDate(firstMatch(glsExpectedPattern, msg.Body))
		if u.Status == StatusShipmentSent {
			u.ShippingDate = FindDate(msg.Body)
		}
	case StatusDelivered:
		u.DeliveryDate = FindDate(msg.Body)
	}

	env.aiFill(ctx, &u, msg)
	return u
}
