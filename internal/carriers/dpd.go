package carriers

import (
	"context"
	"regexp"
)

// DPD notifications. Package numbers are 13 digits plus a trailing
// letter. DPD is classified after GLS on purpose: GLS emails routinely
// mention DPD pickup points and would otherwise be claimed here.

var (
	dpdPackagePattern  = regexp.MustCompile(`\b(\d{13}[A-Z])\b`)
	dpdPickupCode      = regexp.MustCompile(`(?i)(?:kod odbioru|pin)[:\s]+(\d{4,6})`)
	dpdPickupLocation  = regexp.MustCompile(`(?i)(?:punkt(?:u)? (?:odbioru|dpd pickup)|pickup point)[:\s]+([^\n<]{3,80})`)
	dpdPickupDeadline  = regexp.MustCompile(`(?i)(?:odbierz do|czeka do)[:\s]+(\d{2}[.-]\d{2}[.-]\d{4}|\d{4}-\d{2}-\d{2})`)
	dpdExpectedPattern = regexp.MustCompile(`(?i)(?:planowane doręczenie|przewidywana dostawa)[:\s]+(\d{2}[.-]\d{2}[.-]\d{4}|\d{4}-\d{2}-\d{2})`)
	dpdHoursPattern    = regexp.MustCompile(`(?i)(?:w godzinach|między)[:\s]+(\d{1,2}:\d{2}\s*[-–]\s*\d{1,2}:\d{2})`)
)

func classifyDPD(subject, body string) bool {
	if containsAny(subject, "dpd") {
		return true
	}
	return containsAny(head(body, 1000), "dpd.com.pl", "dpdgroup", "dpd pickup")
}

func dpdStatus(subject, body string) Status {
	text := subject + " " + head(body, 1500)
	switch {
	case containsAny(text, "paczka doręczona", "została doręczona", "delivered to the recipient"):
		return StatusDelivered
	case containsAny(text, "czeka w punkcie", "gotowa do odbioru", "czeka na odbiór"):
		return StatusPickup
	case containsAny(text, "jest w drodze", "wydana do doręczenia", "out for delivery"):
		return StatusTransit
	case containsAny(text, "nadana", "przyjęta do przewozu"):
		return StatusShipmentSent
	case containsAny(text, "zapowiedź paczki", "dane przesyłki zostały przekazane"):
		return StatusConfirmed
	default:
		return StatusUnknown
	}
}

func extractDPD(ctx context.Context, env *Env, msg Message) ShipmentUpdate {
	u := base(CarrierDPD, msg)
	u.Status = dpdStatus(msg.Subject, msg.Body)

	u.PackageNumber = firstMatch(dpdPackagePattern, msg.Subject+"\n"+msg.Body)

	switch u.Status {
	case StatusPickup:
		u.PickupCode = firstMatch(dpdPickupCode, msg.Body)
		u.PickupLocation = firstMatch(dpdPickupLocation, msg.Body)
		u.PickupDeadline = NormalizeDate(firstMatch(dpdPickupDeadline, msg.Body))
	case StatusTransit:
		u.ExpectedDeliveryDate = NormalizeDate(firstMatch(dpdExpectedPattern, msg.Body))
		u.AvailableHours = firstMatch(dpdHoursPattern, msg.Body)
	case StatusShipmentSent:
		u.ShippingDate = FindDate(msg.Body)
	case StatusDelivered:
		u.DeliveryDate = FindDate(msg.Body)
	}

	env.aiFill(ctx, &u, msg)
	return u
}
