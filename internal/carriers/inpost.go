package carriers

import (
	"context"
	"regexp"
)

// InPost locker notifications. Subjects come in both the classic
// "Paczkomat" and the newer "Appkomat" wording; package numbers are
// always 24 digits.

var (
	inpostPackagePattern   = regexp.MustCompile(`\b(\d{24})\b`)
	inpostPickupCode       = regexp.MustCompile(`(?i)kod odbioru:?\s*\n?\s*(\d{4,6})`)
	inpostPickupLocation   = regexp.MustCompile(`(?i)(?:paczkomat|appkomat|punkt)[:\s]+([A-Z]{3}\d{2,4}[A-Z]?)`)
	inpostPickupDeadline   = regexp.MustCompile(`(?i)(?:odbierz (?:ją |paczkę )?do|masz czas do|czeka do)[:\s]+(\d{2}[.-]\d{2}[.-]\d{4}|\d{4}-\d{2}-\d{2})`)
	inpostQRCodeLink       = regexp.MustCompile(`https://[^\s"<>]*inpost[^\s"<>]*(?:qr|kod)[^\s"<>]*`)
	inpostSenderPattern    = regexp.MustCompile(`(?i)nadawca[:\s]+([^\n<]{2,60})`)
	inpostSecondaryPattern = regexp.MustCompile(`(?i)numer (?:zwrotu|oddania)[:\s]+(\d{10,24})`)
)

func classifyInPost(subject, body string) bool {
	if containsAny(subject, "inpost", "paczkomat", "appkomat") {
		return true
	}
	return containsAny(head(body, 1000), "inpost.pl", "paczkomat", "appkomat")
}

func inpostStatus(subject, body string) Status {
	text := subject + " " + head(body, 1500)
	switch {
	case containsAny(text, "dziękujemy za odbiór", "paczka odebrana", "została odebrana", "odebrano paczkę"):
		return StatusDelivered
	case containsAny(text, "czeka na ciebie", "już na ciebie czeka", "czeka na odbiór", "gotowa do odbioru", "kod odbioru"):
		return StatusPickup
	case containsAny(text, "w drodze", "jest w trasie", "on its way", "przekazana do doręczenia"):
		return StatusTransit
	case containsAny(text, "została nadana", "nadano paczkę", "przyjęliśmy paczkę", "has been dispatched"):
		return StatusShipmentSent
	case containsAny(text, "utworzono etykietę", "oczekuje na nadanie"):
		return StatusConfirmed
	default:
		return StatusUnknown
	}
}

func extractInPost(ctx context.Context, env *Env, msg Message) ShipmentUpdate {
	u := base(CarrierInPost, msg)
	u.Status = inpostStatus(msg.Subject, msg.Body)

	text := msg.Subject + "\n" + msg.Body
	u.PackageNumber = firstMatch(inpostPackagePattern, text)
	u.SecondaryPackageNumber = firstMatch(inpostSecondaryPattern, text)
	u.Sender = firstMatch(inpostSenderPattern, msg.Body)

	switch u.Status {
	case StatusPickup:
		u.PickupCode = firstMatch(inpostPickupCode, msg.Body)
		u.PickupLocation = firstMatch(inpostPickupLocation, msg.Body)
		u.PickupDeadline = NormalizeDate(firstMatch(inpostPickupDeadline, msg.Body))
		u.QRCode = inpostQRCodeLink.FindString(msg.Body)
		// Lockers are open around the clock unless the email says otherwise.
		if containsAny(msg.Body, "24/7", "całą dobę") {
			u.AvailableHours = "24/7"
		}
	case StatusShipmentSent:
		u.ShippingDate = FindDate(msg.Body)
	case StatusDelivered:
		u.DeliveryDate = FindDate(msg.Body)
	case StatusTransit:
		u.ExpectedDeliveryDate = FindDate(msg.Body)
	}

	env.aiFill(ctx, &u, msg)
	return u
}
