package carriers

import (
	"context"
	"regexp"
)

// Poczta Polska notifications. Package numbers are PX followed by digits.
// The classifier keys on wording no other carrier uses, so this handler's
// position in the chain does not matter.

var (
	ppPackagePattern  = regexp.MustCompile(`\b(PX\d{9,12})\b`)
	ppPickupLocation  = regexp.MustCompile(`(?i)(?:w placówce|urząd pocztowy|placówka)[:\s]+([^\n<]{3,100})`)
	ppPickupDeadline  = regexp.MustCompile(`(?i)(?:odbierz do|termin odbioru(?: upływa)?)[:\s]+(\d{2}[.-]\d{2}[.-]\d{4}|\d{4}-\d{2}-\d{2})`)
	ppHoursPattern    = regexp.MustCompile(`(?i)(?:godziny otwarcia|czynna)[:\s]+([^\n<]{3,60})`)
	ppExpectedPattern = regexp.MustCompile(`(?i)(?:przewidywany termin doręczenia)[:\s]+(\d{2}[.-]\d{2}[.-]\d{4}|\d{4}-\d{2}-\d{2})`)
)

func classifyPocztaPolska(subject, body string) bool {
	if containsAny(subject, "poczta polska", "pocztex") {
		return true
	}
	if ppPackagePattern.MatchString(subject) {
		return true
	}
	b := head(body, 1000)
	return containsAny(b, "poczta-polska.pl", "emonitoring.poczta-polska", "poczta polska") ||
		ppPackagePattern.MatchString(b)
}

func pocztaPolskaStatus(subject, body string) Status {
	text := subject + " " + head(body, 1500)
	switch {
	case containsAny(text, "doręczono przesyłkę", "przesyłka doręczona", "odebrano w placówce"):
		return StatusDelivered
	case containsAny(text, "awizo", "do odbioru w placówce", "oczekuje na odbiór"):
		return StatusPickup
	case containsAny(text, "w transporcie", "przyjęto w wez", "wysłana z"):
		return StatusTransit
	case containsAny(text, "nadano przesyłkę", "przyjęcie przesyłki"):
		return StatusShipmentSent
	default:
		return StatusUnknown
	}
}

func extractPocztaPolska(ctx context.Context, env *Env, msg Message) ShipmentUpdate {
	u := base(CarrierPocztaPolska, msg)
	u.Status = pocztaPolskaStatus(msg.Subject, msg.Body)

	u.PackageNumber = firstMatch(ppPackagePattern, msg.Subject+"\n"+msg.Body)

	switch u.Status {
	case StatusPickup:
		u.PickupLocation = firstMatch(ppPickupLocation, msg.Body)
		u.PickupDeadline = NormalizeDate(firstMatch(ppPickupDeadline, msg.Body))
		u.AvailableHours = firstMatch(ppHoursPattern, msg.Body)
	case StatusTransit, StatusShipmentSent:
		u.ExpectedDeliveryDate = NormalizeDate(firstMatch(ppExpectedPattern, msg.Body))
	case StatusDelivered:
		u.DeliveryDate = FindDate(msg.Body)
	}

	env.aiFill(ctx, &u, msg)
	return u
}
