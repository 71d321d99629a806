package carriers

import (
	"context"
	"log/slog"
	"regexp"
)

// Handler pairs a classifier with an extractor for one carrier. The set is
// closed; dispatch walks an ordered slice instead of a type hierarchy.
type Handler struct {
	Carrier   Carrier
	CanHandle func(subject, body string) bool
	Extract   func(ctx context.Context, env *Env, msg Message) ShipmentUpdate
}

// Env carries the shared collaborators extractors need. A nil AI (or one
// reporting disabled) turns the language-model tier off entirely.
type Env struct {
	AI     AIExtractor
	Logger *slog.Logger

	// AIBodyThreshold is the body size above which extraction escalates to
	// the language-model tier even when local regexes found identifiers.
	AIBodyThreshold int
}

// NewEnv builds an extraction environment with the default thresholds.
func NewEnv(ai AIExtractor, logger *slog.Logger) *Env {
	if logger == nil {
		logger = slog.Default()
	}
	return &Env{AI: ai, Logger: logger, AIBodyThreshold: 4000}
}

// Registry returns the carrier handlers in their required evaluation
// order. GLS is checked before DPD so that emails mentioning GLS are not
// claimed by the looser DPD patterns; Poczta Polska patterns are disjoint
// from the rest, so its position at the end is order-insensitive.
func Registry() []Handler {
	return []Handler{
		{CarrierGLS, classifyGLS, extractGLS},
		{CarrierInPost, classifyInPost, extractInPost},
		{CarrierDHL, classifyDHL, extractDHL},
		{CarrierAliExpress, classifyAliExpress, extractAliExpress},
		{CarrierDPD, classifyDPD, extractDPD},
		{CarrierPocztaPolska, classifyPocztaPolska, extractPocztaPolska},
	}
}

// Classify walks the handler chain and returns the first handler claiming
// the message. First match wins; there is no scoring.
func Classify(subject, body string) (Handler, bool) {
	for _, h := range Registry() {
		if h.CanHandle(subject, body) {
			return h, true
		}
	}
	return Handler{}, false
}

// Terminal "delivered" wording per carrier, used for the cheap
// pre-extraction short circuit.
var deliveredWording = map[Carrier][]string{
	CarrierAliExpress:   {"zostało dostarczone", "has been delivered", "doręczono zamówienie"},
	CarrierInPost:       {"dziękujemy za odbiór", "paczka odebrana", "została odebrana"},
	CarrierDHL:          {"została dostarczona", "przesyłka doręczona", "has been delivered"},
	CarrierDPD:          {"paczka doręczona", "została doręczona", "delivered to the recipient"},
	CarrierGLS:          {"paczka została doręczona", "doręczyliśmy", "parcel has been delivered"},
	CarrierPocztaPolska: {"doręczono przesyłkę", "przesyłka doręczona", "odebrano w placówce"},
}

// ParseDeliveryStatus reports whether the message carries terminal
// delivered wording for the given carrier. When it does, dispatch skips
// full extraction and emits a minimal delivered record.
func ParseDeliveryStatus(c Carrier, subject, body string) bool {
	words, ok := deliveredWording[c]
	if !ok {
		return false
	}
	return containsAny(subject, words...) || containsAny(head(body, 2000), words...)
}

// base seeds a ShipmentUpdate with the fields every extractor fills the
// same way.
func base(c Carrier, msg Message) ShipmentUpdate {
	return ShipmentUpdate{
		Carrier:     c,
		Status:      StatusUnknown,
		Email:       msg.Recipient,
		EmailSource: msg.Source,
		EmailDate:   msg.Date,
	}
}

// shouldEscalate decides whether the AI tier runs: oversized bodies and
// regex misses both qualify.
func (e *Env) shouldEscalate(u *ShipmentUpdate, msg Message) bool {
	if e.AI == nil || !e.AI.Enabled() {
		return false
	}
	if len(msg.Body) > e.AIBodyThreshold {
		return true
	}
	return u.PackageNumber == "" && u.OrderNumber == ""
}

// aiFill runs the language-model tier and merges its output into empty
// fields only. Errors degrade silently to the narrow regex fallback; the
// caller's partial record is never discarded.
func (e *Env) aiFill(ctx context.Context, u *ShipmentUpdate, msg Message) {
	if !e.shouldEscalate(u, msg) {
		return
	}
	res, err := e.AI.ExtractFields(ctx, u.Status, msg.Subject, msg.Body)
	if err != nil || res == nil {
		if err != nil {
			e.Logger.Warn("ai extraction degraded, keeping regex fields",
				"carrier", u.Carrier, "error", err)
		}
		genericFallback(u, msg)
		return
	}
	mergeAIResult(u, res)
}

// mergeAIResult copies non-empty AI fields into empty slots, normalizing
// dates and phone numbers produced by the model.
func mergeAIResult(u *ShipmentUpdate, res *AIResult) {
	setIfEmpty(&u.PackageNumber, res.PackageNumber)
	setIfEmpty(&u.OrderNumber, res.OrderNumber)
	setIfEmpty(&u.SecondaryPackageNumber, res.SecondaryPackageNumber)
	setIfEmpty(&u.PickupCode, res.PickupCode)
	setIfEmpty(&u.PickupLocation, res.PickupLocation)
	setIfEmpty(&u.PickupDeadline, NormalizeDate(res.PickupDeadline))
	setIfEmpty(&u.AvailableHours, res.AvailableHours)
	setIfEmpty(&u.DeliveryAddress, res.DeliveryAddress)
	setIfEmpty(&u.PhoneNumber, NormalizePhone(res.PhoneNumber))
	setIfEmpty(&u.CustomerName, res.CustomerName)
	setIfEmpty(&u.Sender, res.Sender)
	setIfEmpty(&u.ShippingDate, NormalizeDate(res.ShippingDate))
	setIfEmpty(&u.DeliveryDate, NormalizeDate(res.DeliveryDate))
	setIfEmpty(&u.ExpectedDeliveryDate, NormalizeDate(res.ExpectedDeliveryDate))
	setIfEmpty(&u.ItemLink, res.ItemLink)
	setIfEmpty(&u.QRCode, res.QRCode)
	setIfEmpty(&u.Info, res.Info)
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

// Generic identifier patterns for the narrow regex fallback tier. These
// are deliberately loose; they run only after both the carrier-specific
// regexes and the AI tier came up empty.
var genericPackagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{24}\b`),
	regexp.MustCompile(`\b(?:JJD\d{16,20}|JVGL[A-Z0-9]{10,20}|3S[A-Z0-9]{10,18})\b`),
	regexp.MustCompile(`\bPX\d{9,12}\b`),
	regexp.MustCompile(`\b\d{13}[A-Z]\b`),
	regexp.MustCompile(`\b\d{11,14}\b`),
}

var genericOrderPattern = regexp.MustCompile(`\b\d{16}\b`)

func genericFallback(u *ShipmentUpdate, msg Message) {
	text := msg.Subject + "\n" + msg.Body
	if u.PackageNumber == "" {
		for _, re := range genericPackagePatterns {
			if m := re.FindString(text); m != "" {
				u.PackageNumber = m
				break
			}
		}
	}
	if u.OrderNumber == "" {
		u.OrderNumber = genericOrderPattern.FindString(text)
	}
}
