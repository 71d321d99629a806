package parser

import (
	"fmt"
	"strings"

	"parcelmail/internal/carriers"
)

// PromptBudget is the maximum prompt size in characters, template
// included. Bodies that would blow the budget get reduced to their
// interesting sections before the call is attempted.
const PromptBudget = 28000

const promptHeader = `Jesteś parserem powiadomień kurierskich. Z treści e-maila wyciągnij dane przesyłki.
Odpowiedz wyłącznie jednym obiektem JSON o dokładnie tych kluczach (puste wartości zostaw jako ""):
{"package_number":"","order_number":"","secondary_package_number":"","pickup_code":"","pickup_location":"","pickup_deadline":"","available_hours":"","delivery_address":"","phone_number":"","customer_name":"","sender":"","shipping_date":"","delivery_date":"","expected_delivery_date":"","item_link":"","qr_code":"","info":""}
Daty zapisuj w formacie DD.MM.YYYY. Nie dodawaj żadnego tekstu poza JSON.`

// Per-lifecycle-stage instruction blocks. The stage is decided by keyword
// triage before the model is consulted, so the prompt can be specific
// about which fields matter.
var stageInstructions = map[carriers.Status]string{
	carriers.StatusConfirmed: `Etap: potwierdzenie zamówienia. Skup się na: order_number, sender, item_link, expected_delivery_date.`,
	carriers.StatusShipmentSent: `Etap: nadanie przesyłki. Skup się na: package_number, shipping_date, expected_delivery_date, sender.`,
	carriers.StatusTransit: `Etap: przesyłka w drodze. Skup się na: package_number, expected_delivery_date, delivery_address, phone_number.`,
	carriers.StatusPickup: `Etap: paczka do odbioru. Skup się na: pickup_code, pickup_location, pickup_deadline, available_hours, package_number, qr_code.`,
	carriers.StatusDelivered: `Etap: doręczono. Skup się na: package_number, delivery_date, delivery_address.`,
}

// BuildPrompt assembles the extraction prompt for one email, fitting it
// into PromptBudget.
func BuildPrompt(stage carriers.Status, subject, body string) string {
	instr, ok := stageInstructions[stage]
	if !ok {
		instr = `Etap nieznany. Wyciągnij wszystkie pola, które znajdziesz.`
	}

	template := promptHeader + "\n" + instr + "\n\nTemat: " + subject + "\n\nTreść:\n"
	room := PromptBudget - len(template)
	if room < 0 {
		room = 0
	}
	return template + shrinkBody(body, room)
}

// shrinkBody fits body into limit characters. Oversized bodies are first
// reduced to their interesting sections (lines carrying digits or known
// field labels); plain truncation is the last resort.
func shrinkBody(body string, limit int) string {
	if len(body) <= limit {
		return body
	}

	var b strings.Builder
	for _, line := range strings.Split(body, "\n") {
		if !interestingLine(line) {
			continue
		}
		if b.Len()+len(line)+1 > limit {
			break
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if b.Len() > 0 {
		return b.String()
	}
	return body[:limit]
}

var fieldLabels = []string{
	"kod", "odbioru", "paczk", "przesyłk", "zamówieni", "numer", "nadawca",
	"adres", "telefon", "termin", "punkt", "placówk", "paczkomat", "tracking",
	"order", "pickup", "deadline",
}

func interestingLine(line string) bool {
	if strings.IndexFunc(line, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0 {
		return true
	}
	lower := strings.ToLower(line)
	for _, label := range fieldLabels {
		if strings.Contains(lower, label) {
			return true
		}
	}
	return false
}

// ParseResponse pulls the single JSON object out of a model response,
// tolerating leading/trailing prose and code fences.
func ParseResponse(raw string) (*carriers.AIResult, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model response")
	}
	return unmarshalResult(raw[start : end+1])
}
