package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcelmail/internal/carriers"
)

type memStore struct {
	lastDates map[string]time.Time
	orders    map[string][]string
	packages  map[string][]string
	writes    int
}

func newMemStore() *memStore {
	return &memStore{
		lastDates: make(map[string]time.Time),
		orders:    make(map[string][]string),
		packages:  make(map[string][]string),
	}
}

func (m *memStore) GetLastEmailDate(userKey string) (*time.Time, error) {
	if t, ok := m.lastDates[userKey]; ok {
		return &t, nil
	}
	return nil, nil
}

func (m *memStore) UpdateLastEmailDate(userKey string, date time.Time) error {
	m.writes++
	m.lastDates[userKey] = date
	return nil
}

func (m *memStore) AddOrderMapping(userKey, orderNumber string) error {
	m.writes++
	m.orders[userKey] = append(m.orders[userKey], orderNumber)
	return nil
}

func (m *memStore) AddPackageMapping(userKey, packageNumber string) error {
	m.writes++
	m.packages[userKey] = append(m.packages[userKey], packageNumber)
	return nil
}

func newTestAnalyzer(store MappingStore) *Analyzer {
	return New(store, carriers.NewEnv(nil, nil), nil)
}

func msgAt(subject, body string, at time.Time) carriers.Message {
	return carriers.Message{
		Subject:   subject,
		Body:      body,
		Recipient: "lunaewsx@gmail.com",
		Source:    "lunaewsx@gmail.com",
		Date:      at,
	}
}

func TestAnalyzeClassificationMiss(t *testing.T) {
	a := newTestAnalyzer(newMemStore())

	res := a.Analyze(context.Background(), msgAt("Newsletter", "nothing here", time.Now()))
	assert.True(t, res.Discarded())
	assert.Equal(t, DiscardNoMatch, res.Reason)
	assert.Nil(t, res.Update)
}

func TestAnalyzeAliExpressConfirmed(t *testing.T) {
	store := newMemStore()
	a := newTestAnalyzer(store)

	res := a.Analyze(context.Background(), msgAt(
		"Zamówienie 3054169918883922: zamówienie potwierdzone",
		"Dziękujemy za zakupy.",
		time.Date(2024, 3, 17, 9, 0, 0, 0, time.UTC),
	))

	require.False(t, res.Discarded())
	assert.Equal(t, carriers.CarrierAliExpress, res.Update.Carrier)
	assert.Equal(t, carriers.StatusConfirmed, res.Update.Status)
	assert.Equal(t, "3054169918883922", res.Update.OrderNumber)
	assert.Equal(t, "lunaewsx", res.Update.UserKey())
	assert.Equal(t, []string{"3054169918883922"}, store.orders["lunaewsx"])
}

func TestAnalyzeStalenessOrdering(t *testing.T) {
	t1 := time.Date(2024, 3, 17, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	subject := "DPD: Twoja paczka jest w drodze"

	t.Run("newest first discards the older", func(t *testing.T) {
		a := newTestAnalyzer(newMemStore())

		res := a.Analyze(context.Background(), msgAt(subject, "", t2))
		assert.False(t, res.Discarded())

		res = a.Analyze(context.Background(), msgAt(subject, "", t1))
		assert.True(t, res.Discarded())
		assert.Equal(t, DiscardStale, res.Reason)
	})

	t.Run("oldest first accepts both", func(t *testing.T) {
		a := newTestAnalyzer(newMemStore())

		res := a.Analyze(context.Background(), msgAt(subject, "", t1))
		assert.False(t, res.Discarded())

		res = a.Analyze(context.Background(), msgAt(subject, "", t2))
		assert.False(t, res.Discarded())
	})

	t.Run("equal timestamp is stale", func(t *testing.T) {
		a := newTestAnalyzer(newMemStore())

		res := a.Analyze(context.Background(), msgAt(subject, "", t1))
		assert.False(t, res.Discarded())

		res = a.Analyze(context.Background(), msgAt(subject, "", t1))
		assert.True(t, res.Discarded())
	})
}

func TestAnalyzeTimestampAdvancesBeforeExtraction(t *testing.T) {
	store := newMemStore()
	a := newTestAnalyzer(store)
	at := time.Date(2024, 3, 17, 9, 0, 0, 0, time.UTC)

	a.Analyze(context.Background(), msgAt("DHL: przesyłka w doręczeniu", "", at))
	assert.True(t, store.lastDates["lunaewsx"].Equal(at))
}

func TestAnalyzeDeliveredShortCircuit(t *testing.T) {
	// Terminal wording must bypass full extraction, so an AI extractor
	// that would otherwise fire stays untouched.
	ai := &countingAI{}
	env := carriers.NewEnv(ai, nil)
	a := New(newMemStore(), env, nil)

	res := a.Analyze(context.Background(), msgAt(
		"Twoja przesyłka DHL została dostarczona",
		"Dostarczono dzisiaj.",
		time.Now(),
	))

	require.False(t, res.Discarded())
	assert.Equal(t, carriers.StatusDelivered, res.Update.Status)
	assert.Equal(t, carriers.CarrierDHL, res.Update.Carrier)
	assert.Equal(t, 0, ai.calls, "AI path not invoked on short circuit")
}

func TestAnalyzeInPostPickupEndToEnd(t *testing.T) {
	store := newMemStore()
	a := newTestAnalyzer(store)

	res := a.Analyze(context.Background(), msgAt(
		"Twój Appkomat: Paczka już na Ciebie czeka",
		"Kod odbioru:\n516465\nPaczka 623456789012345678901234 czeka.",
		time.Now(),
	))

	require.False(t, res.Discarded())
	assert.Equal(t, carriers.StatusPickup, res.Update.Status)
	assert.Equal(t, "516465", res.Update.PickupCode)
	assert.Equal(t, "623456789012345678901234", res.Update.PackageNumber)
	assert.Equal(t, []string{"623456789012345678901234"}, store.packages["lunaewsx"])
}

func TestAnalyzeDryRunLeavesStoreUntouched(t *testing.T) {
	store := newMemStore()
	a := NewDryRun(store, carriers.NewEnv(nil, nil), nil)
	t1 := time.Date(2024, 3, 17, 9, 0, 0, 0, time.UTC)

	res := a.Analyze(context.Background(), msgAt(
		"Zamówienie 3054169918883922: zamówienie potwierdzone",
		"Dziękujemy za zakupy.",
		t1.Add(time.Hour),
	))

	require.False(t, res.Discarded())
	assert.Equal(t, "3054169918883922", res.Update.OrderNumber, "extraction still runs")
	assert.Equal(t, 0, store.writes, "dry run never writes the mapping store")
	assert.Empty(t, store.lastDates)
	assert.Empty(t, store.orders)

	// Staleness still applies within the run via the shadow timestamps.
	res = a.Analyze(context.Background(), msgAt(
		"Zamówienie 3054169918883922: zamówienie potwierdzone", "", t1,
	))
	assert.True(t, res.Discarded())
	assert.Equal(t, DiscardStale, res.Reason)
	assert.Equal(t, 0, store.writes)
}

func TestAnalyzeDryRunStillReadsStoredTimestamps(t *testing.T) {
	store := newMemStore()
	store.lastDates["lunaewsx"] = time.Date(2024, 3, 17, 12, 0, 0, 0, time.UTC)
	a := NewDryRun(store, carriers.NewEnv(nil, nil), nil)

	res := a.Analyze(context.Background(), msgAt(
		"DPD: Twoja paczka jest w drodze", "",
		time.Date(2024, 3, 17, 9, 0, 0, 0, time.UTC),
	))

	assert.True(t, res.Discarded())
	assert.Equal(t, DiscardStale, res.Reason)
}

type countingAI struct {
	calls int
}

func (c *countingAI) ExtractFields(ctx context.Context, stage carriers.Status, subject, body string) (*carriers.AIResult, error) {
	c.calls++
	return &carriers.AIResult{}, nil
}

func (c *countingAI) Enabled() bool { return true }
