package workers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcelmail/internal/carriers"
	"parcelmail/internal/dispatch"
	"parcelmail/internal/email"
)

type fakeClient struct {
	mailbox string
	msgs    []email.RawMessage
	err     error
	seen    []uint32
}

func (f *fakeClient) FetchUnseenSince(ctx context.Context, since time.Time) ([]email.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.msgs, nil
}

func (f *fakeClient) MarkSeen(ctx context.Context, uids []uint32) error {
	f.seen = append(f.seen, uids...)
	return nil
}

func (f *fakeClient) Mailbox() string { return f.mailbox }
func (f *fakeClient) Close() error    { return nil }

type memMapStore struct {
	lastDates map[string]time.Time
	writes    int
}

func newMemMapStore() *memMapStore {
	return &memMapStore{lastDates: make(map[string]time.Time)}
}

func (m *memMapStore) GetLastEmailDate(userKey string) (*time.Time, error) {
	if t, ok := m.lastDates[userKey]; ok {
		return &t, nil
	}
	return nil, nil
}

func (m *memMapStore) UpdateLastEmailDate(userKey string, date time.Time) error {
	m.writes++
	m.lastDates[userKey] = date
	return nil
}

func (m *memMapStore) AddOrderMapping(string, string) error {
	m.writes++
	return nil
}

func (m *memMapStore) AddPackageMapping(string, string) error {
	m.writes++
	return nil
}

type recordingProjector struct {
	updates []*carriers.ShipmentUpdate
	err     error
}

func (r *recordingProjector) Project(ctx context.Context, u *carriers.ShipmentUpdate) error {
	if r.err != nil {
		return r.err
	}
	r.updates = append(r.updates, u)
	return nil
}

type memLedger struct {
	statuses map[string]string
}

func newMemLedger() *memLedger {
	return &memLedger{statuses: make(map[string]string)}
}

func ledgerKey(mailbox string, uid uint32) string {
	return fmt.Sprintf("%s/%d", mailbox, uid)
}

func (m *memLedger) IsProcessed(mailbox string, uid uint32) (bool, error) {
	_, ok := m.statuses[ledgerKey(mailbox, uid)]
	return ok, nil
}

func (m *memLedger) MarkProcessed(mailbox string, uid uint32, messageID, status string) error {
	m.statuses[ledgerKey(mailbox, uid)] = status
	return nil
}

type captureNotifier struct{ msgs []string }

func (c *captureNotifier) Send(text string) { c.msgs = append(c.msgs, text) }

func rawAt(uid uint32, subject, body string, at time.Time) email.RawMessage {
	return email.RawMessage{
		Mailbox:   "inbox@example.com",
		UID:       uid,
		MessageID: fmt.Sprintf("<%d@test>", uid),
		Recipient: "lunaewsx@gmail.com",
		Subject:   subject,
		Body:      body,
		Date:      at,
	}
}

func newTestPoller(clients []email.Client, projector Projector, ledger Ledger, cfg Config) *Poller {
	analyzer := dispatch.New(newMemMapStore(), carriers.NewEnv(nil, nil), nil)
	return NewPoller(clients, analyzer, projector, ledger, nil, nil, cfg)
}

func TestCycleProcessesNewMail(t *testing.T) {
	client := &fakeClient{
		mailbox: "inbox@example.com",
		msgs: []email.RawMessage{
			rawAt(1, "Zamówienie 3054169918883922: zamówienie potwierdzone", "Dziękujemy.", time.Now()),
		},
	}
	projector := &recordingProjector{}
	ledger := newMemLedger()

	p := newTestPoller([]email.Client{client}, projector, ledger, Config{})
	p.RunCycle(context.Background())

	require.Len(t, projector.updates, 1)
	assert.Equal(t, carriers.CarrierAliExpress, projector.updates[0].Carrier)
	assert.Equal(t, "processed", ledger.statuses["inbox@example.com/1"])
	assert.Equal(t, []uint32{1}, client.seen)

	stats := p.Snapshot()
	assert.Equal(t, int64(1), stats.CyclesRun)
	assert.Equal(t, int64(1), stats.EmailsSeen)
	assert.Equal(t, int64(1), stats.EmailsProcessed)
	assert.Equal(t, int64(0), stats.Errors)
}

func TestCycleNewestWinsWithinBatch(t *testing.T) {
	t1 := time.Date(2024, 3, 17, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(2 * time.Hour)
	client := &fakeClient{
		mailbox: "inbox@example.com",
		msgs: []email.RawMessage{
			// Delivered arrives in fetch order before the older transit
			// email; processing is newest first so the older one goes
			// stale regardless of fetch order.
			rawAt(11, "DPD: Twoja paczka jest w drodze", "", t1),
			rawAt(12, "DPD: przesyłka doręczona", "Paczka doręczona.", t2),
		},
	}
	projector := &recordingProjector{}
	ledger := newMemLedger()

	p := newTestPoller([]email.Client{client}, projector, ledger, Config{})
	p.RunCycle(context.Background())

	require.Len(t, projector.updates, 1)
	assert.Equal(t, carriers.StatusDelivered, projector.updates[0].Status)
	assert.Equal(t, "processed", ledger.statuses["inbox@example.com/12"])
	assert.Equal(t, "stale_email", ledger.statuses["inbox@example.com/11"])
	assert.Equal(t, int64(1), p.Snapshot().EmailsDiscarded)
}

func TestCycleSkipsAlreadyProcessed(t *testing.T) {
	client := &fakeClient{
		mailbox: "inbox@example.com",
		msgs:    []email.RawMessage{rawAt(5, "Twoja paczka GLS", "", time.Now())},
	}
	projector := &recordingProjector{}
	ledger := newMemLedger()
	ledger.statuses["inbox@example.com/5"] = "processed"

	p := newTestPoller([]email.Client{client}, projector, ledger, Config{})
	p.RunCycle(context.Background())

	assert.Empty(t, projector.updates)
	assert.Equal(t, int64(0), p.Snapshot().EmailsSeen)
}

func TestCycleUnclassifiedDiscarded(t *testing.T) {
	client := &fakeClient{
		mailbox: "inbox@example.com",
		msgs:    []email.RawMessage{rawAt(7, "Newsletter", "nothing shipping related", time.Now())},
	}
	projector := &recordingProjector{}
	ledger := newMemLedger()

	p := newTestPoller([]email.Client{client}, projector, ledger, Config{})
	p.RunCycle(context.Background())

	assert.Empty(t, projector.updates)
	assert.Equal(t, "classification_miss", ledger.statuses["inbox@example.com/7"])
}

func TestCycleMailboxFailureIsIsolated(t *testing.T) {
	broken := &fakeClient{mailbox: "broken@example.com", err: errors.New("connection refused")}
	healthy := &fakeClient{
		mailbox: "inbox@example.com",
		msgs:    []email.RawMessage{rawAt(1, "Twoja paczka GLS jest w drodze", "", time.Now())},
	}
	projector := &recordingProjector{}
	notifier := &captureNotifier{}

	analyzer := dispatch.New(newMemMapStore(), carriers.NewEnv(nil, nil), nil)
	p := NewPoller([]email.Client{broken, healthy}, analyzer, projector, newMemLedger(), notifier, nil, Config{})
	p.RunCycle(context.Background())

	require.Len(t, projector.updates, 1, "healthy mailbox still polled")
	require.Len(t, notifier.msgs, 1)
	assert.Contains(t, notifier.msgs[0], "broken@example.com")

	stats := p.Snapshot()
	assert.Equal(t, int64(1), stats.Errors)
	assert.Contains(t, stats.LastError, "unreachable")
}

func TestCycleDryRun(t *testing.T) {
	client := &fakeClient{
		mailbox: "inbox@example.com",
		msgs: []email.RawMessage{
			rawAt(3, "Zamówienie 3054169918883922: zamówienie potwierdzone", "", time.Now()),
		},
	}
	projector := &recordingProjector{}
	ledger := newMemLedger()
	store := newMemMapStore()

	analyzer := dispatch.NewDryRun(store, carriers.NewEnv(nil, nil), nil)
	p := NewPoller([]email.Client{client}, analyzer, projector, ledger, nil, nil, Config{DryRun: true})
	p.RunCycle(context.Background())

	assert.Empty(t, projector.updates, "dry run never writes the sheet")
	assert.Empty(t, ledger.statuses, "dry run never writes the ledger")
	assert.Empty(t, client.seen, "dry run never flags mail")
	assert.Equal(t, 0, store.writes, "dry run never writes the mapping store")
	assert.Equal(t, int64(1), p.Snapshot().EmailsProcessed)
}

func TestCycleProjectionFailureRecorded(t *testing.T) {
	client := &fakeClient{
		mailbox: "inbox@example.com",
		msgs:    []email.RawMessage{rawAt(9, "Twoja paczka GLS jest w drodze", "", time.Now())},
	}
	projector := &recordingProjector{err: errors.New("sheet unavailable")}
	ledger := newMemLedger()

	p := newTestPoller([]email.Client{client}, projector, ledger, Config{})
	p.RunCycle(context.Background())

	assert.Equal(t, "sheet_error", ledger.statuses["inbox@example.com/9"])
	assert.Equal(t, int64(1), p.Snapshot().Errors)
}
