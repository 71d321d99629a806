package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"parcelmail/internal/carriers"
	"parcelmail/internal/dispatch"
	"parcelmail/internal/email"
	"parcelmail/internal/notify"
)

// Analyzer is the classification+extraction stage of the pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, msg carriers.Message) dispatch.Result
}

// Projector applies an update to the spreadsheet.
type Projector interface {
	Project(ctx context.Context, u *carriers.ShipmentUpdate) error
}

// Ledger remembers which messages were already handled so restarts do
// not replay old mail.
type Ledger interface {
	IsProcessed(mailbox string, uid uint32) (bool, error)
	MarkProcessed(mailbox string, uid uint32, messageID, status string) error
}

// Config tunes the cycle driver.
type Config struct {
	PollInterval time.Duration
	Lookback     time.Duration
	DryRun       bool
}

func (c *Config) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Minute
	}
	if c.Lookback <= 0 {
		c.Lookback = 7 * 24 * time.Hour
	}
}

// Stats are the cycle counters the status endpoint reports.
type Stats struct {
	CyclesRun       int64     `json:"cycles_run"`
	EmailsSeen      int64     `json:"emails_seen"`
	EmailsProcessed int64     `json:"emails_processed"`
	EmailsDiscarded int64     `json:"emails_discarded"`
	Errors          int64     `json:"errors"`
	LastCycleAt     time.Time `json:"last_cycle_at"`
	LastError       string    `json:"last_error,omitempty"`
}

// Poller drives the whole pipeline: one cycle polls every configured
// mailbox in turn, runs each new message through the analyzer and
// projects the survivors onto the sheet. Cycles are strictly
// single-threaded; slow is fine here, concurrent sheet writes are not.
type Poller struct {
	clients   []email.Client
	analyzer  Analyzer
	projector Projector
	ledger    Ledger
	notifier  notify.Notifier
	logger    *slog.Logger
	cfg       Config

	mu    sync.Mutex
	stats Stats
}

func NewPoller(clients []email.Client, analyzer Analyzer, projector Projector, ledger Ledger, notifier notify.Notifier, logger *slog.Logger, cfg Config) *Poller {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Poller{
		clients:   clients,
		analyzer:  analyzer,
		projector: projector,
		ledger:    ledger,
		notifier:  notifier,
		logger:    logger,
		cfg:       cfg,
	}
}

// Snapshot returns a copy of the current counters.
func (p *Poller) Snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Run executes cycles until the context is canceled. The first cycle
// starts immediately.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.RunCycle(ctx)
		}
	}
}

// RunCycle polls every mailbox once. A mailbox that cannot be reached
// fails the cycle for that mailbox only; the rest still run.
func (p *Poller) RunCycle(ctx context.Context) {
	start := time.Now()
	since := start.Add(-p.cfg.Lookback)

	for _, client := range p.clients {
		if ctx.Err() != nil {
			return
		}
		p.pollMailbox(ctx, client, since)
	}

	p.mu.Lock()
	p.stats.CyclesRun++
	p.stats.LastCycleAt = start
	p.mu.Unlock()
}

func (p *Poller) pollMailbox(ctx context.Context, client email.Client, since time.Time) {
	mailbox := client.Mailbox()

	msgs, err := client.FetchUnseenSince(ctx, since)
	if err != nil {
		p.recordError(fmt.Sprintf("mailbox %s unreachable: %v", mailbox, err))
		p.notifier.Send(fmt.Sprintf("parcelmail: cannot poll %s: %v", mailbox, err))
		return
	}
	if len(msgs) == 0 {
		return
	}

	// Newest first, so older notifications for the same user fall to the
	// staleness check instead of briefly overwriting current data.
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Date.After(msgs[j].Date) })

	var handled []uint32
	for _, raw := range msgs {
		if ctx.Err() != nil {
			break
		}

		done, err := p.ledger.IsProcessed(mailbox, raw.UID)
		if err != nil {
			p.recordError(fmt.Sprintf("ledger lookup failed for %s/%d: %v", mailbox, raw.UID, err))
			continue
		}
		if done {
			continue
		}

		p.mu.Lock()
		p.stats.EmailsSeen++
		p.mu.Unlock()

		status := p.handleMessage(ctx, raw)
		handled = append(handled, raw.UID)

		if p.cfg.DryRun {
			continue
		}
		if err := p.ledger.MarkProcessed(mailbox, raw.UID, raw.MessageID, status); err != nil {
			p.logger.Warn("failed to record processed message",
				"mailbox", mailbox, "uid", raw.UID, "error", err)
		}
	}

	if p.cfg.DryRun || len(handled) == 0 {
		return
	}
	if err := client.MarkSeen(ctx, handled); err != nil {
		p.logger.Warn("failed to mark messages seen", "mailbox", mailbox, "error", err)
	}
}

// handleMessage runs one message through analysis and projection and
// returns the ledger status to record for it.
func (p *Poller) handleMessage(ctx context.Context, raw email.RawMessage) string {
	msg := carriers.Message{
		Subject:   raw.Subject,
		Body:      raw.Body,
		Recipient: raw.Recipient,
		Source:    raw.Mailbox,
		Date:      raw.Date,
	}

	res := p.analyzer.Analyze(ctx, msg)
	if res.Discarded() {
		p.mu.Lock()
		p.stats.EmailsDiscarded++
		p.mu.Unlock()
		p.logger.Debug("message discarded",
			"mailbox", raw.Mailbox, "uid", raw.UID, "reason", string(res.Reason))
		return string(res.Reason)
	}

	p.logger.Info("shipment update",
		"mailbox", raw.Mailbox,
		"carrier", string(res.Update.Carrier),
		"status", string(res.Update.Status),
		"package", res.Update.PackageNumber,
		"order", res.Update.OrderNumber)

	if p.cfg.DryRun {
		p.mu.Lock()
		p.stats.EmailsProcessed++
		p.mu.Unlock()
		return "dry_run"
	}

	if err := p.projector.Project(ctx, res.Update); err != nil {
		p.recordError(fmt.Sprintf("projection failed for %s/%d: %v", raw.Mailbox, raw.UID, err))
		return "sheet_error"
	}

	p.mu.Lock()
	p.stats.EmailsProcessed++
	p.mu.Unlock()
	return "processed"
}

func (p *Poller) recordError(msg string) {
	p.logger.Error(msg)
	p.mu.Lock()
	p.stats.Errors++
	p.stats.LastError = msg
	p.mu.Unlock()
}
