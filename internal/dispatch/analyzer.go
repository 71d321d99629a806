package dispatch

import (
	"context"
	"log/slog"
	"time"

	"parcelmail/internal/carriers"
)

// MappingStore is the slice of the user-mapping store the analyzer needs.
type MappingStore interface {
	GetLastEmailDate(userKey string) (*time.Time, error)
	UpdateLastEmailDate(userKey string, date time.Time) error
	AddOrderMapping(userKey, orderNumber string) error
	AddPackageMapping(userKey, packageNumber string) error
}

// DiscardReason says why a message produced no update.
type DiscardReason string

const (
	DiscardNone    DiscardReason = ""
	DiscardNoMatch DiscardReason = "classification_miss"
	DiscardStale   DiscardReason = "stale_email"
)

// Result is the outcome of analyzing one message. Discarded results carry
// no update; processed results always carry one, however sparse.
type Result struct {
	Update *carriers.ShipmentUpdate
	Reason DiscardReason
}

func (r Result) Discarded() bool { return r.Reason != DiscardNone }

// Analyzer runs each incoming message through the classification,
// staleness and extraction stages.
type Analyzer struct {
	store  MappingStore
	env    *carriers.Env
	logger *slog.Logger

	// Dry-run mode: the store is read but never written. Timestamps land
	// in shadowDates instead, so newest-wins still holds within a run.
	dryRun      bool
	shadowDates map[string]time.Time
}

func New(store MappingStore, env *carriers.Env, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{store: store, env: env, logger: logger}
}

// NewDryRun builds an analyzer that classifies and extracts but leaves
// the mapping store untouched.
func NewDryRun(store MappingStore, env *carriers.Env, logger *slog.Logger) *Analyzer {
	a := New(store, env, logger)
	a.dryRun = true
	a.shadowDates = make(map[string]time.Time)
	return a
}

// Analyze walks one message through the pipeline:
// classify → staleness check → delivered short circuit → extract → finalize.
// It never returns an error for a classified message; every failure path
// degrades to a sparser update.
func (a *Analyzer) Analyze(ctx context.Context, msg carriers.Message) Result {
	handler, ok := carriers.Classify(msg.Subject, msg.Body)
	if !ok {
		a.logger.Debug("no carrier claimed message", "subject", msg.Subject)
		return Result{Reason: DiscardNoMatch}
	}

	userKey := carriers.DeriveUserKey(msg.Recipient)
	if userKey != "" {
		last, err := a.lastEmailDate(userKey)
		if err != nil {
			// A broken read must not drop mail; treat the user as unseen.
			a.logger.Warn("staleness lookup failed", "user", userKey, "error", err)
		} else if last != nil && !msg.Date.After(*last) {
			a.logger.Debug("stale email skipped",
				"user", userKey, "email_date", msg.Date, "last_seen", *last)
			return Result{Reason: DiscardStale}
		}

		// The timestamp advances before extraction runs. If extraction
		// fails afterwards this message's data is lost on replay; kept
		// that way for parity with the established behavior.
		if err := a.updateLastEmailDate(userKey, msg.Date); err != nil {
			a.logger.Warn("failed to record email timestamp", "user", userKey, "error", err)
		}
	}

	var update carriers.ShipmentUpdate
	if carriers.ParseDeliveryStatus(handler.Carrier, msg.Subject, msg.Body) {
		// Terminal wording: skip full extraction, and in particular the
		// AI tier, for a minimal delivered record.
		update = carriers.ShipmentUpdate{
			Carrier:     handler.Carrier,
			Status:      carriers.StatusDelivered,
			Email:       msg.Recipient,
			EmailSource: msg.Source,
			EmailDate:   msg.Date,
		}
	} else {
		update = handler.Extract(ctx, a.env, msg)
	}

	a.finalize(&update, handler.Carrier, msg)

	if userKey != "" && !a.dryRun {
		if update.OrderNumber != "" {
			if err := a.store.AddOrderMapping(userKey, update.OrderNumber); err != nil {
				a.logger.Warn("failed to record order mapping", "user", userKey, "error", err)
			}
		}
		if update.PackageNumber != "" {
			if err := a.store.AddPackageMapping(userKey, update.PackageNumber); err != nil {
				a.logger.Warn("failed to record package mapping", "user", userKey, "error", err)
			}
		}
	}

	return Result{Update: &update}
}

// lastEmailDate reads the staleness timestamp, preferring the in-memory
// shadow in dry-run mode.
func (a *Analyzer) lastEmailDate(userKey string) (*time.Time, error) {
	if a.dryRun {
		if t, ok := a.shadowDates[userKey]; ok {
			return &t, nil
		}
	}
	return a.store.GetLastEmailDate(userKey)
}

func (a *Analyzer) updateLastEmailDate(userKey string, date time.Time) error {
	if a.dryRun {
		a.shadowDates[userKey] = date
		return nil
	}
	return a.store.UpdateLastEmailDate(userKey, date)
}

// finalize guarantees the invariants extraction may have missed: carrier
// always populated, email identity always carried.
func (a *Analyzer) finalize(u *carriers.ShipmentUpdate, c carriers.Carrier, msg carriers.Message) {
	if u.Carrier == "" || u.Carrier == carriers.CarrierUnknown {
		u.Carrier = c
	}
	if u.Status == "" {
		u.Status = carriers.StatusUnknown
	}
	if u.Email == "" {
		u.Email = msg.Recipient
	}
	if u.EmailSource == "" {
		u.EmailSource = msg.Source
	}
	if u.EmailDate.IsZero() {
		u.EmailDate = msg.Date
	}
}
