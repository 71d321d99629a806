// Copyright 2025 Parcelmail
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"parcelmail/internal/carriers"
	"parcelmail/internal/config"
	"parcelmail/internal/dispatch"
	"parcelmail/internal/email"
	"parcelmail/internal/mapping"
	"parcelmail/internal/notify"
	"parcelmail/internal/parser"
	"parcelmail/internal/server"
	"parcelmail/internal/sheets"
	"parcelmail/internal/workers"
)

const Version = "1.0.0"

var (
	configFile string
	dryRun     bool
	runOnce    bool
)

var rootCmd = &cobra.Command{
	Use:   "parcelmail",
	Short: "Mailbox-to-spreadsheet shipment tracker",
	Long: `Parcelmail polls IMAP mailboxes for carrier notification emails
(GLS, InPost, DHL, AliExpress, DPD, Poczta Polska), extracts shipment
data from them and projects each shipment's lifecycle onto a Google
spreadsheet: one row per active shipment, archived on delivery.

Configuration comes from parcelmail.yaml, a .env file or
PARCELMAIL_-prefixed environment variables; run "parcelmail init" for a
starter config.`,
	Version: Version,
	RunE:    runService,
}

// Execute runs the root command. Called once from main.
func Execute() {
	fang.Execute(context.Background(), rootCmd)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default parcelmail.yaml)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "classify and extract but do not touch the sheet or mappings")
	rootCmd.Flags().BoolVar(&runOnce, "once", false, "run a single cycle and exit")
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if dryRun {
		cfg.Processing.DryRun = true
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting parcelmail",
		"version", Version,
		"mailboxes", len(cfg.Mailboxes),
		"dry_run", cfg.Processing.DryRun,
		"llm_enabled", cfg.LLM.Enabled)
	logger.Debug("configuration", "config", cfg.ToJSON())

	store, err := mapping.Open(cfg.Processing.StateDBPath)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	defer store.Close()

	// Ledger entries older than twice the lookback can never be fetched
	// again; drop them so the table does not grow forever.
	if err := store.CleanupLedger(time.Now().Add(-2 * cfg.Processing.Lookback)); err != nil {
		logger.Warn("ledger cleanup failed", "error", err)
	}

	env := carriers.NewEnv(buildAIExtractor(cfg.LLM, logger), logger)
	var analyzer *dispatch.Analyzer
	if cfg.Processing.DryRun {
		analyzer = dispatch.NewDryRun(store, env, logger)
	} else {
		analyzer = dispatch.New(store, env, logger)
	}

	clients := make([]email.Client, 0, len(cfg.Mailboxes))
	for _, m := range cfg.Mailboxes {
		clients = append(clients, email.NewIMAPClient(email.IMAPConfig{
			Server:   m.Server,
			Port:     m.Port,
			Username: m.Username,
			Password: m.Password,
		}, logger))
	}

	ctx, stop := server.NotifyShutdown(cmd.Context())
	defer stop()

	var projector workers.Projector
	if !cfg.Processing.DryRun {
		rowStore, err := sheets.NewGoogleStore(ctx, sheets.GoogleConfig{
			CredentialsFile: cfg.Sheets.CredentialsFile,
			SpreadsheetID:   cfg.Sheets.SpreadsheetID,
			LiveSheet:       cfg.Sheets.LiveSheet,
			ArchiveSheet:    cfg.Sheets.ArchiveSheet,
			AccountSheet:    cfg.Sheets.AccountSheet,
		})
		if err != nil {
			return fmt.Errorf("failed to open spreadsheet: %w", err)
		}
		projector = sheets.NewProjector(rowStore, rowStore, store, logger)
	}

	notifier := buildNotifier(cfg.Telegram, logger)

	poller := workers.NewPoller(clients, analyzer, projector, store, notifier, logger, workers.Config{
		PollInterval: cfg.Processing.PollInterval,
		Lookback:     cfg.Processing.Lookback,
		DryRun:       cfg.Processing.DryRun,
	})

	health := server.NewHealth(cfg.Server.Addr, poller, logger)
	health.Start()
	defer health.Shutdown(5 * time.Second)

	if runOnce {
		poller.RunCycle(ctx)
		logger.Info("single cycle finished", "stats", poller.Snapshot())
		return nil
	}

	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		notifier.Send(fmt.Sprintf("parcelmail stopped: %v", err))
		return err
	}
	logger.Info("shut down cleanly")
	return nil
}

// newLogger builds the slog text logger, with lumberjack rotation when a
// log file is configured.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func buildAIExtractor(cfg config.LLMConfig, logger *slog.Logger) carriers.AIExtractor {
	if !cfg.Enabled {
		return parser.NewNoOpExtractor()
	}
	client := parser.NewOpenAIClient(parser.OpenAIConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
	limiter := parser.NewRateLimiter(cfg.MinInterval, cfg.DailyQuota)
	return parser.NewAIFieldExtractor(client, limiter, logger)
}

func buildNotifier(cfg config.TelegramConfig, logger *slog.Logger) notify.Notifier {
	if !cfg.Enabled() {
		return notify.Noop{}
	}
	tg, err := notify.NewTelegram(cfg.Token, cfg.ChatID, logger)
	if err != nil {
		logger.Warn("telegram disabled, bot init failed", "error", err)
		return notify.Noop{}
	}
	return tg
}
