package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/jaytaylor/html2text"
)

// IMAPConfig describes one polled mailbox.
type IMAPConfig struct {
	Server   string
	Port     int
	Username string
	Password string
}

// IMAPClient polls a single account over IMAP. Connections are opened per
// fetch: mailboxes are polled on a multi-minute interval and carriers'
// servers drop idle sessions anyway.
type IMAPClient struct {
	cfg    IMAPConfig
	logger *slog.Logger
}

func NewIMAPClient(cfg IMAPConfig, logger *slog.Logger) *IMAPClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	return &IMAPClient{cfg: cfg, logger: logger}
}

func (c *IMAPClient) Mailbox() string { return c.cfg.Username }

func (c *IMAPClient) Close() error { return nil }

func (c *IMAPClient) connect() (*client.Client, error) {
	address := fmt.Sprintf("%s:%d", c.cfg.Server, c.cfg.Port)
	tlsConfig := &tls.Config{ServerName: c.cfg.Server}

	conn, err := client.DialTLS(address, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	if err := conn.Login(c.cfg.Username, c.cfg.Password); err != nil {
		_ = conn.Logout()
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	if _, err := conn.Select("INBOX", false); err != nil {
		_ = conn.Logout()
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}
	return conn, nil
}

// FetchUnseenSince searches INBOX for unseen messages newer than the
// cutoff and returns them with decoded text bodies. Messages whose MIME
// structure cannot be parsed are skipped, not fatal.
func (c *IMAPClient) FetchUnseenSince(ctx context.Context, since time.Time) ([]RawMessage, error) {
	conn, err := c.connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Logout() }()

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = since

	// Search yields sequence numbers; the stable UIDs come back with the
	// fetch below.
	seqNums, err := conn.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(seqNums))
	if err := conn.Fetch(seqset, items, messages); err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	var results []RawMessage
	for msg := range messages {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		raw, ok := c.decode(msg, section)
		if !ok {
			continue
		}
		results = append(results, raw)
	}
	return results, nil
}

func (c *IMAPClient) decode(msg *imap.Message, section *imap.BodySectionName) (RawMessage, bool) {
	body := msg.GetBody(section)
	if body == nil {
		c.logger.Warn("message without body section", "mailbox", c.cfg.Username)
		return RawMessage{}, false
	}

	entity, err := message.Read(body)
	if err != nil && !message.IsUnknownCharset(err) {
		c.logger.Warn("failed to parse MIME message", "mailbox", c.cfg.Username, "error", err)
		return RawMessage{}, false
	}

	text, html := extractBodies(entity)
	if text == "" && html != "" {
		if converted, err := html2text.FromString(html, html2text.Options{TextOnly: true}); err == nil {
			text = converted
		}
	}

	raw := RawMessage{
		Mailbox:   c.cfg.Username,
		UID:       msg.Uid,
		Recipient: c.cfg.Username,
		Body:      text,
	}
	if env := msg.Envelope; env != nil {
		raw.MessageID = env.MessageId
		raw.Subject = env.Subject
		raw.Date = env.Date
		if len(env.From) > 0 {
			raw.From = env.From[0].Address()
		}
		if len(env.To) > 0 {
			raw.Recipient = env.To[0].Address()
		}
	}
	return raw, true
}

// extractBodies walks the MIME tree and pulls out the first text/plain
// and text/html parts.
func extractBodies(entity *message.Entity) (text, html string) {
	mediaType, _, _ := entity.Header.ContentType()

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := entity.MultipartReader()
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				break
			}

			partType, _, _ := part.Header.ContentType()
			body, _ := io.ReadAll(part.Body)

			switch {
			case partType == "text/plain" && text == "":
				text = string(body)
			case partType == "text/html" && html == "":
				html = string(body)
			case strings.HasPrefix(partType, "multipart/"):
				// Nested alternative inside mixed; recurse one level.
				t, h := extractBodies(part)
				if text == "" {
					text = t
				}
				if html == "" {
					html = h
				}
			}
		}
		return text, html
	}

	body, _ := io.ReadAll(entity.Body)
	switch mediaType {
	case "text/html":
		html = string(body)
	default:
		text = string(body)
	}
	return text, html
}

// MarkSeen flags the given UIDs as seen. This runs on a fresh
// connection, so the UID variant of STORE is the only correct one:
// sequence numbers from the earlier fetch mean nothing here.
func (c *IMAPClient) MarkSeen(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}

	conn, err := c.connect()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Logout() }()

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := conn.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark messages seen: %w", err)
	}
	return nil
}
