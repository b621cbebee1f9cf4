package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/studiosync/internal/model"
)

const (
	defaultIMAPPort  = "993"
	defaultSinceDays = 2
	defaultMaxFetch  = 20
	dialTimeout      = 30 * time.Second
)

// IMAPConfig configures the native IMAP bridge.
type IMAPConfig struct {
	// TLS selects implicit TLS; otherwise STARTTLS is negotiated.
	TLS bool

	// SinceDays limits fetches to recent mail. Zero uses two days.
	SinceDays int

	// MaxMessages caps one fetch to the newest N messages.
	MaxMessages int

	// Timeout bounds one request including connect and logout.
	Timeout time.Duration
}

// IMAPBridge talks to the mail server directly with go-imap instead of an
// external program.
type IMAPBridge struct {
	cfg IMAPConfig
}

// NewIMAPBridge creates a native IMAP bridge.
func NewIMAPBridge(cfg IMAPConfig) *IMAPBridge {
	if cfg.SinceDays <= 0 {
		cfg.SinceDays = defaultSinceDays
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = defaultMaxFetch
	}
	return &IMAPBridge{cfg: cfg}
}

// connect dials the server, authenticates, and returns the logged-in
// client. The connection deadline follows ctx so a stalled server cannot
// hang the caller.
func (b *IMAPBridge) connect(
	ctx context.Context, creds model.Credentials,
) (*imapclient.Client, error) {
	if creds.Host == "" {
		return nil, errors.New("IMAP host is not configured")
	}
	port := creds.Port
	if port == "" {
		port = defaultIMAPPort
	}
	addr := net.JoinHostPort(creds.Host, port)

	dialer := &net.Dialer{Timeout: dialTimeout}

	var (
		client *imapclient.Client
		conn   net.Conn
		err    error
	)
	if b.cfg.TLS {
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config:    &tls.Config{ServerName: creds.Host},
		}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
		}
		setDeadline(ctx, conn)
		client = imapclient.New(conn, nil)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
		}
		setDeadline(ctx, conn)
		client, err = imapclient.NewStartTLS(conn, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: creds.Host},
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("starting TLS with %s: %w", addr, err)
		}
	}

	if err := client.Login(creds.Username, creds.Secret).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("authentication failed for %s: %w",
			creds.Username, err)
	}

	return client, nil
}

func setDeadline(ctx context.Context, conn net.Conn) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
}

// withTimeout applies the bridge timeout to ctx.
func (b *IMAPBridge) withTimeout(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	if b.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, b.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// Fetch implements Fetcher. It selects the folder, searches recent
// messages, and returns them newest first. A folder the server reports as
// NONEXISTENT yields an empty list; any other refusal is a FetchError so
// the last good cache entry survives.
func (b *IMAPBridge) Fetch(
	ctx context.Context, creds model.Credentials, folder string,
) ([]model.Message, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	fail := func(detail string, err error) error {
		return &FetchError{Op: OpFetch, Folder: folder, Detail: detail, Err: err}
	}

	client, err := b.connect(ctx, creds)
	if err != nil {
		return nil, fail("connect", err)
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(folder, nil).Wait(); err != nil {
		if isNonExistent(err) {
			return []model.Message{}, nil
		}
		return nil, fail("select", err)
	}

	since := time.Now().AddDate(0, 0, -b.cfg.SinceDays)
	searchData, err := client.UIDSearch(&imap.SearchCriteria{
		Since: since,
	}, nil).Wait()
	if err != nil {
		return nil, fail("search", err)
	}

	uids := recentUIDs(searchData.AllUIDs(), b.cfg.MaxMessages)
	if len(uids) == 0 {
		return []model.Message{}, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	var msgs []model.Message
	for {
		data := fetchCmd.Next()
		if data == nil {
			break
		}

		buf, err := data.Collect()
		if err != nil {
			return nil, fail("collect", err)
		}

		msgs = append(msgs, messageFromBuffer(buf, bodySection))
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fail("fetch", err)
	}

	reverseMessages(msgs)

	return msgs, nil
}

// Move implements Mover.
func (b *IMAPBridge) Move(
	ctx context.Context, creds model.Credentials,
	id model.ExternalID, fromFolder, toFolder string,
) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	fail := func(detail string, err error) error {
		return &FetchError{Op: OpMove, Folder: fromFolder, Detail: detail, Err: err}
	}

	uid, err := model.UIDFromExternalID(id)
	if err != nil {
		return fail("bad id", err)
	}

	client, err := b.connect(ctx, creds)
	if err != nil {
		return fail("connect", err)
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(fromFolder, nil).Wait(); err != nil {
		return fail("select", err)
	}

	uidSet := imap.UIDSetNum(imap.UID(uid))
	if _, err := client.Move(uidSet, toFolder).Wait(); err != nil {
		return fail("move to "+toFolder, err)
	}

	return nil
}

// isNonExistent reports whether err is a tagged NO carrying the
// NONEXISTENT response code.
func isNonExistent(err error) bool {
	var imapErr *imap.Error
	return errors.As(err, &imapErr) &&
		imapErr.Type == imap.StatusResponseTypeNo &&
		imapErr.Code == imap.ResponseCodeNonExistent
}

// recentUIDs keeps the newest max UIDs of an ascending search result.
func recentUIDs(uids []imap.UID, max int) []imap.UID {
	if max > 0 && len(uids) > max {
		return uids[len(uids)-max:]
	}
	return uids
}

// reverseMessages turns the server's ascending UID order into newest
// first.
func reverseMessages(msgs []model.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

// messageFromBuffer converts a fetched message into its normalized form.
func messageFromBuffer(
	buf *imapclient.FetchMessageBuffer,
	section *imap.FetchItemBodySection,
) model.Message {
	return messageFromEnvelope(
		buf.UID, buf.Envelope, buf.FindBodySection(section),
	)
}

func messageFromEnvelope(
	uid imap.UID, env *imap.Envelope, raw []byte,
) model.Message {
	msg := model.Message{
		ExternalID: model.ExternalID(strconv.FormatUint(uint64(uid), 10)),
	}

	if env != nil {
		msg.Subject = env.Subject
		if !env.Date.IsZero() {
			msg.Date = env.Date.Format(time.RFC1123Z)
		}

		if len(env.From) > 0 {
			from := env.From[0]
			if from.Name != "" {
				msg.From = fmt.Sprintf("%s <%s>", from.Name, from.Addr())
			} else {
				msg.From = from.Addr()
			}
		}
	}

	if raw != nil {
		msg.Body, msg.Attachments = parseMIMEBody(raw)
	}

	return msg
}
