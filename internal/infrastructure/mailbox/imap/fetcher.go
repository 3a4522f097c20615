package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
	"github.com/kirillkom/job-application-tracker/internal/infrastructure/mailbox/mime"
	"github.com/kirillkom/job-application-tracker/internal/infrastructure/resilience"
)

const defaultTLSPort = "993"

type Options struct {
	Mailbox string
	// Insecure dials without TLS; only for local test servers.
	Insecure           bool
	DialTimeout        time.Duration
	ResilienceExecutor *resilience.Executor
}

// Fetcher reads the most recent messages of one mailbox, read-only, so
// fetching never changes \Seen flags.
type Fetcher struct {
	addr     string
	user     string
	pass     string
	opts     Options
	executor *resilience.Executor
}

func New(server, user, pass string, opts Options) *Fetcher {
	if opts.Mailbox == "" {
		opts.Mailbox = "INBOX"
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 15 * time.Second
	}
	addr := server
	if _, _, err := net.SplitHostPort(server); err != nil {
		addr = net.JoinHostPort(server, defaultTLSPort)
	}
	return &Fetcher{
		addr:     addr,
		user:     user,
		pass:     pass,
		opts:     opts,
		executor: opts.ResilienceExecutor,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, limit int) ([]domain.RawMessage, error) {
	if limit <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "imap fetch", fmt.Errorf("limit must be positive, got %d", limit))
	}
	return resilience.Call(ctx, f.executor, "imap.fetch", func(callCtx context.Context) ([]domain.RawMessage, error) {
		return f.fetch(callCtx, uint32(limit))
	}, resilience.ClassifyTransportError)
}

func (f *Fetcher) fetch(ctx context.Context, limit uint32) ([]domain.RawMessage, error) {
	c, err := f.dial()
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", f.addr, err)
	}
	defer func() {
		if err := c.Logout(); err != nil {
			slog.Debug("imap_logout_failed", "error", err)
		}
	}()

	// go-imap v1 is not context-aware; closing the connection unblocks it.
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
	defer stop()

	if err := c.Login(f.user, f.pass); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}
	status, err := c.Select(f.opts.Mailbox, true)
	if err != nil {
		return nil, fmt.Errorf("imap select %s: %w", f.opts.Mailbox, err)
	}
	from, to, ok := recentRange(status.Messages, limit)
	if !ok {
		return []domain.RawMessage{}, nil
	}

	seqset := new(goimap.SeqSet)
	seqset.AddRange(from, to)
	section := &goimap.BodySectionName{Peek: true}
	items := []goimap.FetchItem{goimap.FetchUid, goimap.FetchInternalDate, section.FetchItem()}

	fetched := make(chan *goimap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, fetched)
	}()

	out := make([]domain.RawMessage, 0, to-from+1)
	for msg := range fetched {
		body := msg.GetBody(section)
		if body == nil {
			slog.Warn("imap_message_without_body", "seq", msg.SeqNum)
			continue
		}
		raw, err := mime.Parse(body, strconv.FormatUint(uint64(msg.Uid), 10), msg.InternalDate)
		if err != nil {
			slog.Warn("imap_message_skipped", "uid", msg.Uid, "error", err)
			continue
		}
		out = append(out, raw)
	}
	if err := <-done; err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Join(ctxErr, err)
		}
		return nil, fmt.Errorf("imap fetch: %w", err)
	}
	return out, nil
}

func (f *Fetcher) dial() (*client.Client, error) {
	dialer := &net.Dialer{Timeout: f.opts.DialTimeout}
	if f.opts.Insecure {
		return client.DialWithDialer(dialer, f.addr)
	}
	host, _, _ := net.SplitHostPort(f.addr)
	return client.DialWithDialerTLS(dialer, f.addr, &tls.Config{ServerName: host})
}

// recentRange returns the sequence range of the last limit messages.
func recentRange(total, limit uint32) (from, to uint32, ok bool) {
	if total == 0 || limit == 0 {
		return 0, 0, false
	}
	from = 1
	if total > limit {
		from = total - limit + 1
	}
	return from, total, true
}
