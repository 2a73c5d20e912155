package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/sethvargo/go-retry"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

var (
	// ErrSMTPHostPortRequired is returned when Host/Port are missing.
	ErrSMTPHostPortRequired = errors.New("mail: smtp host and port are required")
	// ErrSMTPCredentialsRequired is returned when username/password are missing and
	// anonymous submission is not allowed.
	ErrSMTPCredentialsRequired = errors.New("mail: smtp credentials are required")
	// ErrSMTPUnknownSecurity is returned for an unsupported Security value.
	ErrSMTPUnknownSecurity = errors.New("mail: unknown smtp security mode")
)

// Security modes for SMTPConfig.Security.
const (
	SecurityStartTLS = "starttls"
	SecurityTLS      = "tls"
	SecurityNone     = "none"
)

// Defaults applied by NewSMTP to zero-valued settings.
const (
	DefaultMaxConnections           = 5
	DefaultMaxMessagesPerConnection = 100
	DefaultRateLimit                = 30
	DefaultRetryAttempts            = 3
	DefaultRetryBaseDelay           = 500 * time.Millisecond
	DefaultDialTimeout              = 15 * time.Second
	DefaultCommandTimeout           = time.Minute
)

// SMTPConfig configures the SMTP implementation.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// From is the sender address when Message.From is empty; defaults to Username.
	From     string
	FromName string
	// Security is one of starttls (default), tls or none.
	Security       string
	AllowAnonymous bool
	// AuthMechanism is PLAIN (default) or LOGIN.
	AuthMechanism string
	// LocalName is sent in EHLO. STARTTLS sessions greet as localhost.
	LocalName          string
	InsecureSkipVerify bool

	MaxConnections           int
	MaxMessagesPerConnection int
	// RateLimit is messages per second across all connections; negative disables pacing.
	RateLimit      float64
	RateBurst      int
	RetryAttempts  int
	RetryBaseDelay time.Duration
	DialTimeout    time.Duration
	CommandTimeout time.Duration
}

func (c *SMTPConfig) withDefaults() {
	if c.Security == "" {
		c.Security = SecurityStartTLS
	}
	if c.From == "" {
		c.From = c.Username
	}
	if c.LocalName == "" {
		c.LocalName = "localhost"
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.MaxMessagesPerConnection <= 0 {
		c.MaxMessagesPerConnection = DefaultMaxMessagesPerConnection
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
}

// SMTPStats counts transport activity since construction.
type SMTPStats struct {
	Dialed  int64
	Sent    int64
	Failed  int64
	Retried int64
}

// SMTP is a Mail implementation backed by github.com/emersion/go-smtp.
//
// At most MaxConnections sessions are open at once; each is retired after
// MaxMessagesPerConnection messages. Send is safe for concurrent use.
type SMTP struct {
	cfg     SMTPConfig
	addr    string
	tlsCfg  *tls.Config
	limiter *rate.Limiter
	now     func() time.Time

	slots chan struct{}
	idle  chan *smtpConn

	// poolMu orders parking a connection in idle against Close draining it.
	poolMu  sync.Mutex
	closed  atomic.Bool
	dialed  atomic.Int64
	sent    atomic.Int64
	failed  atomic.Int64
	retried atomic.Int64
}

type smtpConn struct {
	client *smtp.Client
	sent   int
}

// NewSMTP validates cfg and returns a transport. No connection is opened until
// the first Send.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if strings.TrimSpace(cfg.Host) == "" || cfg.Port <= 0 {
		return nil, ErrSMTPHostPortRequired
	}
	if !cfg.AllowAnonymous && (cfg.Username == "" || cfg.Password == "") {
		return nil, ErrSMTPCredentialsRequired
	}

	cfg.withDefaults()
	switch cfg.Security {
	case SecurityStartTLS, SecurityTLS, SecurityNone:
	default:
		return nil, fmt.Errorf("%w: %q", ErrSMTPUnknownSecurity, cfg.Security)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &SMTP{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		tlsCfg: &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for test relays
			MinVersion:         tls.VersionTLS12,
		},
		limiter: rate.NewLimiter(limit, cfg.RateBurst),
		now:     time.Now,
		slots:   make(chan struct{}, cfg.MaxConnections),
		idle:    make(chan *smtpConn, cfg.MaxConnections),
	}, nil
}

// Send renders msg and submits it, waiting for a rate-limit token and a pooled
// connection. Transient failures (4xx replies, dropped connections) are retried
// with exponential backoff; permanent rejections are returned immediately.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if s.closed.Load() {
		return ErrClosed
	}

	rcpts := msg.recipients()
	if len(rcpts) == 0 {
		return ErrNoRecipients
	}

	from := Sender{Address: s.cfg.From, Name: s.cfg.FromName}
	if msg.From != "" {
		from = Sender{Address: msg.From, Name: msg.FromName}
	}
	if from.Address == "" {
		return ErrNoSender
	}

	raw, err := Render(msg, from, s.now())
	if err != nil {
		return err
	}

	backoff := retry.NewExponential(s.cfg.RetryBaseDelay)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithCappedDuration(10*s.cfg.RetryBaseDelay, backoff)
	backoff = retry.WithMaxRetries(uint64(s.cfg.RetryAttempts-1), backoff)

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if attempt++; attempt > 1 {
			s.retried.Inc()
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		err := s.deliver(ctx, from.Address, rcpts, raw)
		if err != nil && isTransient(err) {
			slog.WarnContext(ctx, "transient smtp failure", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		s.failed.Inc()
		return err
	}

	s.sent.Inc()
	return nil
}

func (s *SMTP) deliver(ctx context.Context, from string, to []string, raw []byte) error {
	cn, err := s.acquire(ctx)
	if err != nil {
		return err
	}

	if err := cn.client.SendMail(from, to, bytes.NewReader(raw)); err != nil {
		var smtpErr *smtp.SMTPError
		if errors.As(err, &smtpErr) && cn.client.Reset() == nil {
			s.release(cn)
		} else {
			s.discard(cn)
		}
		return err
	}

	cn.sent++
	s.release(cn)
	return nil
}

func (s *SMTP) acquire(ctx context.Context) (*smtpConn, error) {
	select {
	case cn := <-s.idle:
		return cn, nil
	default:
	}

	select {
	case cn := <-s.idle:
		return cn, nil
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	client, err := s.dial(ctx)
	if err != nil {
		<-s.slots
		return nil, err
	}
	s.dialed.Inc()

	return &smtpConn{client: client}, nil
}

func (s *SMTP) release(cn *smtpConn) {
	s.poolMu.Lock()
	if !s.closed.Load() && cn.sent < s.cfg.MaxMessagesPerConnection {
		// never blocks: idle holds at most one entry per slot
		s.idle <- cn
		s.poolMu.Unlock()
		return
	}
	s.poolMu.Unlock()

	_ = cn.client.Quit()
	<-s.slots
}

func (s *SMTP) discard(cn *smtpConn) {
	_ = cn.client.Close()
	<-s.slots
}

func (s *SMTP) dial(ctx context.Context) (*smtp.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	dialer := &net.Dialer{}
	var (
		conn net.Conn
		err  error
	)
	if s.cfg.Security == SecurityTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: s.tlsCfg}).DialContext(ctx, "tcp", s.addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", s.addr)
	}
	if err != nil {
		return nil, fmt.Errorf("mail: dial %s: %w", s.addr, err)
	}

	var client *smtp.Client
	if s.cfg.Security == SecurityStartTLS {
		// NewClientStartTLS greets the server and upgrades before returning.
		client, err = smtp.NewClientStartTLS(conn, s.tlsCfg)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("mail: starttls: %w", err)
		}
	} else {
		client = smtp.NewClient(conn)
	}
	client.CommandTimeout = s.cfg.CommandTimeout
	client.SubmissionTimeout = s.cfg.CommandTimeout

	if err := s.handshake(client); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

func (s *SMTP) handshake(client *smtp.Client) error {
	if s.cfg.Security != SecurityStartTLS {
		if err := client.Hello(s.cfg.LocalName); err != nil {
			return fmt.Errorf("mail: ehlo: %w", err)
		}
	}

	if s.cfg.Username == "" {
		return nil
	}

	var auth sasl.Client
	if strings.EqualFold(s.cfg.AuthMechanism, sasl.Login) {
		auth = sasl.NewLoginClient(s.cfg.Username, s.cfg.Password)
	} else {
		auth = sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
	}

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("mail: auth: %w", err)
	}

	return nil
}

// Stats returns a snapshot of the transport counters.
func (s *SMTP) Stats() SMTPStats {
	return SMTPStats{
		Dialed:  s.dialed.Load(),
		Sent:    s.sent.Load(),
		Failed:  s.failed.Load(),
		Retried: s.retried.Load(),
	}
}

// Close quits idle connections. Connections in use are closed when their
// current Send returns.
func (s *SMTP) Close() error {
	s.poolMu.Lock()
	if s.closed.Swap(true) {
		s.poolMu.Unlock()
		return nil
	}

	var parked []*smtpConn
	for drained := false; !drained; {
		select {
		case cn := <-s.idle:
			parked = append(parked, cn)
		default:
			drained = true
		}
	}
	s.poolMu.Unlock()

	var errs []error
	for _, cn := range parked {
		if err := cn.client.Quit(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		<-s.slots
	}
	return errors.Join(errs...)
}

// isTransient reports whether err is worth another attempt: 4xx replies and
// connection-level failures. Permanent 5xx replies and context errors are not.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return smtpErr.Temporary()
	}

	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}
