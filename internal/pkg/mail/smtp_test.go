package mail

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
)

type received struct {
	from string
	to   []string
	data string
	tls  bool
}

type testBackend struct {
	mu       sync.Mutex
	messages []received
	sessions int
	// reject maps a recipient to the reply returned from RCPT.
	reject map[string]*smtp.SMTPError
}

func (b *testBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	b.mu.Lock()
	b.sessions++
	b.mu.Unlock()
	return &testSession{backend: b, conn: c}, nil
}

func (b *testBackend) snapshot() ([]received, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]received(nil), b.messages...), b.sessions
}

type testSession struct {
	backend *testBackend
	conn    *smtp.Conn
	cur     received
}

func (s *testSession) Mail(from string, _ *smtp.MailOptions) error {
	_, isTLS := s.conn.TLSConnectionState()
	s.cur = received{from: from, tls: isTLS}
	return nil
}

func (s *testSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.backend.mu.Lock()
	rej := s.backend.reject[to]
	s.backend.mu.Unlock()
	if rej != nil {
		return rej
	}
	s.cur.to = append(s.cur.to, to)
	return nil
}

func (s *testSession) Data(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.cur.data = string(b)

	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, s.cur)
	s.backend.mu.Unlock()
	return nil
}

func (s *testSession) Reset()        { s.cur = received{} }
func (s *testSession) Logout() error { return nil }

func startServer(t *testing.T, backend *testBackend) (string, int) {
	t.Helper()
	return startServerTLS(t, backend, nil)
}

// startServerTLS advertises STARTTLS when tlsCfg is set.
func startServerTLS(t *testing.T, backend *testBackend, tlsCfg *tls.Config) (string, int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := smtp.NewServer(backend)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second
	srv.TLSConfig = tlsCfg

	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func newTestSMTP(t *testing.T, host string, port int, mutate func(*SMTPConfig)) *SMTP {
	t.Helper()

	cfg := SMTPConfig{
		Host:           host,
		Port:           port,
		From:           "office@example.com",
		FromName:       "Dept. Office",
		Security:       SecurityNone,
		AllowAnonymous: true,
		RateLimit:      -1,
		RetryBaseDelay: time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := NewSMTP(cfg)
	if err != nil {
		t.Fatalf("NewSMTP error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewSMTP_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  SMTPConfig
		want error
	}{
		{name: "missing host", cfg: SMTPConfig{Port: 25}, want: ErrSMTPHostPortRequired},
		{name: "missing port", cfg: SMTPConfig{Host: "smtp.example.com"}, want: ErrSMTPHostPortRequired},
		{name: "missing credentials", cfg: SMTPConfig{Host: "smtp.example.com", Port: 587}, want: ErrSMTPCredentialsRequired},
		{name: "unknown security", cfg: SMTPConfig{Host: "smtp.example.com", Port: 587, AllowAnonymous: true, Security: "ssl3"}, want: ErrSMTPUnknownSecurity},
		{name: "ok", cfg: SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSMTP(tt.cfg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("NewSMTP error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSMTP_Send(t *testing.T) {
	// Arrange
	backend := &testBackend{}
	host, port := startServer(t, backend)
	s := newTestSMTP(t, host, port, nil)

	// Act
	err := s.Send(context.Background(), Message{
		To:       []string{"ada@example.com"},
		Subject:  "Hello",
		HTMLBody: "<p>Dear Professor Lovelace,</p>",
	})

	// Assert
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}

	msgs, _ := backend.snapshot()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 delivered message, got %d", len(msgs))
	}
	if msgs[0].from != "office@example.com" {
		t.Fatalf("envelope from = %q", msgs[0].from)
	}
	if len(msgs[0].to) != 1 || msgs[0].to[0] != "ada@example.com" {
		t.Fatalf("envelope to = %v", msgs[0].to)
	}
	if !strings.Contains(msgs[0].data, "Subject: Hello") {
		t.Fatalf("missing subject in data: %s", msgs[0].data)
	}
	if got := s.Stats(); got.Sent != 1 || got.Failed != 0 {
		t.Fatalf("unexpected stats %+v", got)
	}
}

func TestSMTP_Send_PermanentFailureIsNotRetried(t *testing.T) {
	// Arrange
	backend := &testBackend{reject: map[string]*smtp.SMTPError{
		"bounce@example.com": {Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "No such user"},
	}}
	host, port := startServer(t, backend)
	s := newTestSMTP(t, host, port, nil)

	// Act
	errBounce := s.Send(context.Background(), Message{To: []string{"bounce@example.com"}, Subject: "x", HTMLBody: "x"})
	errOK := s.Send(context.Background(), Message{To: []string{"ada@example.com"}, Subject: "x", HTMLBody: "x"})

	// Assert
	var smtpErr *smtp.SMTPError
	if !errors.As(errBounce, &smtpErr) || smtpErr.Code != 550 {
		t.Fatalf("expected 550 reply, got %v", errBounce)
	}
	if errOK != nil {
		t.Fatalf("expected the next message to succeed, got %v", errOK)
	}

	stats := s.Stats()
	if stats.Retried != 0 {
		t.Fatalf("permanent failure was retried %d times", stats.Retried)
	}
	if stats.Dialed != 1 {
		t.Fatalf("expected the session to survive a rejected recipient, dialed %d", stats.Dialed)
	}
	if stats.Sent != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestSMTP_Send_TemporaryFailureIsRetried(t *testing.T) {
	// Arrange
	backend := &testBackend{reject: map[string]*smtp.SMTPError{
		"busy@example.com": {Code: 451, EnhancedCode: smtp.EnhancedCode{4, 3, 0}, Message: "Try later"},
	}}
	host, port := startServer(t, backend)
	s := newTestSMTP(t, host, port, func(c *SMTPConfig) { c.RetryAttempts = 3 })

	// Act
	err := s.Send(context.Background(), Message{To: []string{"busy@example.com"}, Subject: "x", HTMLBody: "x"})

	// Assert
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := s.Stats().Retried; got != 2 {
		t.Fatalf("expected 2 retries, got %d", got)
	}
}

func TestSMTP_ConnectionReuse(t *testing.T) {
	// Arrange
	backend := &testBackend{}
	host, port := startServer(t, backend)
	s := newTestSMTP(t, host, port, func(c *SMTPConfig) {
		c.MaxConnections = 1
		c.MaxMessagesPerConnection = 2
	})

	// Act
	for i := 0; i < 5; i++ {
		if err := s.Send(context.Background(), Message{To: []string{"ada@example.com"}, Subject: "x", HTMLBody: "x"}); err != nil {
			t.Fatalf("Send #%d error: %v", i, err)
		}
	}

	// Assert
	msgs, _ := backend.snapshot()
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	if got := s.Stats().Dialed; got != 3 {
		t.Fatalf("expected 3 connections for 5 messages at 2 per connection, got %d", got)
	}
}

func TestSMTP_ConcurrentSendRespectsPoolSize(t *testing.T) {
	// Arrange
	backend := &testBackend{}
	host, port := startServer(t, backend)
	s := newTestSMTP(t, host, port, func(c *SMTPConfig) { c.MaxConnections = 2 })

	// Act
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Send(context.Background(), Message{To: []string{"ada@example.com"}, Subject: "x", HTMLBody: "x"})
		}()
	}
	wg.Wait()
	close(errs)

	// Assert
	for err := range errs {
		if err != nil {
			t.Fatalf("Send error: %v", err)
		}
	}
	if got := s.Stats().Dialed; got > 2 {
		t.Fatalf("expected at most 2 connections, got %d", got)
	}
}

func TestSMTP_SendAfterClose(t *testing.T) {
	s := newTestSMTP(t, "127.0.0.1", 2525, nil)

	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := s.Send(context.Background(), Message{To: []string{"a@b.c"}}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSMTP_SendNoRecipients(t *testing.T) {
	s := newTestSMTP(t, "127.0.0.1", 2525, nil)

	if err := s.Send(context.Background(), Message{To: []string{" "}}); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "4xx", err: &smtp.SMTPError{Code: 421}, want: true},
		{name: "5xx", err: &smtp.SMTPError{Code: 554}, want: false},
		{name: "eof", err: io.EOF, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "other", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransient(tt.err); got != tt.want {
				t.Fatalf("isTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func selfSignedTLS(t *testing.T) *tls.Config {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		MinVersion:   tls.VersionTLS12,
	}
}

func TestSMTP_Send_StartTLS(t *testing.T) {
	// Arrange
	backend := &testBackend{}
	host, port := startServerTLS(t, backend, selfSignedTLS(t))
	s := newTestSMTP(t, host, port, func(c *SMTPConfig) {
		c.Security = SecurityStartTLS
		c.InsecureSkipVerify = true
	})

	// Act
	err := s.Send(context.Background(), Message{To: []string{"ada@example.com"}, Subject: "Hi", HTMLBody: "<p>x</p>"})

	// Assert
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	msgs, _ := backend.snapshot()
	if len(msgs) != 1 || !msgs[0].tls {
		t.Fatalf("expected one message over TLS, got %+v", msgs)
	}
}

func TestSMTP_Send_StartTLSUnsupported(t *testing.T) {
	backend := &testBackend{}
	host, port := startServer(t, backend)
	s := newTestSMTP(t, host, port, func(c *SMTPConfig) {
		c.Security = SecurityStartTLS
		c.RetryAttempts = 1
	})

	err := s.Send(context.Background(), Message{To: []string{"ada@example.com"}, Subject: "Hi", HTMLBody: "<p>x</p>"})

	if err == nil || !strings.Contains(err.Error(), "starttls") {
		t.Fatalf("expected starttls error, got %v", err)
	}
	if msgs, _ := backend.snapshot(); len(msgs) != 0 {
		t.Fatalf("nothing may be sent in clear text, got %d messages", len(msgs))
	}
}

func TestSMTP_ReleaseAfterCloseQuitsConnection(t *testing.T) {
	// Arrange
	backend := &testBackend{}
	host, port := startServer(t, backend)
	s := newTestSMTP(t, host, port, nil)

	cn, err := s.acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire error: %v", err)
	}

	// Act
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	s.release(cn)

	// Assert
	if len(s.idle) != 0 {
		t.Fatalf("connection parked after Close, idle = %d", len(s.idle))
	}
	if len(s.slots) != 0 {
		t.Fatalf("slot not returned, slots = %d", len(s.slots))
	}
}
