package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

type successEnvelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type inbox struct {
	mu   sync.Mutex
	rcpt []string
}

func (b *inbox) NewSession(_ *smtp.Conn) (smtp.Session, error) { return &inboxSession{inbox: b}, nil }

func (b *inbox) recipients() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.rcpt...)
}

type inboxSession struct {
	inbox *inbox
	to    []string
}

func (s *inboxSession) Mail(string, *smtp.MailOptions) error { return nil }

func (s *inboxSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *inboxSession) Data(r io.Reader) error {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	s.inbox.mu.Lock()
	s.inbox.rcpt = append(s.inbox.rcpt, s.to...)
	s.inbox.mu.Unlock()
	return nil
}

func (s *inboxSession) Reset()        { s.to = nil }
func (s *inboxSession) Logout() error { return nil }

func startInbox(t *testing.T) (*inbox, int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen smtp: %v", err)
	}

	box := &inbox{}
	srv := smtp.NewServer(box)
	srv.Domain = "localhost"
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	return box, ln.Addr().(*net.TCPAddr).Port
}

// startApp boots the whole service against a local SMTP server with storage,
// messaging and redis disabled.
func startApp(t *testing.T, smtpPort int) string {
	t.Helper()

	cfgFile := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf(`
instrument:
  enabled: false
  log_level: error
mail:
  smtp:
    host: 127.0.0.1
    port: %d
    from: office@example.com
    from_name: Dept. Office
    security: none
    allow_anonymous: true
    rate_limit_per_second: -1
    retry_base_delay_ms: 1
mailmerge:
  banner_cid_domain: test.local
`, smtpPort)
	if err := os.WriteFile(cfgFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", cfgFile)

	application := New()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen http: %v", err)
	}
	application.Serve(ln)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		application.Stop(ctx)
	})

	return "http://" + ln.Addr().String()
}

func doJSON(t *testing.T, method, url string, payload any) (int, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = buf
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	return resp.StatusCode, respBody
}

func decodeSuccess(t *testing.T, body []byte, out any) successEnvelope {
	t.Helper()

	var env successEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode success envelope: %v", err)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode success data: %v", err)
		}
	}

	return env
}

func TestApp_SendBlastEndToEnd(t *testing.T) {
	// Arrange
	box, port := startInbox(t)
	baseURL := startApp(t, port)

	status, _ := doJSON(t, http.MethodGet, baseURL+"/health", nil)
	if status != http.StatusOK {
		t.Fatalf("health status = %d", status)
	}

	payload := map[string]any{
		"subject":                 "Collaboration",
		"message":                 "<p>Hello</p>",
		"recipients_file_content": "email,\"Last Name\"\nada@example.com,Lovelace\ngrace@example.com,\"Hopper, G.\"\n,Nobody",
	}

	// Act
	status, body := doJSON(t, http.MethodPost, baseURL+"/api/v1/mailmerge/blasts", payload)

	// Assert
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %s", status, body)
	}

	var data struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	env := decodeSuccess(t, body, &data)
	if !data.Success {
		t.Fatalf("expected success, got %+v", data)
	}
	want := "Your email blast has been successfully sent to 2 of 3 recipients. 0 failed, 1 skipped."
	if data.Message != want || env.Message != want {
		t.Fatalf("message = %q, envelope = %q", data.Message, env.Message)
	}

	got := strings.Join(box.recipients(), ",")
	if !strings.Contains(got, "ada@example.com") || !strings.Contains(got, "grace@example.com") || len(box.recipients()) != 2 {
		t.Fatalf("unexpected delivered recipients %q", got)
	}
}

func TestApp_ValidateUpload(t *testing.T) {
	_, port := startInbox(t)
	baseURL := startApp(t, port)

	status, body := doJSON(t, http.MethodPost, baseURL+"/api/v1/mailmerge/validations", map[string]string{
		"file_data": "email,LastName\nnot-an-email,Lovelace",
	})
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %s", status, body)
	}

	var data struct {
		IsValid      bool   `json:"is_valid"`
		ErrorMessage string `json:"error_message"`
	}
	decodeSuccess(t, body, &data)
	if data.IsValid || data.ErrorMessage != "Invalid email format on row 1: 'not-an-email'" {
		t.Fatalf("unexpected validation %+v", data)
	}
}
