package notifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"pricewatch/config"
	"pricewatch/models"
)

func testAlert() models.Alert {
	return models.Alert{
		Name:         "Fone_Bluetooth *Pro*",
		URL:          "https://produto.mercadolivre.com.br/MLB-123",
		Price:        decimal.RequireFromString("1234.5"),
		DesiredPrice: decimal.RequireFromString("1500"),
	}
}

func TestFormatMoney(t *testing.T) {
	cases := map[string]string{
		"0":         "R$ 0.00",
		"89.9":      "R$ 89.90",
		"999.999":   "R$ 1,000.00",
		"1234.56":   "R$ 1,234.56",
		"1234567.8": "R$ 1,234,567.80",
		"-1234.5":   "R$ -1,234.50",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatMoney("R$", decimal.RequireFromString(in)), in)
	}
	assert.Equal(t, "12.00", FormatMoney("", decimal.NewFromInt(12)))
}

func TestFormatTelegramMessage(t *testing.T) {
	msg := FormatTelegramMessage("R$", testAlert())

	assert.Contains(t, msg, "*PRICE DROPPED!*")
	assert.Contains(t, msg, `Fone\_Bluetooth \*Pro\*`)
	assert.Contains(t, msg, "R$ 1,234.50")
	assert.Contains(t, msg, "R$ 1,500.00")
	assert.Contains(t, msg, "(https://produto.mercadolivre.com.br/MLB-123)")
}

func TestTelegramNotifier_Send(t *testing.T) {
	var form url.Values
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier(srv.URL+"/", "123:abc", "42", "R$", zap.NewNop())
	require.NoError(t, n.Send(context.Background(), testAlert()))

	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "42", form.Get("chat_id"))
	assert.Equal(t, "Markdown", form.Get("parse_mode"))
	assert.Contains(t, form.Get("text"), "R$ 1,234.50")
}

func TestTelegramNotifier_ChannelUsername(t *testing.T) {
	var chatID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		chatID = r.PostForm.Get("chat_id")
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier(srv.URL, "123:abc", "@price_alerts", "R$", zap.NewNop())
	require.NoError(t, n.Send(context.Background(), testAlert()))
	assert.Equal(t, "@price_alerts", chatID)
}

func TestTelegramNotifier_HonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := NewTelegramNotifier(srv.URL, "secret-token", "42", "R$", zap.NewNop())
	err := n.Send(ctx, testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestTelegramNotifier_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier(srv.URL, "123:abc", "42", "R$", zap.NewNop())
	err := n.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramNotifier_HidesTokenOnTransportError(t *testing.T) {
	n := NewTelegramNotifier("http://127.0.0.1:1", "secret-token", "42", "R$", zap.NewNop())
	err := n.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}

type fakeSender struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func TestEmailNotifier_Send(t *testing.T) {
	sender := &fakeSender{}
	n := NewEmailNotifier(config.EmailConfig{From: "bot@example.com", To: "me@example.com"}, "R$", zap.NewNop())
	n.sender = sender

	require.NoError(t, n.Send(context.Background(), testAlert()))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"me@example.com"}, sender.sent[0].GetHeader("To"))
	assert.True(t, strings.HasPrefix(sender.sent[0].GetHeader("Subject")[0], "[pricewatch] Price drop"))
}

func TestEmailNotifier_Failure(t *testing.T) {
	n := NewEmailNotifier(config.EmailConfig{From: "bot@example.com", To: "me@example.com"}, "R$", zap.NewNop())
	n.sender = &fakeSender{err: errors.New("smtp down")}

	err := n.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
}

func TestEmailNotifier_BodyEscapesHTML(t *testing.T) {
	n := NewEmailNotifier(config.EmailConfig{}, "R$", zap.NewNop())
	a := testAlert()
	a.Name = `<script>alert(1)</script>`
	body := n.buildHTMLBody(a)
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "R$ 1,234.50")
}

type stubNotifier struct {
	err   error
	calls int
}

func (s *stubNotifier) Send(context.Context, models.Alert) error {
	s.calls++
	return s.err
}

func TestMultiNotifier(t *testing.T) {
	ok := &stubNotifier{}
	bad := &stubNotifier{err: errors.New("boom")}

	m := NewMultiNotifier(zap.NewNop(), bad, ok)
	require.NoError(t, m.Send(context.Background(), testAlert()), "one channel delivered")
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, bad.calls)

	allBad := NewMultiNotifier(zap.NewNop(), bad, &stubNotifier{err: errors.New("also boom")})
	err := allBad.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	require.Error(t, NewMultiNotifier(zap.NewNop()).Send(context.Background(), testAlert()))
}

func TestLogNotifier(t *testing.T) {
	require.NoError(t, NewLogNotifier(zap.NewNop(), "R$").Send(context.Background(), testAlert()))
}
