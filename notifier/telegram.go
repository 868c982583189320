package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"pricewatch/models"
)

// TelegramNotifier posts alerts through the Bot API sendMessage method.
type TelegramNotifier struct {
	endpoint string
	token    string
	chatID   string
	symbol   string
	client   *http.Client
	logger   *zap.Logger
}

// NewTelegramNotifier targets baseURL, normally https://api.telegram.org.
// chatID is either a numeric chat id or an @channel username.
func NewTelegramNotifier(baseURL, token, chatID, currencySymbol string, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		endpoint: strings.TrimRight(baseURL, "/") + "/bot%s/%s",
		token:    token,
		chatID:   chatID,
		symbol:   currencySymbol,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// contextClient binds the SDK's context-free requests to one Send call.
type contextClient struct {
	ctx    context.Context
	client *http.Client
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}

// bot is built per call: BotAPI holds its HTTP client in a plain field and
// the constructor would spend a getMe round trip.
func (n *TelegramNotifier) bot(ctx context.Context) *tgbotapi.BotAPI {
	bot := &tgbotapi.BotAPI{
		Token:  n.token,
		Buffer: 1,
		Client: contextClient{ctx: ctx, client: n.client},
	}
	bot.SetAPIEndpoint(n.endpoint)
	return bot
}

func (n *TelegramNotifier) message(text string) tgbotapi.MessageConfig {
	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(n.chatID, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(n.chatID, text)
	}
	msg.ParseMode = tgbotapi.ModeMarkdown
	return msg
}

func (n *TelegramNotifier) Send(ctx context.Context, alert models.Alert) error {
	msg := n.message(FormatTelegramMessage(n.symbol, alert))

	if _, err := n.bot(ctx).Request(msg); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			return fmt.Errorf("telegram error %d: %s", apiErr.Code, apiErr.Message)
		}
		// The token is part of the URL; keep it out of logs.
		return fmt.Errorf("telegram send failed: %s", strings.ReplaceAll(err.Error(), n.token, "***"))
	}

	n.logger.Info("telegram alert sent", zap.String("product", alert.Name))
	return nil
}

// FormatTelegramMessage builds the Markdown alert text.
func FormatTelegramMessage(symbol string, alert models.Alert) string {
	return fmt.Sprintf(
		"🎉 *PRICE DROPPED!*\n\n"+
			"*Product:* %s\n"+
			"*💰 Current price:* %s\n"+
			"*🎯 Desired price:* %s\n\n"+
			"🔗 [View product](%s)",
		escapeMarkdown(alert.Name),
		FormatMoney(symbol, alert.Price),
		FormatMoney(symbol, alert.DesiredPrice),
		alert.URL,
	)
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
