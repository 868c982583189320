package notifier

import (
	"context"
	"fmt"
	"html"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"pricewatch/config"
	"pricewatch/models"
)

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier delivers alerts over SMTP.
type EmailNotifier struct {
	cfg    config.EmailConfig
	symbol string
	sender mailSender
	logger *zap.Logger
}

func NewEmailNotifier(cfg config.EmailConfig, currencySymbol string, logger *zap.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		symbol: currencySymbol,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass),
		logger: logger,
	}
}

func (n *EmailNotifier) Send(ctx context.Context, alert models.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", n.cfg.To)
	m.SetHeader("Subject", fmt.Sprintf("[pricewatch] Price drop: %s", alert.Name))
	m.SetBody("text/html", n.buildHTMLBody(alert))

	if err := n.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("email alert sent", zap.String("to", n.cfg.To), zap.String("product", alert.Name))
	return nil
}

func (n *EmailNotifier) buildHTMLBody(alert models.Alert) string {
	const tpl = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 560px; margin: 0 auto; padding: 16px;">
    <h2>🎉 Price dropped!</h2>
    <p><strong>Product:</strong> %s</p>
    <p><strong>Current price:</strong> <span style="color:#16a34a; font-size: 20px;">%s</span></p>
    <p><strong>Desired price:</strong> %s</p>
    <p><a href="%s">View product</a></p>
  </div>
</body>
</html>`
	return fmt.Sprintf(tpl,
		html.EscapeString(alert.Name),
		html.EscapeString(FormatMoney(n.symbol, alert.Price)),
		html.EscapeString(FormatMoney(n.symbol, alert.DesiredPrice)),
		html.EscapeString(alert.URL),
	)
}
