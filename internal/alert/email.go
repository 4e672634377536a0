package alert

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/mailsight/mailsight/internal/config"
	"github.com/mailsight/mailsight/pkg/models"
)

// EmailNotifier delivers fired alerts over SMTP to the rule's email
// recipients.
type EmailNotifier struct {
	cfg    *config.Config
	logger *slog.Logger

	// send is swapped in tests
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier creates the SMTP channel
func NewEmailNotifier(cfg *config.Config, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger.With("channel", "email"),
		send:   smtp.SendMail,
	}
}

func (n *EmailNotifier) Name() string { return "email" }

// Send mails the alert to every recipient on the rule in one message
func (n *EmailNotifier) Send(ctx context.Context, rule *models.AlertRule, img *models.ImageRecord, keyword string) error {
	recipients := rule.EmailRecipients()
	if len(recipients) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := fmt.Sprintf("Alert: %s", rule.Title)
	body := alertText(rule, img, keyword)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", n.cfg.AlertSender)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", n.cfg.SMTPHost, n.cfg.SMTPPort)
	var auth smtp.Auth
	if n.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", n.cfg.SMTPUser, n.cfg.SMTPPassword, n.cfg.SMTPHost)
	}

	if err := n.send(addr, auth, n.cfg.AlertSender, recipients, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send alert mail: %w", err)
	}
	n.logger.Info("alert mail sent", "rule", rule.ID, "recipients", len(recipients))
	return nil
}

// alertText is the shared alert body used by every channel
func alertText(rule *models.AlertRule, img *models.ImageRecord, keyword string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Alert ID: %d\n", rule.ID)
	fmt.Fprintf(&b, "%s\n", rule.Description)
	fmt.Fprintf(&b, "Image: %s (record %d)\n", img.Name, img.ID)
	fmt.Fprintf(&b, "Subject: %s\n", img.Subject)
	fmt.Fprintf(&b, "Sent: %s\n", img.EmailDate.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Keyword: %s\n", keyword)
	return b.String()
}
