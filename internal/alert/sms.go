package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mailsight/mailsight/pkg/models"
)

// SMSNotifier posts fired alerts to an HTTP text-message gateway, one
// request per recipient.
type SMSNotifier struct {
	gatewayURL string
	client     *http.Client
	logger     *slog.Logger
}

// NewSMSNotifier creates the SMS channel
func NewSMSNotifier(gatewayURL string, client *http.Client, logger *slog.Logger) *SMSNotifier {
	return &SMSNotifier{
		gatewayURL: gatewayURL,
		client:     client,
		logger:     logger.With("channel", "sms"),
	}
}

func (n *SMSNotifier) Name() string { return "sms" }

type smsRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// Send texts the alert to every recipient on the rule. A failed
// recipient does not stop the rest; the errors are joined.
func (n *SMSNotifier) Send(ctx context.Context, rule *models.AlertRule, img *models.ImageRecord, keyword string) error {
	recipients := rule.SMSRecipients()
	if len(recipients) == 0 {
		return nil
	}

	message := alertText(rule, img, keyword)

	var errs []error
	for _, to := range recipients {
		if err := n.post(ctx, to, message); err != nil {
			errs = append(errs, fmt.Errorf("recipient %s: %w", to, err))
			continue
		}
		n.logger.Info("alert text sent", "rule", rule.ID, "to", to)
	}
	return errors.Join(errs...)
}

func (n *SMSNotifier) post(ctx context.Context, to, message string) error {
	payload, err := json.Marshal(smsRequest{To: to, Message: message})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
