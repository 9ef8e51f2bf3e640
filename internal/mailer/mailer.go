package mailer

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/finacct/balance-service/internal/config"
	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Sender handles sending operator alert emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// SendDiscrepancyAlert sends an alert when reconciliation finds a critical
// discrepancy between the computed and reported balances.
func (s *Sender) SendDiscrepancyAlert(accountID, accountName string, computed, external, difference decimal.Decimal) error {
	if s.cfg.AlertEmail == "" {
		return nil
	}

	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{s.cfg.AlertEmail}
	e.Subject = fmt.Sprintf("Critical balance discrepancy on account %s", accountID)

	body := fmt.Sprintf(
		"Reconciliation found a critical discrepancy on account %s (%s).\n\n"+
			"Computed balance: %s\n"+
			"Reported balance: %s\n"+
			"Difference:       %s\n"+
			"Checked at:       %s\n\n"+
			"The ledger has been marked critical; review the account's transaction feed.\n",
		accountID, accountName, computed.StringFixed(2), external.StringFixed(2),
		difference.StringFixed(2), time.Now().Format("2006-01-02 15:04:05"),
	)
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send discrepancy alert for account %s: %v", accountID, err)
		return fmt.Errorf("failed to send discrepancy alert: %w", err)
	}

	s.logger.Infof("Discrepancy alert sent for account %s", accountID)
	return nil
}
