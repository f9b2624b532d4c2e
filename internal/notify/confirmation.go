package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/yakkyoku-ai/yakkyoku/internal/model"
)

// LogSender writes order confirmations to the log in place of real email and
// SMS delivery. Production deployments swap in a provider-backed sender.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a log-only confirmation sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// SendConfirmation implements ConfirmationSender.
func (s *LogSender) SendConfirmation(_ context.Context, customer model.Customer, orderID uuid.UUID, medicines []model.RequestedItem) error {
	var lines []string
	for _, m := range medicines {
		dosage := m.Dosage
		if dosage == "" {
			dosage = "N/A"
		}
		lines = append(lines, fmt.Sprintf("%s x%d (%s)", m.Name, m.Quantity, dosage))
	}

	s.logger.Info("order confirmation sent",
		"order_id", orderID,
		"customer_id", customer.ID,
		"email", customer.Email,
		"phone", customer.Phone,
		"items", strings.Join(lines, "; "))
	return nil
}
