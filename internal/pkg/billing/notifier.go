package billing

import (
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/glorifyai/glorify/internal/pkg/mail"
)

type smtpNotifier struct {
	to string
}

func (n *smtpNotifier) PaymentFailed(userID, planID, subscriptionID string) {
	log.Warnf("[Billing] invoice payment failed for user=%s plan=%q subscription=%s", userID, planID, subscriptionID)
	if n.to == "" {
		return
	}

	subject := "Invoice payment failed"
	body := fmt.Sprintf(
		"<p>An invoice payment failed.</p><ul><li>User: %s</li><li>Plan: %s</li><li>Subscription: %s</li></ul>",
		userID, planID, subscriptionID,
	)
	if err := mail.SendMail(n.to, subject, body); err != nil {
		log.Errorf("[Billing] payment failure notice could not be sent: %v", err)
	}
}
