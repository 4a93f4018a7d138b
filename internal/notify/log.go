package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogNotifier writes rendered notifications to the log. It stands in for
// channels without a delivery backend, such as client e-mail.
type LogNotifier struct {
	logger *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, template, recipient string, data map[string]string) (string, error) {
	text, err := Render(template, data)
	if err != nil {
		return "", err
	}

	deliveryID := uuid.NewString()
	n.logger.Info().
		Str("delivery_id", deliveryID).
		Str("template", template).
		Str("recipient", recipient).
		Str("booking_id", data["booking_id"]).
		Str("body", text).
		Msg("Notification")
	return deliveryID, nil
}
