package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"sessionbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookingData() map[string]string {
	return map[string]string{
		"booking_id":   "7",
		"provider":     "Dr. Berg",
		"client_name":  "Alice",
		"client_email": "alice@example.com",
		"client_phone": "",
		"date":         "2025-03-10",
		"time":         "09:00",
		"end_time":     "10:00",
		"timezone":     "Europe/Berlin",
		"duration":     "60",
		"price":        "50.00",
		"notes":        "first visit",
	}
}

func TestRender(t *testing.T) {
	t.Run("Confirmed", func(t *testing.T) {
		text, err := Render(models.TemplateBookingConfirmed, bookingData())
		require.NoError(t, err)
		assert.Contains(t, text, "Alice")
		assert.Contains(t, text, "2025-03-10, 09:00–10:00 (Europe/Berlin)")
		assert.Contains(t, text, "#7")
		assert.Contains(t, text, "50.00")
	})

	t.Run("ProviderSkipsEmptyPhone", func(t *testing.T) {
		text, err := Render(models.TemplateProviderBooked, bookingData())
		require.NoError(t, err)
		assert.NotContains(t, text, "📱")
		assert.Contains(t, text, "first visit")
	})

	t.Run("MissingKeys", func(t *testing.T) {
		text, err := Render(models.TemplateBookingCancelled, map[string]string{"client_name": "Bob"})
		require.NoError(t, err)
		assert.Contains(t, text, "Bob")
		assert.NotContains(t, text, "<no value>")
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := Render("reminder", bookingData())
		assert.Error(t, err)
	})
}

type fakeBot struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: 100 + len(f.sent)}, nil
}

func TestTelegramNotifier(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()

	t.Run("Delivers", func(t *testing.T) {
		bot := &fakeBot{}
		n := NewTelegramNotifier(bot, &logger)

		id, err := n.Send(ctx, models.TemplateProviderBooked, "telegram:42", bookingData())
		require.NoError(t, err)
		assert.Equal(t, "101", id)
		require.Len(t, bot.sent, 1)

		msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
		require.True(t, ok)
		assert.Equal(t, int64(42), msg.ChatID)
		assert.Contains(t, msg.Text, "Новая запись #7")
	})

	t.Run("BadChatID", func(t *testing.T) {
		bot := &fakeBot{}
		n := NewTelegramNotifier(bot, &logger)

		_, err := n.Send(ctx, models.TemplateProviderBooked, "telegram:abc", bookingData())
		assert.Error(t, err)
		assert.Empty(t, bot.sent)
	})

	t.Run("SendError", func(t *testing.T) {
		n := NewTelegramNotifier(&fakeBot{err: errors.New("flood wait")}, &logger)

		_, err := n.Send(ctx, models.TemplateProviderBooked, "telegram:42", bookingData())
		assert.ErrorContains(t, err, "flood wait")
	})
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	n := NewLogNotifier(&logger)

	id, err := n.Send(context.Background(), models.TemplateBookingConfirmed, "email:alice@example.com", bookingData())
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, id, entry["delivery_id"])
	assert.Equal(t, "email:alice@example.com", entry["recipient"])
	assert.True(t, strings.Contains(entry["body"].(string), "Alice"))
}

type recordingNotifier struct {
	recipients []string
}

func (r *recordingNotifier) Send(ctx context.Context, template, recipient string, data map[string]string) (string, error) {
	r.recipients = append(r.recipients, recipient)
	return "ok", nil
}

func TestRouter(t *testing.T) {
	email := &recordingNotifier{}
	telegram := &recordingNotifier{}
	r := NewRouter().Handle("email:", email).Handle("telegram", telegram)
	ctx := context.Background()

	_, err := r.Send(ctx, models.TemplateBookingConfirmed, "email:alice@example.com", nil)
	require.NoError(t, err)
	_, err = r.Send(ctx, models.TemplateProviderBooked, "telegram:42", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"email:alice@example.com"}, email.recipients)
	assert.Equal(t, []string{"telegram:42"}, telegram.recipients)

	_, err = r.Send(ctx, models.TemplateBookingConfirmed, "sms:+49", nil)
	assert.Error(t, err)
	_, err = r.Send(ctx, models.TemplateBookingConfirmed, "nobody", nil)
	assert.Error(t, err)
}
