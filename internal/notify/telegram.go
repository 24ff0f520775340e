package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink posts events to the venue staff chat.
type TelegramSink struct {
	bot    messageSender
	chatID int64
	// only these event types are forwarded; empty means all
	only map[EventType]bool
}

func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return bot, nil
}

func NewTelegramSink(bot messageSender, chatID int64, only ...EventType) *TelegramSink {
	s := &TelegramSink{bot: bot, chatID: chatID, only: make(map[EventType]bool)}
	for _, t := range only {
		s.only[t] = true
	}
	return s
}

func (s *TelegramSink) Notify(ctx context.Context, ev Event) error {
	if len(s.only) > 0 && !s.only[ev.Type] {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(s.chatID, FormatMessage(ev))
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func FormatMessage(ev Event) string {
	var title string
	switch ev.Type {
	case BookingConfirmed:
		title = "✅ Booking confirmed"
	case BookingFailed:
		title = "❌ Booking failed"
	case BookingCancelled:
		title = "🚫 Booking cancelled"
	case BookingExpired:
		title = "⌛ Booking expired"
	case RefundCompleted:
		title = "💸 Refund completed"
	case RefundFailed:
		title = "⚠️ Refund failed, manual action needed"
	default:
		title = string(ev.Type)
	}
	text := fmt.Sprintf("%s\nFacility: %s\nDate: %s %s-%s\nUser: %s\nReservation: %s",
		title, ev.FacilityID, ev.Date, ev.StartTime, ev.EndTime, ev.UserID, ev.ReservationID)
	if ev.Reason != "" {
		text += "\nReason: " + ev.Reason
	}
	return text
}
