package services

import (
	"context"
	"fmt"
	"html"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"groupware/internal/models"
)

type telegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier builds an EventSink posting task changes into one chat.
// With an empty token or zero chat id the sink is inert.
func NewTelegramNotifier(botToken string, chatID int64) (EventSink, error) {
	if botToken == "" || chatID == 0 {
		log.Printf("[tg][skip] token or chatID empty, notifications disabled")
		return &telegramNotifier{}, nil
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &telegramNotifier{bot: bot, chatID: chatID}, nil
}

func (t *telegramNotifier) TaskEvent(ctx context.Context, event Event, task *models.Task) error {
	if t.bot == nil {
		return nil
	}
	msg := tgbotapi.NewMessage(t.chatID, formatTaskEvent(event, task))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	log.Printf("[tg][send] chatID=%d task=%d event=%s", t.chatID, task.ID, event)
	if _, err := t.bot.Send(msg); err != nil {
		log.Printf("[tg][send][err] %v", err)
		return fmt.Errorf("telegram sendMessage failed: %w", err)
	}
	return nil
}

func formatTaskEvent(event Event, task *models.Task) string {
	text := fmt.Sprintf("<b>Task %s</b>\n%s\nStatus: %s | Priority: %s",
		event, html.EscapeString(task.Title), task.Status, task.Priority)
	if task.End != nil {
		text += "\nDue: " + task.End.Format(time.RFC1123)
	}
	return text
}
