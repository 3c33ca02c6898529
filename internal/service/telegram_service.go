package service

import (
	"errors"
	"fmt"

	"sportclub/internal/domain"
	"sportclub/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramService builds staff messages on top of a TelegramSender.
type TelegramService struct {
	domain.TelegramSender
}

func NewTelegramService(sender domain.TelegramSender) *TelegramService {
	return &TelegramService{TelegramSender: sender}
}

// SendText sends plain text without parse mode.
func (s *TelegramService) SendText(chatID int64, text string) (tgbotapi.Message, error) {
	return s.Send(tgbotapi.NewMessage(chatID, text))
}

// SendMarkdown sends Markdown text, with inline buttons when keyboard is set.
func (s *TelegramService) SendMarkdown(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = models.ParseModeMarkdown
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	return s.Send(msg)
}

// Broadcast sends the same message to every chat. Failed chats are joined into the error.
func (s *TelegramService) Broadcast(chatIDs []int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	var errs []error
	for _, id := range chatIDs {
		if _, err := s.SendMarkdown(id, text, keyboard); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// EditMessage replaces the text of a sent message and drops its buttons.
func (s *TelegramService) EditMessage(chatID int64, messageID int, text string) (tgbotapi.Message, error) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = models.ParseModeMarkdown
	return s.Send(edit)
}

func (s *TelegramService) AnswerCallback(callbackID, text string) error {
	_, err := s.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}
