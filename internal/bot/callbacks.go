package bot

import (
	"context"
	"strconv"
	"strings"

	"sportclub/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil || callback.Message.Chat == nil {
		return
	}
	chatID := callback.Message.Chat.ID
	if !b.cfg.IsStaffChat(chatID) {
		b.answer(ctx, callback.ID, "⛔ Недоступно")
		return
	}

	var status, raw string
	switch {
	case strings.HasPrefix(callback.Data, callbackConfirm):
		status, raw = models.StatusConfirmed, strings.TrimPrefix(callback.Data, callbackConfirm)
	case strings.HasPrefix(callback.Data, callbackReject):
		status, raw = models.StatusRejected, strings.TrimPrefix(callback.Data, callbackReject)
	default:
		b.answer(ctx, callback.ID, "")
		return
	}
	b.metrics.incCommand("callback_" + status)

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		b.answer(ctx, callback.ID, "Неверный номер брони")
		return
	}

	updated, err := b.decide(ctx, id, status)
	if err != nil {
		b.answer(ctx, callback.ID, errorMessage(err))
		return
	}
	b.answer(ctx, callback.ID, decisionTitle(status))

	// Убираем кнопки и показываем итог
	text := viewOf(*updated, b.fieldNames(ctx)).text(decisionTitle(status))
	if _, err := b.tg.EditMessage(chatID, callback.Message.MessageID, text); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatID).Msg("edit message error")
	}
}

func (b *Bot) answer(ctx context.Context, callbackID, text string) {
	if err := b.tg.AnswerCallback(callbackID, text); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("answer callback error")
	}
}
