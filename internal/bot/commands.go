package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"sportclub/internal/export"
	"sportclub/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const helpText = `Команды для сотрудников:
/pending - заявки, ожидающие подтверждения
/today - брони на сегодня
/confirm <id> - подтвердить бронь
/reject <id> - отклонить бронь
/export [с по] - выгрузка в Excel, даты ГГГГ-ММ-ДД
/help - эта справка`

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || !msg.IsCommand() {
		return
	}
	chatID := msg.Chat.ID
	if !b.cfg.IsStaffChat(chatID) {
		zerolog.Ctx(ctx).Warn().Int64("chat_id", chatID).Str("command", msg.Command()).Msg("Command from non-staff chat")
		b.sendMessage(chatID, "⛔ Команды доступны только в чатах сотрудников.")
		return
	}

	command := msg.Command()
	b.metrics.incCommand(command)
	args := strings.Fields(msg.CommandArguments())

	switch command {
	case "start", "help":
		b.sendMessage(chatID, helpText)
	case "pending":
		b.handlePending(ctx, chatID)
	case "today":
		b.handleToday(ctx, chatID)
	case "confirm":
		b.handleDecisionCommand(ctx, chatID, args, models.StatusConfirmed)
	case "reject":
		b.handleDecisionCommand(ctx, chatID, args, models.StatusRejected)
	case "export":
		b.handleExport(ctx, chatID, args)
	default:
		b.sendMessage(chatID, "Неизвестная команда. /help - список команд.")
	}
}

func (b *Bot) handlePending(ctx context.Context, chatID int64) {
	from := b.today()
	to := from.AddDate(0, 0, b.horizon)
	list, err := b.bookings.ListRange(ctx, from.Format(models.DateLayout), to.Format(models.DateLayout))
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("list pending reservations error")
		b.sendMessage(chatID, errorMessage(err))
		return
	}

	var pending []models.Reservation
	for _, r := range list {
		if r.Status == models.StatusPending {
			pending = append(pending, r)
		}
	}
	if len(pending) == 0 {
		b.sendMessage(chatID, "Нет заявок, ожидающих подтверждения.")
		return
	}
	export.SortReservations(pending)

	names := b.fieldNames(ctx)
	for i, r := range pending {
		if i == maxPendingMessages {
			b.sendMessage(chatID, fmt.Sprintf("... и еще %d. Используйте /export для полного списка.", len(pending)-i))
			break
		}
		keyboard := decisionKeyboard(r.ID)
		b.sendMarkdown(chatID, viewOf(r, names).text("⏳ Заявка"), &keyboard)
	}
}

func (b *Bot) handleToday(ctx context.Context, chatID int64) {
	day := b.today().Format(models.DateLayout)
	list, err := b.bookings.ListRange(ctx, day, day)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("list today reservations error")
		b.sendMessage(chatID, errorMessage(err))
		return
	}

	var active []models.Reservation
	for _, r := range list {
		if r.IsBlocking() {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		b.sendMessage(chatID, fmt.Sprintf("На %s броней нет.", displayDate(day)))
		return
	}
	export.SortReservations(active)

	names := b.fieldNames(ctx)
	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 *Брони на %s*\n", displayDate(day))
	for _, r := range active {
		sb.WriteString("\n")
		sb.WriteString(viewOf(r, names).line())
	}
	b.sendMarkdown(chatID, sb.String(), nil)
}

func (b *Bot) handleDecisionCommand(ctx context.Context, chatID int64, args []string, status string) {
	if len(args) != 1 {
		b.sendMessage(chatID, "Укажите номер брони, например: /confirm 12")
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "№"), 10, 64)
	if err != nil || id <= 0 {
		b.sendMessage(chatID, "Неверный номер брони: "+args[0])
		return
	}

	updated, err := b.decide(ctx, id, status)
	if err != nil {
		b.sendMessage(chatID, errorMessage(err))
		return
	}
	b.sendMarkdown(chatID, viewOf(*updated, b.fieldNames(ctx)).text(decisionTitle(status)), nil)
}

// decide moves reservation id to status on behalf of staff.
func (b *Bot) decide(ctx context.Context, id int64, status string) (*models.Reservation, error) {
	current, err := b.bookings.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := b.bookings.UpdateStatus(ctx, id, current.Version, status, models.ActorStaff)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("reservation_id", id).Str("status", status).Msg("staff decision failed")
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Int64("reservation_id", id).Str("status", status).Msg("Staff decision applied")
	return updated, nil
}

func decisionTitle(status string) string {
	if status == models.StatusConfirmed {
		return "✅ Подтверждена"
	}
	return "❌ Отклонена"
}

func (b *Bot) handleExport(ctx context.Context, chatID int64, args []string) {
	if b.exporter == nil {
		b.sendMessage(chatID, "Выгрузка не настроена.")
		return
	}
	from := b.today()
	to := from.AddDate(0, 0, 6)
	fromStr, toStr := from.Format(models.DateLayout), to.Format(models.DateLayout)
	switch len(args) {
	case 0:
	case 2:
		fromStr, toStr = args[0], args[1]
	default:
		b.sendMessage(chatID, "Использование: /export 2025-12-01 2025-12-07")
		return
	}

	list, err := b.bookings.ListRange(ctx, fromStr, toStr)
	if err != nil {
		b.sendMessage(chatID, errorMessage(err))
		return
	}
	fields, err := b.fields.ListFields(ctx)
	if err != nil {
		b.sendMessage(chatID, errorMessage(err))
		return
	}
	path, err := b.exporter.SaveToFile(list, fields, fromStr, toStr)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("export error")
		b.sendMessage(chatID, "❌ Не удалось сформировать файл: "+err.Error())
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.Caption = fmt.Sprintf("Брони %s - %s", displayDate(fromStr), displayDate(toStr))
	if _, err := b.tg.Send(doc); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("path", path).Msg("send export error")
	}
}
