package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"sportclub/internal/events"
	"sportclub/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	callbackConfirm = "confirm:"
	callbackReject  = "reject:"

	displayDateLayout = "02.01.2006"
)

// reservationView is the part of a reservation shown in chat messages.
type reservationView struct {
	ID        int64
	FieldID   int64
	FieldName string
	Date      string
	Start     string
	End       string
	Status    string
	UserID    int64
	TeamID    int64
	Activity  string
	Note      string
}

func viewOf(r models.Reservation, names map[int64]string) reservationView {
	return reservationView{
		ID:        r.ID,
		FieldID:   r.FieldID,
		FieldName: names[r.FieldID],
		Date:      r.Date,
		Start:     r.StartTime.String(),
		End:       r.EndTime.String(),
		Status:    r.Status,
		UserID:    r.UserID.Int64,
		TeamID:    r.TeamID.Int64,
		Activity:  r.ActivityType.String,
		Note:      r.Note.String,
	}
}

func viewOfPayload(p events.ReservationEventPayload) reservationView {
	return reservationView{
		ID:        p.ReservationID,
		FieldID:   p.FieldID,
		FieldName: p.FieldName,
		Date:      p.Date,
		Start:     p.StartTime,
		End:       p.EndTime,
		Status:    p.Status,
		UserID:    p.UserID,
		TeamID:    p.TeamID,
		Activity:  p.ActivityType,
	}
}

func statusLabel(status string) string {
	switch status {
	case models.StatusPending:
		return "⏳ ожидает подтверждения"
	case models.StatusConfirmed:
		return "✅ подтверждена"
	case models.StatusRejected:
		return "❌ отклонена"
	case models.StatusExpired:
		return "⌛ истекла"
	case models.StatusCancelled:
		return "🚫 отменена"
	default:
		return status
	}
}

func displayDate(date string) string {
	d, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format(displayDateLayout)
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func (v reservationView) fieldLabel() string {
	if v.FieldName != "" {
		return v.FieldName
	}
	return fmt.Sprintf("Поле %d", v.FieldID)
}

// text renders the reservation card in Markdown.
func (v reservationView) text(title string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s *№%d*\n", title, v.ID)
	fmt.Fprintf(&sb, "🏟 %s\n", escape(v.fieldLabel()))
	fmt.Fprintf(&sb, "📅 %s, %s-%s\n", displayDate(v.Date), v.Start, v.End)
	fmt.Fprintf(&sb, "Статус: %s", statusLabel(v.Status))
	if v.UserID != 0 {
		fmt.Fprintf(&sb, "\nПользователь: %d", v.UserID)
	}
	if v.TeamID != 0 {
		fmt.Fprintf(&sb, "\nКоманда: %d", v.TeamID)
	}
	if v.Activity != "" {
		fmt.Fprintf(&sb, "\nЗанятие: %s", escape(v.Activity))
	}
	if v.Note != "" {
		fmt.Fprintf(&sb, "\nКомментарий: %s", escape(v.Note))
	}
	return sb.String()
}

// line renders the reservation as one list row.
func (v reservationView) line() string {
	return fmt.Sprintf("%s-%s %s №%d, %s", v.Start, v.End, escape(v.fieldLabel()), v.ID, statusLabel(v.Status))
}

func decisionKeyboard(id int64) tgbotapi.InlineKeyboardMarkup {
	sid := strconv.FormatInt(id, 10)
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", callbackConfirm+sid),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", callbackReject+sid),
		),
	)
}
