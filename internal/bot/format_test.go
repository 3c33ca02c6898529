package bot

import (
	"testing"

	"sportclub/internal/models"

	"github.com/stretchr/testify/assert"
	"gopkg.in/guregu/null.v4"
)

func TestReservationView(t *testing.T) {
	r := reservation(12, "2025-12-05", "20:00", "21:00", models.StatusConfirmed)
	r.TeamID = null.IntFrom(3)
	r.ActivityType = null.StringFrom("calcetto")
	r.Note = null.StringFrom("porta *palloni*")

	v := viewOf(r, map[int64]string{1: "Campo 1"})
	text := v.text("📋 Бронь")

	assert.Contains(t, text, "📋 Бронь *№12*")
	assert.Contains(t, text, "05.12.2025, 20:00-21:00")
	assert.Contains(t, text, "Статус: ✅ подтверждена")
	assert.Contains(t, text, "Команда: 3")
	assert.Contains(t, text, `porta \*palloni\*`)

	assert.Equal(t, "20:00-21:00 Campo 1 №12, ✅ подтверждена", v.line())
	assert.Equal(t, "Поле 4", reservationView{FieldID: 4}.fieldLabel())
}

func TestStatusLabelAndDate(t *testing.T) {
	assert.Equal(t, "⌛ истекла", statusLabel(models.StatusExpired))
	assert.Equal(t, "weird", statusLabel("weird"))
	assert.Equal(t, "01.12.2025", displayDate("2025-12-01"))
	assert.Equal(t, "bad", displayDate("bad"))
}

func TestDecisionKeyboard(t *testing.T) {
	k := decisionKeyboard(8)
	assert.Len(t, k.InlineKeyboard, 1)
	assert.Equal(t, "confirm:8", *k.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "reject:8", *k.InlineKeyboard[0][1].CallbackData)
}
