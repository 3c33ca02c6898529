package bot

import (
	"errors"

	"sportclub/internal/domain"
)

func errorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrNotFound):
		return "⚠️ Бронь не найдена."
	case errors.Is(err, domain.ErrSlotTaken):
		return "⚠️ Это время уже занято другой бронью."
	case errors.Is(err, domain.ErrInvalidTransition):
		return "⚠️ Для брони в текущем статусе это действие недоступно."
	case errors.Is(err, domain.ErrConcurrentModification):
		return "⚠️ Бронь была изменена одновременно с вами. Попробуйте еще раз."
	case errors.Is(err, domain.ErrInvalidRequest):
		return "⚠️ Неверный запрос: " + err.Error()
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "❌ Хранилище броней недоступно. Попробуйте позже."
	}
	return "❌ Произошла ошибка при обработке запроса. Попробуйте позже."
}
