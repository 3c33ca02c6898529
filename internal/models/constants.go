package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusRejected  = "rejected"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

// Кто выполняет действие над бронью
const (
	ActorStaff  = "staff"
	ActorUser   = "user"
	ActorSystem = "system"
)

const ParseModeMarkdown = "Markdown"

const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)

const (
	// DefaultCacheTTL время жизни кэша доступности в секундах
	DefaultCacheTTL = 5 * 60

	// DefaultMinLeadMinutes минимальный запас времени для брони на сегодня
	DefaultMinLeadMinutes = 120

	// DefaultMaxAdvanceDays на сколько дней вперед можно бронировать
	DefaultMaxAdvanceDays = 90

	// DefaultAutoAcceptHours через сколько часов заявка подтверждается автоматически
	DefaultAutoAcceptHours = 72

	// DefaultReminderLeadMinutes за сколько минут до начала отправляется напоминание
	DefaultReminderLeadMinutes = 120

	// DefaultReminderWindowMinutes допуск окна напоминаний
	DefaultReminderWindowMinutes = 15

	// DefaultSweepIntervalMinutes период проверки истекших броней
	DefaultSweepIntervalMinutes = 10

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 128

	// SheetsCacheTTL время жизни кэша строк Google Sheets
	SheetsCacheTTL = 60 * 60 // 1 час в секундах
)
