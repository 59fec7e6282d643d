package domain

// LiveSession — живая сессия обмена, выдаётся сервисом инициализации сессий.
// Token — opaque-credential для входа в сессию после принятия приглашения.
type LiveSession struct {
	SessionID  string `json:"session_id"`
	ExchangeID int64  `json:"exchange_id"`
	Status     string `json:"status"`
	Token      string `json:"token"`
}

const (
	SessionStatusWaiting = "waiting"
	SessionStatusActive  = "active"
)
