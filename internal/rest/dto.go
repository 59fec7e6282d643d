package rest

type SendMessageRequest struct {
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
}

type InitSessionRequest struct {
	ExchangeID int64 `json:"exchange_id"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
