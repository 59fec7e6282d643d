package domain

import "time"

// Room — чат между ровно двумя участниками, привязан 1:1 к обмену.
type Room struct {
	ID         string    `json:"id"`
	ExchangeID int64     `json:"exchange_id"`
	CreatedAt  time.Time `json:"created_at"`
}
