package envelope

import "encoding/json"

type Kind string

const (
	KindText       Kind = "text"
	KindInvitation Kind = "live_exchange_invitation"
	KindAccepted   Kind = "live_exchange_accepted"
	KindUnknown    Kind = "unknown"
)

// Envelope — типизированный payload внутри content сообщения:
// обычный текст, приглашение в живую сессию, принятие, либо неизвестный тип.
type Envelope interface {
	Kind() Kind
}

// Text — обычное сообщение чата; Content хранится как пришёл, без преобразований.
type Text struct {
	Content string
}

func (Text) Kind() Kind { return KindText }

// Invitation — предложение живой сессии обмена (status=waiting на момент отправки).
type Invitation struct {
	SessionID   string
	ExchangeID  int64
	Status      string
	IsInitiator bool
}

func (Invitation) Kind() Kind { return KindInvitation }

// Accepted — принятие приглашения; несёт join-токен для входа в сессию.
type Accepted struct {
	SessionID   string
	ExchangeID  int64
	Token       string
	IsInitiator bool
}

func (Accepted) Kind() Kind { return KindAccepted }

// Unknown — распознанная структура с неизвестным type.
// Не отбрасываем, чтобы вызывающий мог залогировать без потери данных.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (Unknown) Kind() Kind { return KindUnknown }
