package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Y4SS11N3/skillsync-realtime/pkg/errs"
)

// wire — сериализованная форма сигналинговых конвертов.
// Поля в camelCase — так их пишет и читает платформа.
type wire struct {
	Type        string `json:"type"`
	SessionID   string `json:"sessionId,omitempty"`
	ExchangeID  int64  `json:"exchangeId,omitempty"`
	Status      string `json:"status,omitempty"`
	Token       string `json:"token,omitempty"`
	IsInitiator bool   `json:"isInitiator,omitempty"`
}

// desanitizer — фиксированная таблица обратных подстановок.
// Канал доставки может HTML-экранировать payload; ровно эти
// последовательности наблюдались на транспорте, других правил не угадываем.
// &amp; — последним, иначе съест префикс остальных entity.
var desanitizer = strings.NewReplacer(
	"&quot;", `"`,
	"&#34;", `"`,
	"&lt;", "<",
	"&gt;", ">",
	"&#39;", "'",
	"&#x27;", "'",
	"&#x2F;", "/",
	"&amp;", "&",
)

// Decode разбирает wire-форму конверта. Никогда не возвращает ошибку:
// всё, что не удалось распознать как сигналинг, деградирует в Text
// с исходным содержимым.
func Decode(raw string) Envelope {
	s := strings.TrimSpace(desanitizer.Replace(raw))

	// Двойная сериализация: весь payload завёрнут в JSON-строку.
	if strings.HasPrefix(s, `"`) {
		if unq, err := strconv.Unquote(s); err == nil {
			if env, ok := parse([]byte(unq)); ok {
				return env
			}
		}
		return Text{Content: raw}
	}

	if !strings.HasPrefix(s, "{") {
		return Text{Content: raw}
	}

	if env, ok := parse([]byte(s)); ok {
		return env
	}

	// Вторая попытка: JSON пришёл с экранированными кавычками
	// (двойная сериализация на стороне транспорта).
	if strings.Contains(s, `\"`) {
		unescaped := strings.ReplaceAll(s, `\"`, `"`)
		if env, ok := parse([]byte(unescaped)); ok {
			return env
		}
	}

	return Text{Content: raw}
}

// DecodeValue — путь для уже структурированного значения (без строковой обёртки).
func DecodeValue(raw json.RawMessage) Envelope {
	if env, ok := parse(raw); ok {
		return env
	}
	return Text{Content: string(raw)}
}

func parse(b []byte) (Envelope, bool) {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, false
	}

	switch Kind(w.Type) {
	case KindInvitation:
		return Invitation{
			SessionID:   w.SessionID,
			ExchangeID:  w.ExchangeID,
			Status:      w.Status,
			IsInitiator: w.IsInitiator,
		}, true
	case KindAccepted:
		return Accepted{
			SessionID:   w.SessionID,
			ExchangeID:  w.ExchangeID,
			Token:       w.Token,
			IsInitiator: w.IsInitiator,
		}, true
	case "":
		// JSON без поля type — не наш протокол, отдаём как текст
		return nil, false
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, b); err != nil {
			return nil, false
		}
		return Unknown{Type: w.Type, Raw: json.RawMessage(buf.Bytes())}, true
	}
}

// Encode сериализует конверт в wire-форму. Вызывающие не собирают
// строку вручную — только через Encode.
func Encode(env Envelope) (string, error) {
	switch e := env.(type) {
	case Text:
		return e.Content, nil
	case Invitation:
		b, err := json.Marshal(wire{
			Type:        string(KindInvitation),
			SessionID:   e.SessionID,
			ExchangeID:  e.ExchangeID,
			Status:      e.Status,
			IsInitiator: e.IsInitiator,
		})
		if err != nil {
			return "", err
		}
		return string(b), nil
	case Accepted:
		b, err := json.Marshal(wire{
			Type:        string(KindAccepted),
			SessionID:   e.SessionID,
			ExchangeID:  e.ExchangeID,
			Token:       e.Token,
			IsInitiator: e.IsInitiator,
		})
		if err != nil {
			return "", err
		}
		return string(b), nil
	case Unknown:
		if len(e.Raw) > 0 {
			return string(e.Raw), nil
		}
		return "", fmt.Errorf("%w: empty unknown envelope", errs.ErrValidation)
	default:
		return "", fmt.Errorf("%w: unsupported envelope %T", errs.ErrValidation, env)
	}
}
