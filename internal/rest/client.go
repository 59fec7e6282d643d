// Package rest — HTTP-клиенты внешних коллабораторов: комнаты/история/отправка
// сообщений и сервис инициализации живых сессий.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Y4SS11N3/skillsync-realtime/internal/domain"
	"github.com/Y4SS11N3/skillsync-realtime/pkg/errs"
)

// Client — API для оркестратора чата.
type Client interface {
	RoomByExchange(ctx context.Context, exchangeID int64) (domain.Room, error)
	History(ctx context.Context, roomID string) ([]domain.Message, error)
	SendMessage(ctx context.Context, roomID, content string) (domain.Message, error)
	InitSession(ctx context.Context, exchangeID int64) (domain.LiveSession, error)
}

type Options struct {
	BaseURL string
	Token   string
	UserID  int64
	Timeout time.Duration
	// HTTPClient — переопределение для тестов; по умолчанию http.DefaultClient.
	HTTPClient *http.Client
}

type client struct {
	baseURL string
	token   string
	userID  int64
	timeout time.Duration
	http    *http.Client
}

func New(opts Options) (Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("rest client: empty base url")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		userID:  opts.UserID,
		timeout: opts.Timeout,
		http:    opts.HTTPClient,
	}, nil
}

func (c *client) RoomByExchange(ctx context.Context, exchangeID int64) (domain.Room, error) {
	var room domain.Room
	err := c.call(ctx, http.MethodGet, fmt.Sprintf("/rooms/by-exchange/%d", exchangeID), nil, &room)
	return room, err
}

func (c *client) History(ctx context.Context, roomID string) ([]domain.Message, error) {
	var out []domain.Message
	err := c.call(ctx, http.MethodGet, "/rooms/"+roomID+"/messages", nil, &out)
	return out, err
}

func (c *client) SendMessage(ctx context.Context, roomID, content string) (domain.Message, error) {
	var msg domain.Message
	err := c.call(ctx, http.MethodPost, "/messages", SendMessageRequest{RoomID: roomID, Content: content}, &msg)
	return msg, err
}

func (c *client) InitSession(ctx context.Context, exchangeID int64) (domain.LiveSession, error) {
	var sess domain.LiveSession
	err := c.call(ctx, http.MethodPost, "/live-sessions", InitSessionRequest{ExchangeID: exchangeID}, &sess)
	return sess, err
}

func (c *client) call(ctx context.Context, method, path string, in, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("rest: marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("rest: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(c.userID, 10))
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode >= 400 {
		return c.asError(res)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", errs.ErrUpstream, err)
	}
	return nil
}

func (c *client) asError(res *http.Response) error {
	var er ErrorResponse
	_ = json.NewDecoder(res.Body).Decode(&er)
	msg := er.Error
	if msg == "" {
		msg = res.Status
	}

	switch res.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", errs.ErrValidation, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", errs.ErrUnauthorized, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", errs.ErrNotFound, msg)
	default:
		return fmt.Errorf("%w: %s", errs.ErrUpstream, msg)
	}
}
