// Консольный клиент: открывает комнату обмена, гоняет сообщения и
// сигналинг live-сессий через оркестратор. Основной инструмент ручной
// проверки против devserver.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/Y4SS11N3/skillsync-realtime/config"
	"github.com/Y4SS11N3/skillsync-realtime/internal/chat"
	"github.com/Y4SS11N3/skillsync-realtime/internal/domain"
	"github.com/Y4SS11N3/skillsync-realtime/internal/envelope"
	"github.com/Y4SS11N3/skillsync-realtime/internal/notify"
	"github.com/Y4SS11N3/skillsync-realtime/internal/realtime"
	"github.com/Y4SS11N3/skillsync-realtime/internal/rest"
	"github.com/Y4SS11N3/skillsync-realtime/internal/session"
	"github.com/Y4SS11N3/skillsync-realtime/internal/store"
	"github.com/Y4SS11N3/skillsync-realtime/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting chat client",
		"env", cfg.Logging.Env, "user_id", cfg.Auth.UserID)

	api, err := rest.New(rest.Options{
		BaseURL: cfg.REST.BaseURL,
		Token:   cfg.Auth.Token,
		UserID:  cfg.Auth.UserID,
		Timeout: cfg.RESTTimeout(),
	})
	if err != nil {
		log.Fatalf("rest client: %v", err)
	}

	rt := realtime.NewClient(cfg.WS.URL, cfg.Auth.UserID, logger.With("realtime"))
	defer rt.Close()

	msgs := store.New()
	bridge := notify.New(cfg.Auth.UserID, msgs, func(t notify.Toast) {
		fmt.Printf("\n*** live exchange %s in room %s (from user %d)\n> ", t.Kind, t.RoomID, t.SenderID)
	}, logger.With("notify"))

	orch := chat.New(chat.Options{
		Realtime: rt,
		API:      api,
		Store:    msgs,
		Bridge:   bridge,
		UserID:   cfg.Auth.UserID,
		Logger:   logger.With("chat"),
		OnRoomEvent: func(ev chat.RoomEvent) {
			printMessage(cfg.Auth.UserID, ev.Message)
			fmt.Print("> ")
		},
		OnSessionHandoff: func(sess domain.LiveSession) {
			fmt.Printf("*** joined live session %s (exchange %d)\n", sess.SessionID, sess.ExchangeID)
		},
	})
	defer orch.Close()

	ctx := context.Background()
	if err := rt.Connect(ctx, cfg.Auth.Token); err != nil {
		log.Fatalf("connect: %v", err)
	}

	fmt.Println("commands: /open <exchangeId>, /invite, /accept, /join, /end, /quit")
	runREPL(ctx, orch, cfg.Auth.UserID)
	slog.Info("stopped")
}

// runREPL — построчный цикл stdin; состояние — текущая открытая комната.
func runREPL(ctx context.Context, orch *chat.Orchestrator, selfID int64) {
	var (
		room       domain.Room
		exchangeID int64
	)

	sc := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":

		case line == "/quit":
			return

		case strings.HasPrefix(line, "/open "):
			id, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "/open ")), 10, 64)
			if err != nil {
				fmt.Println("usage: /open <exchangeId>")
				break
			}
			r, err := orch.OpenRoom(ctx, id)
			if err != nil {
				fmt.Println("open:", err)
				break
			}
			room, exchangeID = r, id
			fmt.Printf("--- room %s (exchange %d), %d messages\n", room.ID, exchangeID, len(orch.Messages(room.ID)))
			for _, m := range orch.Messages(room.ID) {
				printMessage(selfID, m)
			}

		case line == "/invite":
			if room.ID == "" {
				fmt.Println("open a room first")
				break
			}
			if _, err := orch.SendInvitation(ctx, room.ID, exchangeID); err != nil {
				fmt.Println("invite:", err)
				break
			}
			fmt.Println("invitation sent, waiting for accept")

		case line == "/accept":
			inv, ok := lastInvitation(orch.Messages(room.ID), selfID)
			if !ok {
				fmt.Println("no pending invitation from peer")
				break
			}
			if _, err := orch.AcceptInvitation(ctx, inv); err != nil {
				fmt.Println("accept:", err)
				break
			}
			fmt.Println("accepted, use /join")

		case line == "/join":
			snap := orch.SessionState(room.ID)
			if snap.State != session.StateAccepted {
				fmt.Println("session is not accepted yet:", snap.State)
				break
			}
			if err := orch.JoinSession(snap.SessionID, snap.Token, snap.Role == session.RoleInitiator); err != nil {
				fmt.Println("join:", err)
			}

		case line == "/end":
			orch.DeclineOrEnd(room.ID)
			fmt.Println("session ended")

		default:
			if room.ID == "" {
				fmt.Println("open a room first")
				break
			}
			if _, err := orch.SendText(ctx, room.ID, line); err != nil {
				fmt.Println("send:", err)
			}
		}
		fmt.Print("> ")
	}
}

// lastInvitation — последнее чужое приглашение в истории комнаты.
func lastInvitation(msgs []domain.Message, selfID int64) (domain.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].SenderID == selfID {
			continue
		}
		if _, ok := envelope.Decode(msgs[i].Content).(envelope.Invitation); ok {
			return msgs[i], true
		}
	}
	return domain.Message{}, false
}

func printMessage(selfID int64, m domain.Message) {
	who := fmt.Sprintf("user %d", m.SenderID)
	if m.SenderID == selfID {
		who = "you"
	}
	switch env := envelope.Decode(m.Content).(type) {
	case envelope.Text:
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), who, env.Content)
	case envelope.Invitation:
		fmt.Printf("[%s] %s invited to a live exchange (session %s)\n", m.CreatedAt.Format("15:04:05"), who, env.SessionID)
	case envelope.Accepted:
		fmt.Printf("[%s] %s accepted the live exchange (session %s)\n", m.CreatedAt.Format("15:04:05"), who, env.SessionID)
	case envelope.Unknown:
		fmt.Printf("[%s] %s: <%s>\n", m.CreatedAt.Format("15:04:05"), who, env.Type)
	}
}
