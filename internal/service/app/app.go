package app

import (
	"context"
	"fmt"
	"mpc_match/internal/model"
	"mpc_match/internal/service/redis"
	"mpc_match/internal/utils/log"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

type (
	App struct {
		app   *tview.Application
		feed  *tview.TextView
		input *tview.InputField

		api *API
		// optional; nil disables the session cache
		redisService *redis.RedisService

		mu        sync.Mutex
		session   *Session
		conn      *websocket.Conn
		listening string
	}
)

func NewApp(api *API, redisSvc *redis.RedisService) *App {
	return &App{
		app:          tview.NewApplication(),
		api:          api,
		redisService: redisSvc,
	}
}

// Run blocks until the user quits.
func (c *App) Run(ctx context.Context) {
	c.renderUI(ctx)
}

func (c *App) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *App) renderUI(ctx context.Context) {
	c.feed = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	c.feed.SetBorder(true).SetTitle(" Matches ")
	fmt.Fprintln(c.feed, "[gray]type help for the list of commands[-]")

	c.input = tview.NewInputField().
		SetLabel("> ").
		SetFieldWidth(0)
	c.input.SetBorder(true).SetTitle(" Command ")

	c.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		line := strings.TrimSpace(c.input.GetText())
		c.input.SetText("")
		if line == "" {
			return
		}
		if line == "quit" {
			c.app.Stop()
			return
		}

		fmt.Fprintf(c.feed, "[yellow]>[-] %s\n", tview.Escape(line))
		// matching can take a while; keep the UI responsive
		go c.run(ctx, line)
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.feed, 0, 1, false).
		AddItem(c.input, 3, 0, true)

	if err := c.app.SetRoot(layout, true).SetFocus(c.input).Run(); err != nil {
		log.Fatal("cannot init app", zap.Error(err))
	}
}

func (c *App) run(ctx context.Context, line string) {
	lines, err := c.Execute(ctx, line)
	for _, l := range lines {
		c.printf("%s", tview.Escape(l))
	}
	if err != nil {
		c.printf("[red]error:[-] %s", tview.Escape(err.Error()))
		return
	}

	if err := c.ensureListener(); err != nil {
		c.printf("[red]notifications unavailable:[-] %s", tview.Escape(err.Error()))
	}
}

// ensureListener keeps one notification socket open for the current
// session.
func (c *App) ensureListener() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || c.listening == c.session.UserID {
		return nil
	}
	if c.conn != nil {
		c.conn.Close()
	}

	conn, err := c.api.Notifications(c.session.Token)
	if err != nil {
		return err
	}
	c.conn = conn
	c.listening = c.session.UserID
	go c.listenOnWebhook(conn)
	return nil
}

func (c *App) listenOnWebhook(conn *websocket.Conn) {
	for {
		var n model.Notification
		if err := conn.ReadJSON(&n); err != nil {
			log.Debug("notification socket closed", zap.Error(err))
			conn.Close()
			return
		}
		if n.Type == model.NotificationMatch {
			c.printf("[green]new match:[-] %s", tview.Escape(n.Handle))
		}
	}
}

func (c *App) printf(format string, args ...any) {
	c.app.QueueUpdateDraw(func() {
		fmt.Fprintf(c.feed, format+"\n", args...)
		c.feed.ScrollToEnd()
	})
}
