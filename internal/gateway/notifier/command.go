package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"remora/internal/logger"
)

// CommandHandler receives a command name (without the leading slash) and
// returns the reply text. Unknown commands should return a usage hint.
type CommandHandler func(ctx context.Context, cmd string) string

// CommandListener long-polls the Telegram getUpdates endpoint and feeds
// recognized bot commands to the handler. Only messages from the configured
// chat are accepted.
type CommandListener struct {
	bot     *Telegram
	handler CommandHandler
	offset  int64
}

func NewCommandListener(bot *Telegram, handler CommandHandler) *CommandListener {
	return &CommandListener{bot: bot, handler: handler}
}

// Run blocks until ctx is cancelled.
func (l *CommandListener) Run(ctx context.Context) error {
	if l.bot == nil || l.bot.BotToken == "" {
		logger.Infof("command listener disabled: no telegram token")
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := l.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warnf("command listener poll failed: %v", err)
			time.Sleep(5 * time.Second)
		}
	}
}

func (l *CommandListener) poll(ctx context.Context) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/getUpdates?timeout=30&offset=%d",
		l.bot.BotToken, l.offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 40 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if !gjson.GetBytes(body, "ok").Bool() {
		return fmt.Errorf("telegram getUpdates not ok: %s", gjson.GetBytes(body, "description").String())
	}
	for _, upd := range gjson.GetBytes(body, "result").Array() {
		if id := upd.Get("update_id").Int(); id >= l.offset {
			l.offset = id + 1
		}
		chatID := upd.Get("message.chat.id").String()
		if l.bot.ChatID != "" && chatID != l.bot.ChatID {
			continue
		}
		text := strings.TrimSpace(upd.Get("message.text").String())
		if !strings.HasPrefix(text, "/") {
			continue
		}
		cmd := strings.TrimPrefix(strings.Fields(text)[0], "/")
		// Strip the @botname suffix used in group chats.
		if i := strings.Index(cmd, "@"); i > 0 {
			cmd = cmd[:i]
		}
		logger.Infof("command received: /%s", cmd)
		reply := l.handler(ctx, cmd)
		if reply == "" {
			continue
		}
		if err := l.bot.SendText(reply); err != nil {
			logger.Warnf("command reply failed: %v", err)
		}
	}
	return nil
}
