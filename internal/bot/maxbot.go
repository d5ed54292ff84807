// Package bot adapts the Max messenger client to the transport interfaces
// the core consumes.
package bot

import (
	"context"
	"fmt"
	"strings"

	maxbot "github.com/max-messenger/max-bot-api-client-go"
	"github.com/max-messenger/max-bot-api-client-go/schemes"
	"go.uber.org/zap"

	"github.com/Zhun1s/TomatoBot/internal/transport"
)

// Client implements transport.Sender over the Max bot API.
type Client struct {
	api *maxbot.Api
	log *zap.Logger
}

func NewClient(api *maxbot.Api, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{api: api, log: log}
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, buttons [][]transport.Button) error {
	msg := maxbot.NewMessage().SetChat(chatID).SetText(text)
	if len(buttons) > 0 {
		kb := c.api.Messages.NewKeyboardBuilder()
		for _, row := range buttons {
			r := kb.AddRow()
			for _, button := range row {
				r.AddCallback(button.Label, schemes.DEFAULT, button.Payload)
			}
		}
		msg.AddKeyboard(kb)
	}
	_, err := c.api.Messages.Send(ctx, msg)
	return err
}

func (c *Client) EditMessage(ctx context.Context, messageSeq int64, text string) error {
	return c.api.Messages.EditMessage(ctx, messageSeq, maxbot.NewMessage().SetText(text))
}

// ToEvent converts an inbound Max update into a transport event. The second
// return value is false for update kinds the bot ignores.
func ToEvent(update interface{}) (transport.Event, bool) {
	switch upd := update.(type) {
	case *schemes.MessageCreatedUpdate:
		text := strings.TrimSpace(upd.Message.Body.Text)
		ev := transport.Event{
			UserID:    fmt.Sprintf("%d", upd.Message.Sender.UserId),
			ChatID:    upd.Message.Recipient.ChatId,
			FirstName: upd.Message.Sender.FirstName,
			Username:  upd.Message.Sender.Username,
			Kind:      transport.KindText,
			Text:      text,
		}
		if strings.HasPrefix(text, "/") {
			ev.Kind = transport.KindCommand
		}
		return ev, true
	case *schemes.MessageCallbackUpdate:
		ev := transport.Event{
			UserID:  fmt.Sprintf("%d", upd.Callback.GetUserID()),
			Kind:    transport.KindButton,
			Payload: upd.Callback.Payload,
		}
		// the original message is null when it was deleted before the
		// callback reached us; handlers then fall back to a fresh send.
		// The chat also comes from the message: Callback carries only
		// the pressing user.
		if upd.Message != nil {
			ev.ChatID = upd.Message.Recipient.ChatId
			ev.MessageSeq = upd.Message.Body.Seq
		}
		return ev, true
	default:
		return transport.Event{}, false
	}
}
