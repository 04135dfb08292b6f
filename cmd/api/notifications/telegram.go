package notifications

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/library-service/cmd/api/library"
)

// Telegram posts borrowing events to one chat through a bot.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

/* Creates the bot and checks the token against the API. apiEndpoint may be empty to use
the public Telegram API. */
func NewTelegram(token string, chatID int64, apiEndpoint string, client *http.Client) (*Telegram, error) {
	if apiEndpoint == "" {
		apiEndpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{}
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Telegram{api: api, chatID: chatID}, nil
}

func (tg *Telegram) BorrowingCreated(ctx context.Context, b library.Borrowing, bookTitle string) error {
	return tg.send(ctx, borrowingCreatedMessage(b, bookTitle))
}

func (tg *Telegram) BorrowingReturned(ctx context.Context, b library.Borrowing, bookTitle string) error {
	return tg.send(ctx, borrowingReturnedMessage(b, bookTitle))
}

/* The bot API takes no context, so the call runs aside and is abandoned when ctx ends first. */
func (tg *Telegram) send(ctx context.Context, text string) error {
	done := make(chan error, 1)
	go func() {
		_, err := tg.api.Send(tgbotapi.NewMessage(tg.chatID, text))
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("error delivering message to telegram chat %d: %w", tg.chatID, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("error delivering message to telegram chat %d: %w", tg.chatID, ctx.Err())
	}
}
