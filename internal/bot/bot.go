// Package bot is the Telegram transport. It translates messages, photos and
// button presses into session, billing and report operations.
package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"evcharge/internal/auth"
	"evcharge/internal/billing"
	"evcharge/internal/ocr"
	"evcharge/internal/report"
	"evcharge/internal/session"
)

const downloadTimeout = 20 * time.Second

// Bot wires the Telegram API to the domain services.
type Bot struct {
	api        *tgbotapi.BotAPI
	sessions   *session.Service
	tariffs    *billing.TariffService
	reports    *report.Generator
	recognizer *ocr.Recognizer
	authz      *auth.Authorizer
	ownerID    int64
	httpClient *http.Client
	logger     *zap.Logger
}

func New(
	token string,
	ownerID int64,
	sessions *session.Service,
	tariffs *billing.TariffService,
	reports *report.Generator,
	recognizer *ocr.Recognizer,
	authz *auth.Authorizer,
	logger *zap.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram api: %w", err)
	}
	return &Bot{
		api:        api,
		sessions:   sessions,
		tariffs:    tariffs,
		reports:    reports,
		recognizer: recognizer,
		authz:      authz,
		ownerID:    ownerID,
		httpClient: &http.Client{Timeout: downloadTimeout},
		logger:     logger,
	}, nil
}

// Run polls for updates until the context is cancelled. Updates are handled
// one at a time: the bot serves one household, ordering beats throughput.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("bot started", zap.String("username", b.api.Self.UserName))

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("update handler panic", zap.Any("panic", r))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID

	if msg.Contact != nil {
		b.handleContact(msg)
		return
	}

	role := b.authz.RoleOf(userID)
	if role == auth.RoleUnknown {
		if msg.IsCommand() && msg.Command() == "start" {
			b.askForContact(msg.Chat.ID)
			return
		}
		b.reply(msg.Chat.ID, "This bot is private. Share your contact with /start to request access.")
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg, role)
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, msg)
	case msg.Document != nil:
		b.handleDocument(ctx, msg)
	case msg.Text != "":
		b.handleText(ctx, msg)
	}
}

func (b *Bot) handleContact(msg *tgbotapi.Message) {
	if msg.Contact.UserID != msg.From.ID {
		b.reply(msg.Chat.ID, "Please share your own contact, not someone else's.")
		return
	}
	role := b.authz.RegisterContact(msg.From.ID, msg.Contact.PhoneNumber)
	if role == auth.RoleUnknown {
		b.reply(msg.Chat.ID, "Sorry, your number is not on the access list.")
		return
	}
	b.replyRemoveKeyboard(msg.Chat.ID, "Access granted. Send /help to see what I can do.")
}

func (b *Bot) askForContact(chatID int64) {
	reply := tgbotapi.NewMessage(chatID, "Share your contact so I can check the access list.")
	button := tgbotapi.NewKeyboardButtonContact("Share my contact")
	reply.ReplyMarkup = tgbotapi.NewOneTimeReplyKeyboard(tgbotapi.NewKeyboardButtonRow(button))
	b.send(reply)
}

// download fetches a Telegram file body by file id.
func (b *Bot) download(fileID string) ([]byte, string, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, "", fmt.Errorf("get file: %w", err)
	}
	url := file.Link(b.api.Token)

	resp, err := b.httpClient.Get(url)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file body: %w", err)
	}
	return body, file.FilePath, nil
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) replyHTML(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	b.send(msg)
}

func (b *Bot) replyRemoveKeyboard(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	b.send(msg)
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.logger.Error("failed to send message", zap.Error(err))
	}
}

func (b *Bot) sendDocument(chatID int64, name string, body []byte) {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: body})
	if _, err := b.api.Send(doc); err != nil {
		b.logger.Error("failed to send document", zap.Error(err))
	}
}
