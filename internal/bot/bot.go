// Package bot is the Telegram dispatcher: it routes raw transport updates
// into engine actions and renders presentations back into messages and
// inline keyboards. All exercise decisions live in the engine; this package
// only moves data across the transport boundary.
package bot

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/anatilbot/internal/content"
	"github.com/example/anatilbot/internal/engine"
	"github.com/example/anatilbot/internal/progress"
	"github.com/example/anatilbot/internal/scheduler"
	"github.com/example/anatilbot/pkg/models"
)

// Bot represents the Telegram bot application.
type Bot struct {
	api       *tgbotapi.BotAPI
	engine    *engine.Engine
	bank      *content.Bank
	store     *progress.Store
	scheduler *scheduler.Scheduler
	config    *BotConfig
}

// New creates a new bot instance wired to the content bank and the progress
// store.
func New(token string, bank *content.Bank, store *progress.Store, config *BotConfig) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %v", err)
	}
	api.Debug = os.Getenv("DEBUG") == "true"

	return &Bot{
		api:    api,
		engine: engine.New(bank, store),
		bank:   bank,
		store:  store,
		config: config,
	}, nil
}

// Start runs the long polling loop until the context is canceled.
func (b *Bot) Start(ctx context.Context) error {
	log.Printf("Authorized on account %s", b.api.Self.UserName)

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.config.UpdateTimeout
	updates := b.api.GetUpdatesChan(updateConfig)

	b.scheduler = scheduler.New(b.store, b)
	b.scheduler.Start()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(update)
		}
	}
}

// Stop gracefully stops the bot.
func (b *Bot) Stop(ctx context.Context) error {
	if b.scheduler != nil {
		b.scheduler.Stop()
	}
	b.api.StopReceivingUpdates()
	log.Println("Bot stopped")
	return nil
}

// SendDailyPhrase implements the scheduler.Notifier interface.
func (b *Bot) SendDailyPhrase(userID int64) error {
	phrases := b.bank.Phrases()
	if len(phrases) == 0 {
		return nil
	}
	p := randomPhrase(phrases)

	text := fmt.Sprintf("💫 Бүгінгі фраза:\n\n🇰🇿 %s\n🇷🇺 %s", p.Kazakh, p.Russian)
	if p.Example != "" {
		text += fmt.Sprintf("\n\n🌟 Мысалы: %s", p.Example)
	}

	msg := tgbotapi.NewMessage(userID, text)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send daily phrase to user %d: %v", userID, err)
	}
	return nil
}

// randomPhrase draws a phrase using a fresh time-seeded source. Handlers run
// on separate goroutines, so no shared rand state.
func randomPhrase(phrases []models.Phrase) models.Phrase {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return phrases[rnd.Intn(len(phrases))]
}

// sendText sends a plain text message.
func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	b.send(msg)
}

func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

// render turns an engine presentation into a message with an inline keyboard.
func (b *Bot) render(chatID int64, p engine.Presentation) {
	msg := tgbotapi.NewMessage(chatID, p.Text)
	if len(p.Options) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(p.Options))
		for _, opt := range p.Options {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(opt.Label, opt.Token)))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	b.send(msg)
}

// step runs one engine step and renders the result. A store failure is
// reported as an explicit retry message: the user never sees a success
// screen for a mutation that did not persist.
func (b *Bot) step(chatID int64, action engine.Action) {
	pres, err := b.engine.Step(action)
	if err != nil {
		log.Printf("Engine step failed for user %d: %v", action.UserID, err)
		b.sendText(chatID, "⚠️ Прогресті сақтау мүмкін болмады. Тағы бір рет көріңіз.")
		return
	}
	b.render(chatID, pres)
}
