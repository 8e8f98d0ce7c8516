package bot

import (
	"fmt"
	"log"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/anatilbot/internal/engine"
	"github.com/example/anatilbot/pkg/models"
)

// Main menu reply keyboard labels.
const (
	buttonTopics   = "📚 Тақырыптар"
	buttonQuiz     = "🧠 Викторина"
	buttonReading  = "📖 Оқу"
	buttonPhrase   = "💬 Күннің фразасы"
	buttonProgress = "📈 Прогресс"
)

// topicPrefix marks dispatcher-local callbacks for the topics menu; all
// other callback data is an engine token.
const topicPrefix = "topic:"

// handleUpdate handles incoming updates from Telegram.
func (b *Bot) handleUpdate(update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallbackQuery(update.CallbackQuery)
	}
}

// handleMessage processes commands and main menu presses.
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	if message.From == nil {
		return
	}
	userID := message.From.ID
	chatID := message.Chat.ID

	if message.IsCommand() {
		switch message.Command() {
		case "start":
			b.handleStartCommand(message)
		case "menu":
			b.showMainMenu(chatID)
		case "progress":
			b.handleProgress(chatID, userID)
		case "phrase":
			b.handlePhrase(chatID)
		case "notify":
			b.handleNotifyCommand(message)
		default:
			msg := tgbotapi.NewMessage(chatID, "Белгісіз команда. /menu арқылы басты мәзірді ашыңыз.")
			msg.ReplyMarkup = mainMenuKeyboard()
			b.send(msg)
		}
		return
	}

	switch message.Text {
	case buttonTopics:
		b.handleTopics(chatID)
	case buttonQuiz:
		b.render(chatID, b.engine.CategoryMenu())
	case buttonReading:
		b.step(chatID, engine.Action{UserID: userID, Kind: engine.ActionStart, Category: models.CategoryReadings})
	case buttonPhrase:
		b.handlePhrase(chatID)
	case buttonProgress:
		b.handleProgress(chatID, userID)
	default:
		msg := tgbotapi.NewMessage(chatID, "Түсінбедім. /menu арқылы басты мәзірді ашыңыз.")
		msg.ReplyMarkup = mainMenuKeyboard()
		b.send(msg)
	}
}

// handleCallbackQuery routes button presses: topic menus are handled
// locally, everything else is a continuation token for the engine.
func (b *Bot) handleCallbackQuery(callback *tgbotapi.CallbackQuery) {
	// Acknowledge immediately to prevent "query is too old" errors
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		log.Printf("Error answering callback query: %v", err)
	}

	if callback.Message == nil {
		return
	}
	chatID := callback.Message.Chat.ID

	if strings.HasPrefix(callback.Data, topicPrefix) {
		b.showTopicLinks(chatID, strings.TrimPrefix(callback.Data, topicPrefix))
		return
	}

	b.step(chatID, engine.Action{
		UserID: callback.From.ID,
		Kind:   engine.ActionToken,
		Token:  callback.Data,
	})
}

// handleStartCommand registers the user and shows the greeting with the main
// menu.
func (b *Bot) handleStartCommand(message *tgbotapi.Message) {
	user := &models.User{
		TelegramID:          message.From.ID,
		Username:            message.From.UserName,
		FirstName:           message.From.FirstName,
		NotificationEnabled: true,
		NotificationHour:    b.config.DefaultPhraseHour,
	}
	if err := b.store.RegisterUser(user); err != nil {
		log.Printf("Error registering user %d: %v", message.From.ID, err)
	}

	phrase := "Білім — табысқа бастар жол."
	if phrases := b.bank.Phrases(); len(phrases) > 0 {
		phrase = randomPhrase(phrases).Kazakh
	}

	text := fmt.Sprintf("✨ AnaTili Bot 🇰🇿\n%s\n\n💬 Күннің фразасы:\n%s\n\n"+
		"📚 Тақырыптар — Quizlet сілтемелері\n"+
		"🧠 Викторина — жаттығулар мен ұпайлар\n"+
		"📖 Оқу — мәтіндер мен сұрақтар\n"+
		"📈 Прогресс — сенің деңгейіңді көру",
		greeting(time.Now().Hour()), phrase)

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ReplyMarkup = mainMenuKeyboard()
	b.send(msg)
}

// greeting returns the salutation for an hour of day.
func greeting(hour int) string {
	switch {
	case hour < 12:
		return "🌅 Қайырлы таң!"
	case hour < 18:
		return "🌇 Қайырлы кеш!"
	default:
		return "🌙 Қайырлы түн!"
	}
}

func (b *Bot) showMainMenu(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "Басты мәзір:")
	msg.ReplyMarkup = mainMenuKeyboard()
	b.send(msg)
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonTopics),
			tgbotapi.NewKeyboardButton(buttonQuiz),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonReading),
			tgbotapi.NewKeyboardButton(buttonPhrase),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonProgress),
		),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

// handleProgress renders the standalone progress screen.
func (b *Bot) handleProgress(chatID, userID int64) {
	rec, err := b.store.Get(userID)
	if err != nil {
		log.Printf("Error getting progress for user %d: %v", userID, err)
		b.sendText(chatID, "⚠️ Прогресті жүктеу мүмкін болмады. Тағы бір рет көріңіз.")
		return
	}
	b.sendText(chatID, engine.ProgressScreen(rec))
}

// handlePhrase sends a random phrase with its translation and example.
func (b *Bot) handlePhrase(chatID int64) {
	phrases := b.bank.Phrases()
	if len(phrases) == 0 {
		b.sendText(chatID, "⚠️ Фразалар базасы бос.")
		return
	}
	p := randomPhrase(phrases)

	example := "жоқ"
	if p.Example != "" {
		example = p.Example
	}
	b.sendText(chatID, fmt.Sprintf("💫 Бүгінгі фраза:\n\n🇰🇿 %s\n🇷🇺 %s\n\n🌟 Мысалы: %s",
		p.Kazakh, p.Russian, example))
}

// handleNotifyCommand toggles the daily phrase subscription.
func (b *Bot) handleNotifyCommand(message *tgbotapi.Message) {
	arg := strings.TrimSpace(message.CommandArguments())
	switch arg {
	case "on", "off":
	default:
		b.sendText(message.Chat.ID, "Қолдану: /notify on немесе /notify off")
		return
	}

	enabled := arg == "on"
	if err := b.store.SetNotifications(message.From.ID, enabled); err != nil {
		log.Printf("Error updating notifications for user %d: %v", message.From.ID, err)
		b.sendText(message.Chat.ID, "⚠️ Баптауды сақтау мүмкін болмады. Тағы бір рет көріңіз.")
		return
	}
	if enabled {
		b.sendText(message.Chat.ID, "🔔 Күннің фразасы қосылды.")
	} else {
		b.sendText(message.Chat.ID, "🔕 Күннің фразасы өшірілді.")
	}
}

// handleTopics shows the topic menu as inline buttons.
func (b *Bot) handleTopics(chatID int64) {
	topics := b.bank.Topics()
	if len(topics) == 0 {
		b.sendText(chatID, "⚠️ Тақырыптар базасы бос.")
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(topics))
	for _, topic := range topics {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(topic.Name, topicPrefix+topic.Name)))
	}

	msg := tgbotapi.NewMessage(chatID, "📘 Quizlet тақырыптары:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.send(msg)
}

// showTopicLinks shows the study links of one topic as URL buttons.
func (b *Bot) showTopicLinks(chatID int64, name string) {
	for _, topic := range b.bank.Topics() {
		if topic.Name != name {
			continue
		}
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(topic.Links))
		for _, link := range topic.Links {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL(link.Label, link.URL)))
		}
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("✨ %s тақырыптары:", name))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
		b.send(msg)
		return
	}
	// Topic list changed since the menu was rendered
	b.sendText(chatID, "⚠️ Бұл тақырып енді қолжетімді емес.")
}
