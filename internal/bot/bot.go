package bot

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/xaenox/notekeep/internal/engine"
	"github.com/xaenox/notekeep/internal/models"
	"github.com/xaenox/notekeep/internal/scheduler"
)

// SessionFactory builds one sync engine (plus its reconciliation
// scheduler) per Telegram user. Each session owns its working set;
// sessions of the same user converge through the broadcast bus and the
// durable timestamp. The scheduler may be nil in tests.
type SessionFactory func() (*engine.Engine, *scheduler.Scheduler)

type Bot struct {
	api      *tgbotapi.BotAPI
	sessions map[int64]*engine.Engine
	factory  SessionFactory
	logger   *zap.Logger
}

func New(token string, factory SessionFactory, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		api:      api,
		sessions: make(map[int64]*engine.Engine),
		factory:  factory,
		logger:   logger,
	}, nil
}

func (b *Bot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		b.handleMessage(update.Message)
	}

	return nil
}

func (b *Bot) session(ctx context.Context, userID int64) (*engine.Engine, error) {
	if eng, ok := b.sessions[userID]; ok {
		return eng, nil
	}
	eng, sched := b.factory()
	if err := eng.SignIn(ctx, userID); err != nil {
		return nil, err
	}
	if sched != nil {
		sched.Start(userID)
	}
	b.sessions[userID] = eng
	return eng, nil
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	eng, err := b.session(ctx, message.From.ID)
	if err != nil {
		b.logger.Error("Failed to open session",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't load your notes. Please try again.")
		return
	}

	if message.IsCommand() {
		b.handleCommand(ctx, eng, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}

	// Bare URLs become links, everything else becomes a note. Either way
	// the record is visible immediately; a failed save rolls back and
	// nothing phantom survives in /notes.
	if isURL(content) {
		link, err := eng.SaveLink(ctx, content, "")
		if err != nil {
			b.reportMutationError(message.Chat.ID, message.From.ID, "save your link", err)
			return
		}
		b.sendMessage(message.Chat.ID, "Saved link: "+link.URL)
		return
	}

	note, err := eng.SaveNote(ctx, content, "", nil)
	if err != nil {
		b.reportMutationError(message.Chat.ID, message.From.ID, "save your note", err)
		return
	}
	b.sendMessage(message.Chat.ID, "Saved note "+shorten(note.Content, 40))
}

func (b *Bot) handleCommand(ctx context.Context, eng *engine.Engine, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "notes":
		b.handleNotes(eng, message)
	case "more":
		b.handleMore(ctx, eng, message)
	case "links":
		b.handleLinks(eng, message)
	case "groups":
		b.handleGroups(eng, message)
	case "sync":
		b.handleSync(ctx, eng, message)
	case "status":
		b.handleStatus(eng, message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Welcome to NoteKeep! 📝
I keep your notes and links in sync across every device you use.

Just send me any text to save a note, or a URL to save a link.
Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/notes - Show your latest notes
/more - Load the next page of notes
/links - Show your links
/groups - Show your groups
/sync - Refresh from the server
/status - Show sync status

Send any text to save a note, or a URL to save a link.`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleNotes(eng *engine.Engine, message *tgbotapi.Message) {
	notes := eng.Notes()
	if len(notes) == 0 {
		b.sendMessage(message.Chat.ID, "You don't have any notes yet.")
		return
	}

	response := "*Your notes:*\n\n"
	for _, note := range notes {
		response += formatNote(note)
	}
	if eng.HasMoreNotes() {
		response += "\nUse /more to load older notes\\."
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, response)
	msg.ParseMode = "MarkdownV2"
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send notes",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleMore(ctx context.Context, eng *engine.Engine, message *tgbotapi.Message) {
	page, err := eng.LoadMoreNotes(ctx)
	if err != nil {
		b.reportMutationError(message.Chat.ID, message.From.ID, "load more notes", err)
		return
	}
	if len(page) == 0 {
		b.sendMessage(message.Chat.ID, "No older notes.")
		return
	}

	response := "*Older notes:*\n\n"
	for _, note := range page {
		response += formatNote(note)
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, response)
	msg.ParseMode = "MarkdownV2"
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send notes page",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleLinks(eng *engine.Engine, message *tgbotapi.Message) {
	links := eng.Links()
	if len(links) == 0 {
		b.sendMessage(message.Chat.ID, "You don't have any links yet.")
		return
	}

	response := "Your links:\n\n"
	for _, link := range links {
		if link.Title != "" {
			response += fmt.Sprintf("%s — %s\n", link.Title, link.URL)
		} else {
			response += link.URL + "\n"
		}
	}

	b.sendMessage(message.Chat.ID, response)
}

func (b *Bot) handleGroups(eng *engine.Engine, message *tgbotapi.Message) {
	groups := eng.Groups()
	if len(groups) == 0 {
		b.sendMessage(message.Chat.ID, "You don't have any groups yet.")
		return
	}

	response := "Your groups:\n\n"
	for _, group := range groups {
		response += group.Name + "\n"
	}

	b.sendMessage(message.Chat.ID, response)
}

func (b *Bot) handleSync(ctx context.Context, eng *engine.Engine, message *tgbotapi.Message) {
	if err := eng.Sync(ctx, false); err != nil {
		b.logger.Error("Manual sync failed",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sync failed. Please try again later.")
		return
	}
	b.sendMessage(message.Chat.ID, fmt.Sprintf("Synced. %d notes, %d links, %d files, %d groups.",
		len(eng.Notes()), len(eng.Links()), len(eng.Files()), len(eng.Groups())))
}

func (b *Bot) handleStatus(eng *engine.Engine, message *tgbotapi.Message) {
	lastSync := "never"
	if ts := eng.LastSync(); !ts.IsZero() {
		lastSync = ts.Format(time.RFC3339)
	}
	b.sendMessage(message.Chat.ID, fmt.Sprintf("Status: %s\nLast sync: %s", eng.Status(), lastSync))
}

func (b *Bot) reportMutationError(chatID, userID int64, what string, err error) {
	if engine.IsValidation(err) {
		b.sendErrorMessage(chatID, fmt.Sprintf("I couldn't %s: %v", what, err))
		return
	}
	b.logger.Error("Mutation failed",
		zap.Error(err),
		zap.Int64("user_id", userID))
	b.sendErrorMessage(chatID, fmt.Sprintf("Sorry, I couldn't %s. Your data was not changed — please try again.", what))
}

func formatNote(note models.Note) string {
	line := ""
	if note.Title != "" {
		line += fmt.Sprintf("*%s*\n", escapeMarkdown(note.Title))
	}
	line += fmt.Sprintf("_%s_\n", escapeMarkdown(shorten(note.Content, 120)))
	if models.IsLocalID(note.ID) {
		line += "⏳ syncing\\.\\.\\.\n"
	}
	return line + "\n"
}

func isURL(text string) bool {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "http://") && !strings.HasPrefix(text, "https://") {
		return false
	}
	u, err := url.ParseRequestURI(text)
	return err == nil && u.Host != "" && !strings.ContainsAny(text, " \n")
}

func shorten(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	return text[:max] + "…"
}

// Add this helper function to escape special characters for MarkdownV2
func escapeMarkdown(text string) string {
	specialChars := []string{"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
