package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"tasklist/internal/logger"
	"tasklist/internal/manager"
	"tasklist/internal/models"
	"tasklist/internal/storage"
)

// Sender - часть tgbotapi.BotAPI, нужная боту
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot - Telegram-интерфейс к спискам задач. Каждый чат - отдельная сессия.
type Bot struct {
	api      Sender
	sessions storage.Storage
}

func NewBot(api Sender, sessions storage.Storage) *Bot {
	return &Bot{api: api, sessions: sessions}
}

// Connect авторизует бота по токену
func Connect(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания бота: %w", err)
	}
	api.Debug = debug
	return api, nil
}

// Run обрабатывает обновления по одному, пока не отменен ctx или не закрыт канал
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			b.HandleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}

	username := ""
	if msg.From != nil {
		username = msg.From.UserName
	}
	ctx = logger.WithContext(ctx, "chat_id", msg.Chat.ID, "user", username)
	logger.Debug(ctx, "Message received", "text", msg.Text)

	if msg.IsCommand() {
		b.Dispatch(ctx, msg.Chat.ID, msg.Command(), msg.CommandArguments())
		return
	}
	b.Dispatch(ctx, msg.Chat.ID, "", msg.Text)
}

// Dispatch выполняет команду. Пустая команда - обычный текст, он добавляется как задача.
func (b *Bot) Dispatch(ctx context.Context, chatID int64, command, args string) {
	args = strings.TrimSpace(args)

	switch command {
	case "":
		if args != "" {
			b.addTask(ctx, chatID, args)
		}
	case "start":
		b.sendMarkdown(ctx, chatID, welcomeText)
	case "help":
		b.sendMarkdown(ctx, chatID, helpText)
	case "add":
		if args == "" {
			b.send(ctx, chatID, "Укажите задачу после команды: /add Купить молоко")
			return
		}
		b.addTask(ctx, chatID, args)
	case "list":
		b.send(ctx, chatID, formatList(b.store(chatID).Snapshot()))
	case "done":
		b.byPosition(ctx, chatID, "done", args, func(s *manager.TaskListStore, t models.Task) string {
			return toggleReply(s.Toggle(t.ID), t)
		})
	case "delete":
		b.byPosition(ctx, chatID, "delete", args, func(s *manager.TaskListStore, t models.Task) string {
			s.Delete(t.ID)
			return fmt.Sprintf("🗑️ Задача «%s» удалена", t.Text)
		})
	case "clear":
		store := b.store(chatID)
		before := store.TotalCount()
		after := store.ClearCompleted()
		if removed := before - after.Len(); removed > 0 {
			b.send(ctx, chatID, fmt.Sprintf("🧹 Удалено выполненных задач: %d", removed))
			return
		}
		b.send(ctx, chatID, "Выполненных задач нет")
	case "stats":
		b.send(ctx, chatID, formatStats(b.store(chatID).Snapshot().Stats()))
	default:
		b.send(ctx, chatID, "Неизвестная команда. Используйте /help для списка команд.")
	}
}

func (b *Bot) store(chatID int64) *manager.TaskListStore {
	return b.sessions.Get(SessionKey(chatID))
}

// SessionKey - ключ сессии для чата
func SessionKey(chatID int64) string {
	return "telegram:" + strconv.FormatInt(chatID, 10)
}

func (b *Bot) addTask(ctx context.Context, chatID int64, text string) {
	tasks := b.store(chatID).Add(text)
	task, _ := tasks.At(tasks.Len() - 1)
	logger.Info(ctx, "Task added", "task_id", task.ID)
	b.send(ctx, chatID, fmt.Sprintf("✅ Задача добавлена: %s\nВсего задач: %d", task.Text, tasks.Len()))
}

// byPosition находит задачу по номеру в текущем списке (с 1), id наружу не показываются
func (b *Bot) byPosition(ctx context.Context, chatID int64, command, args string, apply func(*manager.TaskListStore, models.Task) string) {
	if args == "" {
		b.send(ctx, chatID, fmt.Sprintf("Укажите номер задачи: /%s 1", command))
		return
	}
	pos, err := strconv.Atoi(args)
	if err != nil {
		b.send(ctx, chatID, "Номер задачи должен быть числом")
		return
	}

	store := b.store(chatID)
	task, ok := store.Snapshot().At(pos - 1)
	if !ok {
		b.send(ctx, chatID, fmt.Sprintf("Задача №%d не найдена", pos))
		return
	}
	b.send(ctx, chatID, apply(store, task))
}

// toggleReply описывает результат /done по снимку после Toggle.
// Задачу могли удалить между поиском по номеру и Toggle (та же сессия доступна по HTTP).
func toggleReply(tasks models.TaskCollection, t models.Task) string {
	next, ok := tasks.Get(t.ID)
	if !ok {
		return fmt.Sprintf("Задача «%s» уже удалена", t.Text)
	}
	if next.Completed {
		return fmt.Sprintf("✅ Задача «%s» выполнена", t.Text)
	}
	return fmt.Sprintf("↩️ Задача «%s» снова в работе", t.Text)
}

func formatList(tasks models.TaskCollection) string {
	if tasks.Len() == 0 {
		return "📭 Список задач пуст"
	}

	stats := tasks.Stats()
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Ваши задачи (%d из %d выполнено, %d%%):\n\n", stats.Completed, stats.Total, stats.Percentage)
	for i, t := range tasks.Tasks() {
		status := "🟢"
		if t.Completed {
			status = "✅"
		}
		fmt.Fprintf(&sb, "%d. %s %s\n", i+1, status, t.Text)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatStats(stats models.TaskStats) string {
	return fmt.Sprintf("📊 Выполнено %d из %d (%d%%)", stats.Completed, stats.Total, stats.Percentage)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	b.deliver(ctx, tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) sendMarkdown(ctx context.Context, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	b.deliver(ctx, msg)
}

func (b *Bot) deliver(ctx context.Context, msg tgbotapi.MessageConfig) {
	if _, err := b.api.Send(msg); err != nil {
		logger.Error(ctx, err, "Failed to send message")
	}
}

const welcomeText = `🎯 *Добро пожаловать в TodoBot!*

Просто напишите текст, и он станет задачей.
/help - список команд`

const helpText = `🤖 *Помощь по командам*

*/add [задача]* - Добавить задачу
*/list* - Показать все задачи
*/done [номер]* - Отметить выполненной (повторно - вернуть в работу)
*/delete [номер]* - Удалить задачу
*/clear* - Удалить все выполненные
*/stats* - Прогресс
*/help* - Эта справка

*Примеры:*
/add Купить молоко
/done 1`
