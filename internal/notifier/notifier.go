package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"tasklist/internal/logger"
	"tasklist/internal/models"
)

// EventSnapshot - тип SSE-события с новым снимком списка
const EventSnapshot = "snapshot"

// Channel - канал одного клиента (одной вкладки браузера)
type Channel chan []byte

type event struct {
	ctx     context.Context
	session string
	tasks   models.TaskCollection
}

// Notifier рассылает новые снимки всем подписчикам сессии.
// Сам список задач о подписчиках ничего не знает: публикует внешний слой.
type Notifier struct {
	// ключ - сессия, значение - каналы подписчиков
	clients map[string][]Channel
	// lastSent - версия последнего снимка, отправленного в канал
	lastSent map[Channel]uint64
	mu       sync.RWMutex

	events    chan event
	done      chan struct{}
	closeOnce sync.Once
	buffer    int
}

// New создает нотификатор и запускает диспетчер
func New(buffer int) *Notifier {
	if buffer <= 0 {
		buffer = 16
	}
	n := &Notifier{
		clients:  make(map[string][]Channel),
		lastSent: make(map[Channel]uint64),
		events:   make(chan event, 100),
		done:     make(chan struct{}),
		buffer:   buffer,
	}
	go n.dispatcher()
	return n
}

func (n *Notifier) dispatcher() {
	for {
		select {
		case <-n.done:
			return
		case ev := <-n.events:
			n.dispatch(ev)
		}
	}
}

// dispatch рассылает снимок тем подписчикам, у которых он новее уже полученного.
// Публикации из разных запросов приходят в произвольном порядке, версия его восстанавливает.
func (n *Notifier) dispatch(ev event) {
	ctx := logger.WithContext(ev.ctx, "component", "notifier", "session", ev.session)

	msg, ok := encode(ctx, ev.tasks)
	if !ok {
		return
	}

	// Lock, а не RLock: offer пишет в lastSent
	n.mu.Lock()
	defer n.mu.Unlock()

	channels := n.clients[ev.session]
	if len(channels) == 0 {
		logger.Debug(ctx, "No subscribers, snapshot dropped")
		return
	}
	for _, ch := range channels {
		n.offer(ctx, ch, ev.tasks.Version(), msg)
	}
}

// offer кладет снимок в канал без блокировки. Вызывается под n.mu.
func (n *Notifier) offer(ctx context.Context, ch Channel, version uint64, msg []byte) {
	if last, ok := n.lastSent[ch]; ok && version <= last {
		logger.Debug(ctx, "Stale snapshot dropped", "version", version, "last_sent", last)
		return
	}
	select {
	case ch <- msg:
		n.lastSent[ch] = version
		return
	default:
	}

	// буфер полон: выбрасываем самый старый кадр, последний снимок должен дойти.
	// Пишут в канал только под n.mu, поэтому после чтения место есть.
	logger.Warn(ctx, "Subscriber channel is full, dropping oldest snapshot")
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- msg:
		n.lastSent[ch] = version
	default:
	}
}

func encode(ctx context.Context, tasks models.TaskCollection) ([]byte, bool) {
	data, err := json.Marshal(tasks.Snapshot())
	if err != nil {
		logger.Error(ctx, err, "Failed to marshal snapshot")
		return nil, false
	}
	return FormatSSE(EventSnapshot, data), true
}

// Publish ставит снимок в очередь рассылки
func (n *Notifier) Publish(ctx context.Context, session string, tasks models.TaskCollection) {
	select {
	case n.events <- event{ctx: ctx, session: session, tasks: tasks}:
	case <-n.done:
	case <-ctx.Done():
	}
}

// Subscribe регистрирует нового подписчика сессии
func (n *Notifier) Subscribe(session string) Channel {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(Channel, n.buffer)
	n.clients[session] = append(n.clients[session], ch)
	return ch
}

// Prime отправляет подписчику текущее состояние первым кадром.
// Снимок надо брать после Subscribe: тогда ни одно изменение не потеряется,
// а то, что диспетчер уже успел отправить, повторно не уйдет.
func (n *Notifier) Prime(ctx context.Context, session string, ch Channel, tasks models.TaskCollection) {
	msg, ok := encode(ctx, tasks)
	if !ok {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	// отписанный канал уже закрыт
	if !slices.Contains(n.clients[session], ch) {
		return
	}
	n.offer(ctx, ch, tasks.Version(), msg)
}

// Unsubscribe удаляет подписчика и закрывает его канал
func (n *Notifier) Unsubscribe(session string, ch Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()

	channels := n.clients[session]
	kept := channels[:0]
	for _, c := range channels {
		if c == ch {
			close(c)
			delete(n.lastSent, c)
			continue
		}
		kept = append(kept, c)
	}

	if len(kept) == 0 {
		delete(n.clients, session)
		return
	}
	n.clients[session] = kept
}

// Subscribers - число подписчиков сессии
func (n *Notifier) Subscribers(session string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.clients[session])
}

// Close останавливает диспетчер. Повторный вызов безопасен.
func (n *Notifier) Close() {
	n.closeOnce.Do(func() { close(n.done) })
}

// FormatSSE оформляет событие по формату text/event-stream
func FormatSSE(eventType string, data []byte) []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, data))
}
