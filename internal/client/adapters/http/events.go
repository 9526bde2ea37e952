package http

import (
	"fmt"
	"sync"
	"time"

	"authkeeper/internal/client/domain/entities"
	"authkeeper/pkg/eventbus"
)

// DefaultEventLogSize - емкость журнала событий по умолчанию.
const DefaultEventLogSize = 256

// EventRecord - событие сессии с порядковым номером.
type EventRecord struct {
	Seq       uint64    `json:"seq"`
	Topic     string    `json:"topic"`
	At        time.Time `json:"at"`
	ExpiresAt time.Time `json:"expiresAt"`
	Reason    string    `json:"reason,omitempty"`
}

// EventLog хранит последние события шины, чтобы отсоединенный интерфейс
// забирал их опросом с курсором after.
type EventLog struct {
	sub *eventbus.Subscription

	mu      sync.Mutex
	seq     uint64
	size    int
	records []EventRecord
}

var eventTopics = []string{
	entities.TopicSessionWarning,
	entities.TopicSessionTimeout,
	entities.TopicSessionRevoked,
}

// NewEventLog подписывает журнал на темы сессии.
func NewEventLog(bus eventbus.Bus, size int) (*EventLog, error) {
	if size <= 0 {
		size = DefaultEventLogSize
	}
	l := &EventLog{size: size}

	sub, err := eventbus.Listen(bus, l.append, eventTopics...)
	if err != nil {
		return nil, fmt.Errorf("subscribing event log: %w", err)
	}
	l.sub = sub
	return l, nil
}

func (l *EventLog) append(event entities.SessionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	l.records = append(l.records, EventRecord{
		Seq:       l.seq,
		Topic:     event.Topic,
		At:        event.At,
		ExpiresAt: event.ExpiresAt,
		Reason:    event.Reason,
	})
	if over := len(l.records) - l.size; over > 0 {
		l.records = append(l.records[:0], l.records[over:]...)
	}
}

// Since возвращает события с номером больше after и последний выданный номер.
func (l *EventLog) Since(after uint64) ([]EventRecord, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]EventRecord, 0)
	for _, record := range l.records {
		if record.Seq > after {
			out = append(out, record)
		}
	}
	return out, l.seq
}

// Close отписывает журнал от шины.
func (l *EventLog) Close() {
	l.sub.Close()
}
