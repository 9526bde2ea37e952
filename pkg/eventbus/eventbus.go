// Package eventbus предоставляет процессную точку публикации/подписки
// для сквозных уведомлений сессии (предупреждение, истечение, отзыв).
package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

// Bus - шина событий. Обработчики вызываются синхронно в горутине публикатора.
type Bus = evbus.Bus

var (
	instance Bus
	once     sync.Once
)

// Default возвращает процессную шину.
func Default() Bus {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// New создает отдельную шину (для тестов и изолированных компонентов).
func New() Bus {
	return evbus.New()
}

// Publish публикует событие в процессной шине.
func Publish(topic string, args ...interface{}) {
	Default().Publish(topic, args...)
}

// Subscribe подписывает fn на topic процессной шины.
func Subscribe(topic string, fn interface{}) error {
	return Default().Subscribe(topic, fn)
}

// Unsubscribe отписывает fn от topic процессной шины.
func Unsubscribe(topic string, fn interface{}) error {
	return Default().Unsubscribe(topic, fn)
}
