// Package events определяет порт публикации событий сессии.
package events

// Publisher публикует событие в шину. Реализуется eventbus.Bus.
type Publisher interface {
	Publish(topic string, args ...interface{})
}
