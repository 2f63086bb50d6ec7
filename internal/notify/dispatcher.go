// Package notify публикует события уведомлений в topic exchange.
//
// Доставка принципиально fire-and-forget: переход статуса бронирования не
// имеет права упасть из-за того, что уведомление не отправилось. Ошибки
// публикации логируются и проглатываются здесь, на единственном месте.
package notify

// Publisher интерфейс публикации сообщений (pkg/rabbitmq)
type Publisher interface {
	Publish(routingKey string, payload interface{}) error
}

// Logger интерфейс для логирования
type Logger interface {
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// Counter счётчик потерянных уведомлений (prometheus.Counter)
type Counter interface {
	Inc()
}

// NopPublisher заглушка публикации, когда брокер выключен конфигурацией.
// События молча теряются, операции сервиса работают как обычно.
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(string, interface{}) error { return nil }

// Dispatcher отправляет события уведомлений
type Dispatcher struct {
	publisher Publisher
	log       Logger
	dropped   Counter // опционально, nil когда метрики выключены
}

// NewDispatcher создает новый диспетчер уведомлений
func NewDispatcher(publisher Publisher, log Logger, dropped Counter) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		log:       log,
		dropped:   dropped,
	}
}

// Notify публикует событие для пользователя. Никогда не возвращает ошибку:
// сбой публикации логируется и учитывается в метрике, но не прерывает
// вызывающую операцию.
func (d *Dispatcher) Notify(userID int64, eventType EventType, data map[string]interface{}) {
	event := Event{
		UserID:    userID,
		EventType: eventType,
		Data:      data,
	}

	if err := d.publisher.Publish(string(eventType), event); err != nil {
		d.log.Error("notify: failed to publish %s for user=%d: %v", eventType, userID, err)
		if d.dropped != nil {
			d.dropped.Inc()
		}
		return
	}

	d.log.Info("notify: published %s for user=%d", eventType, userID)
}
