package feed

import (
	"sync"

	"github.com/UkralStul/blog-platform/internal/domain"
	"github.com/google/uuid"
)

// Observer хранит каналы подписчиков на журнал активности постов.
type Observer struct {
	mu sync.RWMutex
	//          map[postID] map[subscriberID] channel
	subs map[string]map[string]chan *domain.Activity
}

// NewObserver - конструктор наблюдателя.
func NewObserver() *Observer {
	return &Observer{
		subs: make(map[string]map[string]chan *domain.Activity),
	}
}

// Subscribe регистрирует подписчика на активность поста.
// Возвращенная функция снимает подписку и закрывает канал.
func (o *Observer) Subscribe(postID string) (<-chan *domain.Activity, func()) {
	ch := make(chan *domain.Activity, 8)
	subID := uuid.NewString()

	o.mu.Lock()
	if o.subs[postID] == nil {
		o.subs[postID] = make(map[string]chan *domain.Activity)
	}
	o.subs[postID][subID] = ch
	o.mu.Unlock()

	cancel := func() {
		o.mu.Lock()
		if postSubs, ok := o.subs[postID]; ok {
			if _, ok := postSubs[subID]; ok {
				delete(postSubs, subID)
				close(ch)
			}
			if len(postSubs) == 0 {
				delete(o.subs, postID)
			}
		}
		o.mu.Unlock()
	}
	return ch, cancel
}

// Publish рассылает новую запись журнала подписчикам поста.
// Медленный подписчик пропускает запись, а не блокирует мутацию.
func (o *Observer) Publish(postID string, activity *domain.Activity) {
	if activity == nil {
		return
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, ch := range o.subs[postID] {
		select {
		case ch <- activity:
		default:
		}
	}
}
