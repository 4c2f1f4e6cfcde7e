// debounce.go — отложенное выполнение оценки запроса с отменой
// предыдущих запланированных вызовов.
package service

import (
	"sync"
	"time"
)

// Ступени задержки по длине запроса: короткие запросы набираются быстро
// и дают много промежуточных состояний, длинные — почти готовы.
const (
	debounceShort  = 300 * time.Millisecond
	debounceMedium = 500 * time.Millisecond
	debounceLong   = 700 * time.Millisecond
)

// DelayFor возвращает задержку оценки для запроса данной длины.
func DelayFor(query string) time.Duration {
	switch n := len([]rune(query)); {
	case n <= 4:
		return debounceShort
	case n <= 8:
		return debounceMedium
	default:
		return debounceLong
	}
}

// Debouncer планирует отложенный вызов функции. Новый Schedule отменяет
// ещё не выполненный предыдущий: побеждает последний вызов. Счётчик
// поколений защищает от гонки таймера, успевшего сработать между отменой
// и перепланированием.
type Debouncer struct {
	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// NewDebouncer создаёт debouncer.
func NewDebouncer() *Debouncer {
	return &Debouncer{}
}

// Schedule планирует вызов fn через delay, отменяя предыдущий
// запланированный вызов.
func (d *Debouncer) Schedule(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		current := !d.stopped && gen == d.gen
		d.mu.Unlock()
		if current {
			fn()
		}
	})
}

// Stop отменяет запланированный вызов и запрещает дальнейшее планирование.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
