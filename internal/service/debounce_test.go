package service

import (
	"sync/atomic"
	"testing"
	"time"
)

// waitCounter ждёт, пока счётчик достигнет want, либо истечёт таймаут.
func waitCounter(t *testing.T, c *atomic.Int32, want int32, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.Load() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("счётчик = %d, ожидалось %d", c.Load(), want)
}

// TestDebouncer_Fires проверяет выполнение запланированного вызова.
func TestDebouncer_Fires(t *testing.T) {
	d := NewDebouncer()
	defer d.Stop()

	var calls atomic.Int32
	d.Schedule(10*time.Millisecond, func() { calls.Add(1) })
	waitCounter(t, &calls, 1, time.Second)
}

// TestDebouncer_LastWriteWins проверяет отмену предыдущего вызова
// при перепланировании.
func TestDebouncer_LastWriteWins(t *testing.T) {
	d := NewDebouncer()
	defer d.Stop()

	var first, second atomic.Int32
	d.Schedule(50*time.Millisecond, func() { first.Add(1) })
	d.Schedule(10*time.Millisecond, func() { second.Add(1) })

	waitCounter(t, &second, 1, time.Second)

	// Первый вызов отменён и не выполнится даже после его исходной задержки
	time.Sleep(100 * time.Millisecond)
	if first.Load() != 0 {
		t.Errorf("отменённый вызов выполнился %d раз", first.Load())
	}
}

// TestDebouncer_Stop проверяет, что после Stop вызовы не выполняются
// и не планируются.
func TestDebouncer_Stop(t *testing.T) {
	d := NewDebouncer()

	var calls atomic.Int32
	d.Schedule(20*time.Millisecond, func() { calls.Add(1) })
	d.Stop()
	d.Schedule(time.Millisecond, func() { calls.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("после Stop выполнено %d вызовов", calls.Load())
	}
}
