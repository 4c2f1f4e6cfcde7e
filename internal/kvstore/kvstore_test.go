package kvstore

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
)

// newTestStore создаёт хранилище во временном каталоге теста.
func newTestStore(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "kv.db"), maxBytes, slog.Default())
	if err != nil {
		t.Fatalf("открытие хранилища: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestStore_SetGet проверяет базовую запись и чтение.
func TestStore_SetGet(t *testing.T) {
	s := newTestStore(t, 1<<20)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error {
		return tx.Set(ctx, "roster:data", []byte(`[{"name":"Иван"}]`))
	})
	if err != nil {
		t.Fatalf("Update ошибка: %v", err)
	}

	value, ok, err := s.Get(ctx, "roster:data")
	if err != nil {
		t.Fatalf("Get ошибка: %v", err)
	}
	if !ok {
		t.Fatal("ключ не найден после записи")
	}
	if string(value) != `[{"name":"Иван"}]` {
		t.Errorf("value = %q", value)
	}

	// Отсутствующий ключ
	_, ok, err = s.Get(ctx, "roster:nope")
	if err != nil {
		t.Fatalf("Get ошибка: %v", err)
	}
	if ok {
		t.Error("ожидалось отсутствие ключа roster:nope")
	}
}

// TestStore_Overwrite проверяет перезапись значения по ключу.
func TestStore_Overwrite(t *testing.T) {
	s := newTestStore(t, 1<<20)
	ctx := context.Background()

	for _, v := range []string{"старое", "новое"} {
		if err := s.Update(ctx, func(tx *Tx) error {
			return tx.Set(ctx, "k", []byte(v))
		}); err != nil {
			t.Fatalf("Update ошибка: %v", err)
		}
	}

	value, _, _ := s.Get(ctx, "k")
	if string(value) != "новое" {
		t.Errorf("value = %q, ожидалось %q", value, "новое")
	}
}

// TestStore_QuotaExceeded проверяет контроль бюджета и откат транзакции:
// предыдущее состояние остаётся нетронутым.
func TestStore_QuotaExceeded(t *testing.T) {
	s := newTestStore(t, 64)
	ctx := context.Background()

	if err := s.Update(ctx, func(tx *Tx) error {
		return tx.Set(ctx, "k", []byte("маленькое"))
	}); err != nil {
		t.Fatalf("первая запись: %v", err)
	}

	// Перезапись большим значением + запись второго ключа в той же транзакции
	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.Set(ctx, "k2", []byte("x")); err != nil {
			return err
		}
		return tx.Set(ctx, "k", make([]byte, 256))
	})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("ошибка = %v, ожидалась ErrQuotaExceeded", err)
	}

	// Транзакция откатилась целиком: k не изменился, k2 не появился
	value, _, _ := s.Get(ctx, "k")
	if string(value) != "маленькое" {
		t.Errorf("k = %q, ожидалось прежнее значение", value)
	}
	if _, ok, _ := s.Get(ctx, "k2"); ok {
		t.Error("k2 не должен существовать после отката")
	}
}

// TestStore_DeletePrefix проверяет удаление по префиксу (chunked-ключи).
func TestStore_DeletePrefix(t *testing.T) {
	s := newTestStore(t, 1<<20)
	ctx := context.Background()

	if err := s.Update(ctx, func(tx *Tx) error {
		for _, k := range []string{"roster:chunk_0", "roster:chunk_1", "roster:meta"} {
			if err := tx.Set(ctx, k, []byte("v")); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("подготовка: %v", err)
	}

	if err := s.Update(ctx, func(tx *Tx) error {
		return tx.DeletePrefix(ctx, "roster:chunk_")
	}); err != nil {
		t.Fatalf("DeletePrefix ошибка: %v", err)
	}

	for _, k := range []string{"roster:chunk_0", "roster:chunk_1"} {
		if _, ok, _ := s.Get(ctx, k); ok {
			t.Errorf("ключ %q не удалён", k)
		}
	}
	if _, ok, _ := s.Get(ctx, "roster:meta"); !ok {
		t.Error("ключ roster:meta не должен был удалиться")
	}
}
