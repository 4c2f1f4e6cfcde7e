// Пакет kvstore — локальное key-value хранилище с лимитом объёма.
// Бэкенд — встраиваемый SQLite (modernc.org/sqlite, чистый Go, без CGO):
// хранилище живёт в одном файле рядом с сервисом и имеет жёсткий бюджет
// в несколько мегабайт. Запись, превышающая бюджет, завершается ошибкой
// ErrQuotaExceeded внутри транзакции — предыдущее состояние не затрагивается.
package kvstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // регистрация драйвера "sqlite"
)

// Ошибки хранилища.
var (
	// ErrQuotaExceeded — запись превысила бы бюджет хранилища.
	ErrQuotaExceeded = errors.New("превышен бюджет хранилища")
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store — key-value хранилище поверх SQLite с бюджетом в байтах.
type Store struct {
	db       *sql.DB
	maxBytes int64
	logger   *slog.Logger
}

// Open открывает (или создаёт) файл хранилища и применяет миграции схемы.
// path — путь к файлу SQLite; maxBytes — бюджет хранилища в байтах.
func Open(path string, maxBytes int64, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("открытие файла хранилища: %w", err)
	}

	// SQLite эффективнее с одним писателем
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("включение WAL: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("миграции хранилища: %w", err)
	}

	return &Store{
		db:       db,
		maxBytes: maxBytes,
		logger:   logger.With(slog.String("component", "kvstore")),
	}, nil
}

// applyMigrations применяет встроенные миграции через golang-migrate.
func applyMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("источник миграций: %w", err)
	}

	drv, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("драйвер миграций: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("инициализация миграций: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("применение миграций: %w", err)
	}
	return nil
}

// Close закрывает файл хранилища.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get возвращает значение по ключу. Второй результат — признак наличия.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("чтение ключа %q: %w", key, err)
	}
	return value, true, nil
}

// Update выполняет fn внутри одной транзакции.
// При ошибке fn транзакция откатывается целиком — частичная запись невозможна.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("начало транзакции: %w", err)
	}

	tx := &Tx{tx: sqlTx, maxBytes: s.maxBytes}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("фиксация транзакции: %w", err)
	}
	return nil
}

// Tx — транзакция хранилища.
type Tx struct {
	tx       *sql.Tx
	maxBytes int64
}

// Get возвращает значение по ключу в рамках транзакции.
func (t *Tx) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := t.tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("чтение ключа %q: %w", key, err)
	}
	return value, true, nil
}

// Set записывает значение по ключу, контролируя бюджет хранилища.
// При превышении бюджета возвращает ErrQuotaExceeded — запись не выполняется.
func (t *Tx) Set(ctx context.Context, key string, value []byte) error {
	if t.maxBytes > 0 {
		used, err := t.usedBytesExcept(ctx, key)
		if err != nil {
			return err
		}
		if used+int64(len(key))+int64(len(value)) > t.maxBytes {
			return fmt.Errorf("запись ключа %q (%d байт): %w", key, len(value), ErrQuotaExceeded)
		}
	}

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("запись ключа %q: %w", key, err)
	}
	return nil
}

// Delete удаляет ключ. Отсутствие ключа не является ошибкой.
func (t *Tx) Delete(ctx context.Context, key string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("удаление ключа %q: %w", key, err)
	}
	return nil
}

// DeletePrefix удаляет все ключи с указанным префиксом.
func (t *Tx) DeletePrefix(ctx context.Context, prefix string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM kv WHERE key LIKE ? || '%'`, prefix); err != nil {
		return fmt.Errorf("удаление ключей с префиксом %q: %w", prefix, err)
	}
	return nil
}

// usedBytesExcept возвращает занятый объём без учёта указанного ключа
// (перезапись ключа не должна учитывать его старое значение).
func (t *Tx) usedBytesExcept(ctx context.Context, key string) (int64, error) {
	var used int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(key) + LENGTH(value)), 0) FROM kv WHERE key != ?`,
		key,
	).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("подсчёт занятого объёма: %w", err)
	}
	return used, nil
}
