// Пакет cachestore — локальная реплика реестра поверх kvstore.
// Реплика либо полностью присутствует и внутренне согласована, либо
// отсутствует: частично записанные или повреждённые данные обнаруживаются
// при чтении и удаляются целиком, никогда не используются частично.
//
// Раскладка ключей:
//   - основная:  roster:data (JSON-массив записей) + roster:meta
//   - chunked:   roster:chunk_count = N, roster:chunk_0 .. roster:chunk_{N-1}
//     (конкатенация чанков по порядку восстанавливает payload)
//
// Обе раскладки проверяются при чтении и удаляются вместе при любой
// очистке или обнаружении повреждения.
package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/electoreg/roster-module/internal/dedup"
	"github.com/electoreg/roster-module/internal/domain/model"
	"github.com/electoreg/roster-module/internal/kvstore"
)

// Ключи раскладки реплики в kvstore.
const (
	keyData       = "roster:data"
	keyMeta       = "roster:meta"
	keyChunkCount = "roster:chunk_count"
	chunkPrefix   = "roster:chunk_"
)

// meta — метаданные реплики.
type meta struct {
	// RecordCount — количество записей в payload (после дедупликации при записи)
	RecordCount int `json:"record_count"`
	// ReportedTotal — заявленное реестром общее количество на момент синхронизации
	ReportedTotal int `json:"reported_total"`
	// TimestampMs — время записи реплики (unix-миллисекунды)
	TimestampMs int64 `json:"timestamp_ms"`
}

// Store — хранилище локальной реплики реестра.
type Store struct {
	kv *kvstore.Store
	// ttl — срок годности реплики (по истечении — отбрасывается)
	ttl time.Duration
	// maxRecords — потолок количества записей: наборы крупнее не кэшируются
	maxRecords int
	// chunkSize — порог перехода на chunked-раскладку, байт
	chunkSize int
	logger    *slog.Logger
}

// New создаёт хранилище реплики.
func New(kv *kvstore.Store, ttl time.Duration, maxRecords, chunkSize int, logger *slog.Logger) *Store {
	return &Store{
		kv:         kv,
		ttl:        ttl,
		maxRecords: maxRecords,
		chunkSize:  chunkSize,
		logger:     logger.With(slog.String("component", "cachestore")),
	}
}

// Read возвращает реплику, если она присутствует, свежа и согласована.
// Любое структурное повреждение приводит к упреждающей очистке и ответу
// «отсутствует» — повреждение никогда не распространяется дальше.
// Загруженные записи всегда дедуплицируются: персистентному payload
// не доверяется (он мог быть записан прежней версией сервиса).
func (s *Store) Read(ctx context.Context) ([]model.Record, int, bool) {
	rawMeta, ok, err := s.kv.Get(ctx, keyMeta)
	if err != nil {
		s.logger.Warn("Ошибка чтения метаданных реплики", slog.String("error", err.Error()))
		return nil, 0, false
	}
	if !ok {
		return nil, 0, false
	}

	var m meta
	if err := json.Unmarshal(rawMeta, &m); err != nil {
		s.logger.Warn("Метаданные реплики повреждены, реплика удаляется",
			slog.String("error", err.Error()),
		)
		s.clearQuiet(ctx)
		return nil, 0, false
	}

	// Свежесть и валидность заявленного total
	age := time.Duration(time.Now().UnixMilli()-m.TimestampMs) * time.Millisecond
	if m.ReportedTotal <= 0 || age >= s.ttl {
		s.logger.Info("Реплика устарела, будет выполнена полная синхронизация",
			slog.Duration("age", age),
			slog.Int("reported_total", m.ReportedTotal),
		)
		s.clearQuiet(ctx)
		return nil, 0, false
	}

	payload, ok := s.readPayload(ctx)
	if !ok {
		s.logger.Warn("Payload реплики отсутствует или повреждён, реплика удаляется")
		s.clearQuiet(ctx)
		return nil, 0, false
	}

	var records []model.Record
	if err := json.Unmarshal(payload, &records); err != nil {
		s.logger.Warn("Payload реплики не разбирается, реплика удаляется",
			slog.String("error", err.Error()),
		)
		s.clearQuiet(ctx)
		return nil, 0, false
	}

	// Согласованность payload и метаданных
	if len(records) != m.RecordCount {
		s.logger.Warn("Размер payload не совпадает с метаданными, реплика удаляется",
			slog.Int("payload_records", len(records)),
			slog.Int("meta_records", m.RecordCount),
		)
		s.clearQuiet(ctx)
		return nil, 0, false
	}

	records = dedup.Records(records)

	s.logger.Info("Реплика загружена из локального кэша",
		slog.Int("records", len(records)),
		slog.Int("reported_total", m.ReportedTotal),
		slog.Duration("age", age),
	)
	return records, m.ReportedTotal, true
}

// readPayload читает payload по основной либо chunked-раскладке.
func (s *Store) readPayload(ctx context.Context) ([]byte, bool) {
	if payload, ok, err := s.kv.Get(ctx, keyData); err == nil && ok {
		return payload, true
	}

	rawCount, ok, err := s.kv.Get(ctx, keyChunkCount)
	if err != nil || !ok {
		return nil, false
	}
	count, err := strconv.Atoi(string(rawCount))
	if err != nil || count <= 0 {
		return nil, false
	}

	var payload []byte
	for i := 0; i < count; i++ {
		chunk, ok, err := s.kv.Get(ctx, chunkPrefix+strconv.Itoa(i))
		if err != nil || !ok {
			// Отсутствующий чанк — повреждение всей реплики
			return nil, false
		}
		payload = append(payload, chunk...)
	}
	return payload, true
}

// Write сохраняет набор записей как новую реплику.
//
// Наборы крупнее потолка maxRecords не кэшируются вовсе: бюджет хранилища —
// несколько мегабайт, и попытка записи сверх него могла бы оборвать
// транзакцию на середине. Это осознанный lossy-компромисс — большие наборы
// просто перезагружаются из сети при каждой синхронизации.
//
// Превышение бюджета хранилища перехватывается: транзакция откатывается,
// предыдущее состояние реплики остаётся нетронутым.
func (s *Store) Write(ctx context.Context, records []model.Record, reportedTotal int) error {
	if len(records) > s.maxRecords {
		s.logger.Warn("Набор превышает потолок кэширования и не будет сохранён",
			slog.Int("records", len(records)),
			slog.Int("max_records", s.maxRecords),
		)
		return nil
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("сериализация записей: %w", err)
	}
	rawMeta, err := json.Marshal(meta{
		RecordCount:   len(records),
		ReportedTotal: reportedTotal,
		TimestampMs:   time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("сериализация метаданных: %w", err)
	}

	err = s.kv.Update(ctx, func(tx *kvstore.Tx) error {
		// Обе раскладки удаляются перед записью новой реплики
		if err := clearTx(ctx, tx); err != nil {
			return err
		}

		if len(payload) > s.chunkSize {
			if err := s.writeChunked(ctx, tx, payload); err != nil {
				return err
			}
		} else if err := tx.Set(ctx, keyData, payload); err != nil {
			return err
		}

		return tx.Set(ctx, keyMeta, rawMeta)
	})
	if errors.Is(err, kvstore.ErrQuotaExceeded) {
		s.logger.Warn("Бюджет хранилища исчерпан, реплика не сохранена",
			slog.Int("payload_bytes", len(payload)),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("сохранение реплики: %w", err)
	}

	s.logger.Info("Реплика сохранена",
		slog.Int("records", len(records)),
		slog.Int("payload_bytes", len(payload)),
		slog.Bool("chunked", len(payload) > s.chunkSize),
	)
	return nil
}

// writeChunked записывает payload по chunked-раскладке.
func (s *Store) writeChunked(ctx context.Context, tx *kvstore.Tx, payload []byte) error {
	count := (len(payload) + s.chunkSize - 1) / s.chunkSize
	for i := 0; i < count; i++ {
		start := i * s.chunkSize
		end := start + s.chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		if err := tx.Set(ctx, chunkPrefix+strconv.Itoa(i), payload[start:end]); err != nil {
			return err
		}
	}
	return tx.Set(ctx, keyChunkCount, []byte(strconv.Itoa(count)))
}

// Clear удаляет реплику целиком (обе раскладки). Идемпотентна.
func (s *Store) Clear(ctx context.Context) error {
	err := s.kv.Update(ctx, func(tx *kvstore.Tx) error {
		return clearTx(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("очистка реплики: %w", err)
	}
	return nil
}

// clearTx удаляет все ключи обеих раскладок в рамках транзакции.
func clearTx(ctx context.Context, tx *kvstore.Tx) error {
	if err := tx.Delete(ctx, keyData); err != nil {
		return err
	}
	if err := tx.Delete(ctx, keyMeta); err != nil {
		return err
	}
	if err := tx.Delete(ctx, keyChunkCount); err != nil {
		return err
	}
	return tx.DeletePrefix(ctx, chunkPrefix)
}

// clearQuiet очищает реплику, логируя ошибку вместо её возврата
// (используется на путях обнаружения повреждений).
func (s *Store) clearQuiet(ctx context.Context) {
	if err := s.Clear(ctx); err != nil {
		s.logger.Error("Не удалось очистить повреждённую реплику",
			slog.String("error", err.Error()),
		)
	}
}
