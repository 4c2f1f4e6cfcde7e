// Пакет service — бизнес-логика Roster Module: сессия синхронизации,
// оркестратор постраничной загрузки, поисковый движок и debounce.
//
// session.go — Session: единственный владелец изменяемого состояния
// (набор записей в памяти, кэш результатов запросов, наблюдаемое состояние
// загрузки/поиска). Явный жизненный цикл: создаётся при старте сервиса,
// сбрасывается при очистке кэша. Мутации набора выполняются только из
// оркестратора синхронизации и явных операторских команд; поиск читает
// снимок набора без мутаций.
package service

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/electoreg/roster-module/internal/dedup"
	"github.com/electoreg/roster-module/internal/domain/model"
)

// SearchMode — режим поиска.
type SearchMode string

// Режимы поиска.
const (
	// ModeAll — точное совпадение по удостоверению/телефону, иначе подстрока по всем полям.
	ModeAll SearchMode = "all"
	// ModeIdentity — подстрока только по номеру удостоверения.
	ModeIdentity SearchMode = "identityNumber"
	// ModePhone — подстрока только по телефону.
	ModePhone SearchMode = "phone"
	// ModeName — подстрока по имени, фамилии и их локализованным формам.
	ModeName SearchMode = "name"
)

// ParseMode разбирает режим поиска из строки. Пустая строка — ModeAll.
func ParseMode(s string) (SearchMode, bool) {
	switch SearchMode(s) {
	case ModeAll, ModeIdentity, ModePhone, ModeName:
		return SearchMode(s), true
	case "":
		return ModeAll, true
	default:
		return "", false
	}
}

// Prometheus-метрики набора записей.
var (
	recordsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rm_records",
		Help: "Текущее количество записей в наборе в памяти.",
	})
	dedupRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_dedup_removed_total",
		Help: "Количество записей, удалённых полными проходами дедупликации.",
	})
)

// State — наблюдаемое состояние сессии для presentation-слоя.
type State struct {
	// Loading — идёт синхронизация с реестром
	Loading bool `json:"is_loading"`
	// Retrying — выполняется повторная попытка первой страницы
	Retrying bool `json:"retrying"`
	// ErrorMessage — человекочитаемое сообщение терминальной ошибки ("" = нет)
	ErrorMessage string `json:"error_message,omitempty"`
	// TotalCount — заявленное реестром общее количество записей
	TotalCount int `json:"total_count"`
	// RecordCount — текущее количество записей в памяти
	RecordCount int `json:"record_count"`
	// LastSyncAt — время завершения последней успешной синхронизации
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

// SearchState — наблюдаемое состояние debounce-поиска.
type SearchState struct {
	// Query — текущий запрос оператора
	Query string `json:"query"`
	// Mode — текущий режим поиска
	Mode SearchMode `json:"mode"`
	// Searching — запланирована или выполняется оценка запроса
	Searching bool `json:"is_searching"`
	// Results — результаты последней завершённой оценки
	Results []model.Record `json:"results"`
	// Suggestions — топ-10 ранжированных кандидатов
	Suggestions []model.Record `json:"suggestions"`
}

// Session — владелец набора записей и связанного изменяемого состояния.
type Session struct {
	mu sync.RWMutex

	records       []model.Record
	reportedTotal int

	loading      bool
	retrying     bool
	errorMessage string
	lastSyncAt   *time.Time

	query       string
	mode        SearchMode
	searching   bool
	results     []model.Record
	suggestions []model.Record

	// queryCache — ограниченный кэш результатов поиска; живёт только в рамках
	// набора записей, против которого построен: любое перестроение набора
	// очищает его (обязательное поведение, а не оптимизация).
	queryCache *lru.Cache[string, []model.Record]
}

// NewSession создаёт сессию с кэшем запросов указанного размера.
func NewSession(queryCacheSize int) (*Session, error) {
	cache, err := lru.New[string, []model.Record](queryCacheSize)
	if err != nil {
		return nil, err
	}
	return &Session{
		mode:       ModeAll,
		queryCache: cache,
	}, nil
}

// Snapshot возвращает текущий набор записей.
// Записи неизменяемы, а мутации заменяют срез целиком, поэтому возврат
// среза без копирования безопасен.
func (s *Session) Snapshot() []model.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records
}

// Len возвращает размер набора записей.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// ReportedTotal возвращает заявленное реестром общее количество.
func (s *Session) ReportedTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reportedTotal
}

// ReplaceAll заменяет набор записей целиком и очищает кэш запросов.
func (s *Session) ReplaceAll(records []model.Record, reportedTotal int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	s.reportedTotal = reportedTotal
	s.queryCache.Purge()
	recordsGauge.Set(float64(len(records)))
}

// Append добавляет страницу записей к набору (сама страница уже
// дедуплицирована; межстраничные дубликаты снимаются периодическими
// полными проходами). Кэш запросов очищается: набор изменился.
func (s *Session) Append(records []model.Record) {
	if len(records) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	s.queryCache.Purge()
	recordsGauge.Set(float64(len(s.records)))
}

// DedupNow выполняет полный проход дедупликации по набору.
// Возвращает количество удалённых записей.
func (s *Session) DedupNow() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.records)
	s.records = dedup.Records(s.records)
	removed := before - len(s.records)
	if removed > 0 {
		s.queryCache.Purge()
		dedupRemovedTotal.Add(float64(removed))
		recordsGauge.Set(float64(len(s.records)))
	}
	return removed
}

// Reset сбрасывает сессию в исходное состояние (операция очистки кэша).
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.reportedTotal = 0
	s.loading = false
	s.retrying = false
	s.errorMessage = ""
	s.lastSyncAt = nil
	s.query = ""
	s.mode = ModeAll
	s.searching = false
	s.results = nil
	s.suggestions = nil
	s.queryCache.Purge()
	recordsGauge.Set(0)
}

// --- Состояние синхронизации ---

// SetLoading выставляет признак идущей синхронизации.
func (s *Session) SetLoading(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = v
}

// SetRetrying выставляет признак повторной попытки первой страницы.
func (s *Session) SetRetrying(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retrying = v
}

// SetError выставляет терминальное сообщение об ошибке.
func (s *Session) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorMessage = msg
}

// ClearError снимает сообщение об ошибке.
func (s *Session) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorMessage = ""
}

// MarkSynced фиксирует время завершения успешной синхронизации.
func (s *Session) MarkSynced() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.lastSyncAt = &now
}

// State возвращает снимок наблюдаемого состояния сессии.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Loading:      s.loading,
		Retrying:     s.retrying,
		ErrorMessage: s.errorMessage,
		TotalCount:   s.reportedTotal,
		RecordCount:  len(s.records),
		LastSyncAt:   s.lastSyncAt,
	}
}

// --- Кэш результатов запросов ---

// CachedResults возвращает закэшированный результат по ключу запроса.
func (s *Session) CachedResults(key string) ([]model.Record, bool) {
	return s.queryCache.Get(key)
}

// CacheResults кладёт результат запроса в кэш (с вытеснением старейших
// записей при превышении размера).
func (s *Session) CacheResults(key string, results []model.Record) {
	s.queryCache.Add(key, results)
}

// --- Состояние debounce-поиска ---

// SetSearching фиксирует новый запрос оператора и признак ожидающей оценки.
func (s *Session) SetSearching(query string, mode SearchMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = query
	s.mode = mode
	s.searching = true
}

// PublishSearch публикует результат оценки, если запрос всё ещё актуален.
// Отставший debounce (запрос уже сменился) никогда не публикуется.
func (s *Session) PublishSearch(query string, results, suggestions []model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.query != query {
		return
	}
	s.searching = false
	s.results = results
	s.suggestions = suggestions
}

// SearchState возвращает снимок состояния debounce-поиска.
func (s *Session) SearchState() SearchState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SearchState{
		Query:       s.query,
		Mode:        s.mode,
		Searching:   s.searching,
		Results:     s.results,
		Suggestions: s.suggestions,
	}
}
