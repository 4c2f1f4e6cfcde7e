// search.go — поисковый движок: нормализация запросов, режимы поиска,
// ранжирование подсказок, фильтры и удалённый fallback для пустых
// локальных результатов.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/electoreg/roster-module/internal/dedup"
	"github.com/electoreg/roster-module/internal/domain/model"
)

// FilterKind — вид фильтра по набору записей.
type FilterKind string

// Виды фильтров.
const (
	// FilterPollingCenter — точное совпадение избирательного участка
	FilterPollingCenter FilterKind = "polling_center"
	// FilterSurname — равенство фамилии без учёта регистра
	FilterSurname FilterKind = "surname"
	// FilterAddress — подстрока в адресных полях
	FilterAddress FilterKind = "address"
)

// Ранжирование подсказок и ограничения поиска.
const (
	// suggestionPool — сколько первых совпадений участвует в ранжировании
	suggestionPool = 100
	// suggestionLimit — сколько подсказок публикуется
	suggestionLimit = 10
	// minQueryLen — минимальная длина нормализованного запроса
	minQueryLen = 2

	scoreExactID       = 100
	scorePrefixID      = 50
	scoreSubstringID   = 25
	scorePrefixName    = 30
	scoreSubstringName = 15
)

// cardNumberPattern — формат номера удостоверения: три буквы и семь цифр.
var cardNumberPattern = regexp.MustCompile(`^[A-Za-z]{3}[0-9]{7}$`)

// Prometheus-метрики поиска.
var (
	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_searches_total",
		Help: "Количество поисковых запросов по источнику результата.",
	}, []string{"source"})
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rm_search_duration_seconds",
		Help:    "Длительность оценки поискового запроса.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
	queryCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_query_cache_hits_total",
		Help: "Попадания в кэш результатов запросов.",
	})
	queryCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_query_cache_misses_total",
		Help: "Промахи кэша результатов запросов.",
	})
)

// SearchService — поиск по набору записей в памяти с удалённым fallback.
type SearchService struct {
	session *Session
	client  RegistryClient
	// resultLimit — верхняя граница количества совпадений одного запроса
	resultLimit int
	logger      *slog.Logger
	debouncer   *Debouncer
}

// NewSearchService создаёт поисковый сервис.
func NewSearchService(session *Session, client RegistryClient, resultLimit int, logger *slog.Logger) *SearchService {
	return &SearchService{
		session:     session,
		client:      client,
		resultLimit: resultLimit,
		logger:      logger.With(slog.String("component", "search")),
		debouncer:   NewDebouncer(),
	}
}

// Normalize нормализует запрос: берёт сегмент до первой запятой
// и обрезает пробельные символы. Сравнение выполняется без учёта регистра,
// но сам текст запроса сохраняется как есть.
func Normalize(raw string) string {
	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

// Search выполняет запрос в указанном режиме и возвращает результаты,
// ранжированные подсказки и источник ("local" или "remote").
// Поиск никогда не возвращает ошибку: отказ удалённого fallback
// деградирует до локального результата.
func (s *SearchService) Search(ctx context.Context, rawQuery string, mode SearchMode) (results, suggestions []model.Record, source string) {
	start := time.Now()
	defer func() { searchDuration.Observe(time.Since(start).Seconds()) }()

	query := Normalize(rawQuery)
	if len([]rune(query)) < minQueryLen {
		return nil, nil, "local"
	}
	lq := strings.ToLower(query)

	cacheKey := string(mode) + "|" + lq
	if cached, ok := s.session.CachedResults(cacheKey); ok {
		queryCacheHits.Inc()
		searchesTotal.WithLabelValues("cache").Inc()
		return cached, rankSuggestions(cached, lq), "local"
	}
	queryCacheMisses.Inc()

	corpus := s.session.Snapshot()
	results = s.scan(corpus, lq, mode)

	// Удалённый fallback: только точные режимы, только при пустом локальном
	// результате и непустом наборе (пустой набор означает, что синхронизация
	// ещё не прошла, и удалённый поиск лишь замаскирует это)
	if len(results) == 0 && len(corpus) > 0 && (mode == ModeIdentity || mode == ModePhone) {
		if remote := s.remoteSearch(ctx, query); len(remote) > 0 {
			// Удалённые результаты не кэшируются: они не производная
			// локального набора
			searchesTotal.WithLabelValues("remote").Inc()
			return remote, rankSuggestions(remote, lq), "remote"
		}
	}

	s.session.CacheResults(cacheKey, results)
	searchesTotal.WithLabelValues("local").Inc()
	return results, rankSuggestions(results, lq), "local"
}

// scan находит совпадения в наборе (порядок набора сохраняется,
// не более resultLimit совпадений).
func (s *SearchService) scan(corpus []model.Record, lq string, mode SearchMode) []model.Record {
	var out []model.Record

	// Режим all: сначала точные совпадения удостоверения/телефона,
	// подстрочный проход — только если точных нет
	if mode == ModeAll {
		for _, r := range corpus {
			if strings.ToLower(r.IdentityNumber) == lq || strings.ToLower(r.Phone) == lq {
				out = append(out, r)
				if len(out) >= s.resultLimit {
					return out
				}
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	for _, r := range corpus {
		if matchRecord(r, lq, mode) {
			out = append(out, r)
			if len(out) >= s.resultLimit {
				break
			}
		}
	}
	return out
}

// matchRecord — подстрочное совпадение записи с запросом в режиме mode.
func matchRecord(r model.Record, lq string, mode SearchMode) bool {
	switch mode {
	case ModeIdentity:
		return contains(r.IdentityNumber, lq)
	case ModePhone:
		return contains(r.Phone, lq)
	case ModeName:
		return contains(r.Name, lq) || contains(r.NameLocal, lq) ||
			contains(r.Surname, lq) || contains(r.SurnameLocal, lq)
	default: // ModeAll
		return contains(r.IdentityNumber, lq) || contains(r.Phone, lq) ||
			contains(r.Name, lq) || contains(r.NameLocal, lq) ||
			contains(r.Surname, lq) || contains(r.SurnameLocal, lq) ||
			contains(r.AddressPrimary, lq) || contains(r.AddressSecondary, lq) ||
			contains(r.ConstituencyCode, lq) || contains(r.PollingCenter, lq)
	}
}

func contains(field, lq string) bool {
	return field != "" && strings.Contains(strings.ToLower(field), lq)
}

// rankSuggestions ранжирует первые suggestionPool совпадений и возвращает
// suggestionLimit лучших. Сортировка стабильна: при равных баллах
// сохраняется порядок набора, поэтому результат детерминирован.
func rankSuggestions(matches []model.Record, lq string) []model.Record {
	if len(matches) == 0 {
		return nil
	}
	pool := matches
	if len(pool) > suggestionPool {
		pool = pool[:suggestionPool]
	}

	type scored struct {
		r     model.Record
		score int
	}
	ranked := make([]scored, 0, len(pool))
	for _, r := range pool {
		ranked = append(ranked, scored{r: r, score: scoreRecord(r, lq)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	n := len(ranked)
	if n > suggestionLimit {
		n = suggestionLimit
	}
	out := make([]model.Record, 0, n)
	for _, s := range ranked[:n] {
		out = append(out, s.r)
	}
	return out
}

// scoreRecord — балл записи относительно запроса. Удостоверение/телефон и
// имена оцениваются независимо и складываются; внутри группы действует
// только старший из применимых уровней.
func scoreRecord(r model.Record, lq string) int {
	id := strings.ToLower(r.IdentityNumber)
	phone := strings.ToLower(r.Phone)

	score := 0
	switch {
	case (id != "" && id == lq) || (phone != "" && phone == lq):
		score += scoreExactID
	case (id != "" && strings.HasPrefix(id, lq)) || (phone != "" && strings.HasPrefix(phone, lq)):
		score += scorePrefixID
	case strings.Contains(id, lq) && id != "" || strings.Contains(phone, lq) && phone != "":
		score += scoreSubstringID
	}

	names := []string{r.Name, r.NameLocal, r.Surname, r.SurnameLocal}
	namePrefix, nameSubstring := false, false
	for _, n := range names {
		if n == "" {
			continue
		}
		ln := strings.ToLower(n)
		if strings.HasPrefix(ln, lq) {
			namePrefix = true
			break
		}
		if strings.Contains(ln, lq) {
			nameSubstring = true
		}
	}
	switch {
	case namePrefix:
		score += scorePrefixName
	case nameSubstring:
		score += scoreSubstringName
	}

	return score
}

// remoteSearch запрашивает удалённый реестр. Пустой ответ на запрос,
// похожий на номер удостоверения в нижнем регистре, повторяется
// в верхнем регистре. Сетевой отказ — не ошибка: возвращается nil.
func (s *SearchService) remoteSearch(ctx context.Context, query string) []model.Record {
	records, err := s.client.Search(ctx, query)
	if err != nil {
		s.logger.Warn("Удалённый поиск недоступен, используется локальный результат",
			slog.String("error", err.Error()),
		)
		return nil
	}

	if len(records) == 0 && cardNumberPattern.MatchString(query) {
		upper := strings.ToUpper(query)
		if upper != query {
			records, err = s.client.Search(ctx, upper)
			if err != nil {
				s.logger.Warn("Повтор удалённого поиска в верхнем регистре не удался",
					slog.String("error", err.Error()),
				)
				return nil
			}
		}
	}

	return dedup.Records(records)
}

// Filter возвращает записи набора, удовлетворяющие фильтру.
// Результат дедуплицирован.
func (s *SearchService) Filter(kind FilterKind, value string) ([]model.Record, error) {
	corpus := s.session.Snapshot()
	var out []model.Record

	switch kind {
	case FilterPollingCenter:
		for _, r := range corpus {
			if r.PollingCenter == value {
				out = append(out, r)
			}
		}
	case FilterSurname:
		lv := strings.ToLower(value)
		for _, r := range corpus {
			if strings.ToLower(r.Surname) == lv || strings.ToLower(r.SurnameLocal) == lv {
				out = append(out, r)
			}
		}
	case FilterAddress:
		lv := strings.ToLower(value)
		for _, r := range corpus {
			if contains(r.AddressPrimary, lv) || contains(r.AddressSecondary, lv) {
				out = append(out, r)
			}
		}
	default:
		return nil, fmt.Errorf("неизвестный вид фильтра: %q", kind)
	}

	return dedup.Records(out), nil
}

// SetQuery — команда оператора: фиксирует запрос и планирует его отложенную
// оценку. Каждый новый вызов отменяет ещё не выполненную оценку предыдущего
// (побеждает последний запрос).
func (s *SearchService) SetQuery(query string, mode SearchMode) {
	s.session.SetSearching(query, mode)
	s.debouncer.Schedule(DelayFor(query), func() {
		results, suggestions, _ := s.Search(context.Background(), query, mode)
		s.session.PublishSearch(query, results, suggestions)
	})
}

// Stop останавливает отложенные оценки (завершение работы сервиса).
func (s *SearchService) Stop() {
	s.debouncer.Stop()
}
