// Пакет registry — HTTP-клиент upstream-реестра избирателей.
// Реестр отдаёт записи постранично, но контракт пагинации нестабилен:
// часть инсталляций понимает {limit, page}, часть — {limit, skip},
// часть отвергает неизвестные параметры. Форма тела ответа также
// варьируется — нормализация вынесена в extract.go.
package registry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/electoreg/roster-module/internal/domain/model"
)

// Page — нормализованная страница ответа реестра.
type Page struct {
	// Records — записи страницы (возможно пустые при неизвестной форме ответа)
	Records []model.Record
	// ReportedTotal — заявленное реестром общее количество записей (0 = не сообщено)
	ReportedTotal int
}

// Client — HTTP-клиент реестра избирателей.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// New создаёт клиент реестра.
// baseURL — базовый URL реестра (например, https://registry.example.org/api/voters).
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// timeout — таймаут каждого HTTP-запроса (из конфигурации RM_REGISTRY_TIMEOUT).
func New(baseURL, caCertPath string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	transport := &http.Transport{
		// Пул idle-соединений: батчи выполняют несколько запросов параллельно
		MaxIdleConnsPerHost: 10,
	}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата реестра: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат реестра добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With(slog.String("component", "registry_client")),
	}, nil
}

// FetchPage запрашивает страницу реестра по номеру: GET <base>?limit=&page=.
func (c *Client) FetchPage(ctx context.Context, page, limit int) (Page, error) {
	q := url.Values{
		"limit": {strconv.Itoa(limit)},
		"page":  {strconv.Itoa(page)},
	}
	return c.fetch(ctx, q)
}

// FetchSkip запрашивает страницу реестра по смещению: GET <base>?limit=&skip=.
// Резервный вариант для инсталляций, не понимающих параметр page.
func (c *Client) FetchSkip(ctx context.Context, skip, limit int) (Page, error) {
	q := url.Values{
		"limit": {strconv.Itoa(limit)},
		"skip":  {strconv.Itoa(skip)},
	}
	return c.fetch(ctx, q)
}

// FetchPlain запрашивает реестр без параметров пагинации: GET <base>.
// Резервный вариант для первой страницы, если реестр отверг limit/page.
func (c *Client) FetchPlain(ctx context.Context) (Page, error) {
	return c.fetch(ctx, nil)
}

// Search выполняет удалённый поиск: GET <base>/search?query=<q>.
// Форма ответа нормализуется теми же правилами, что и страницы реестра.
func (c *Client) Search(ctx context.Context, query string) ([]model.Record, error) {
	reqURL := c.baseURL + "/search?" + url.Values{"query": {query}}.Encode()

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	page := parsePage(body, c.logger)
	return page.Records, nil
}

// fetch выполняет GET к базовому URL с указанными параметрами
// и нормализует тело ответа.
func (c *Client) fetch(ctx context.Context, q url.Values) (Page, error) {
	reqURL := c.baseURL
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return Page{}, err
	}

	return parsePage(body, c.logger), nil
}

// get выполняет GET-запрос и возвращает тело ответа.
// Не-2xx статус считается ошибкой запроса.
func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса к реестру: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации реестра
	if err != nil {
		return nil, fmt.Errorf("запрос к реестру %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Тело читаем частично — только для диагностики
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("реестр вернул статус %d: %s", resp.StatusCode, string(snippet))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("чтение ответа реестра: %w", err)
	}
	return body, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}
