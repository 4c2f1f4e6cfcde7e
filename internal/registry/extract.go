// extract.go — нормализация формы ответа реестра.
// Реестр в разных инсталляциях отдаёт записи как «голый» массив либо
// завёрнутыми в один из известных ключей, а общее количество — под одним
// из нескольких имён поля. Вся вариативность изолирована здесь: упорядоченный
// список правил извлечения, применяемых по очереди, вместо разбросанных
// по коду проверок типов.
package registry

import (
	"encoding/json"
	"log/slog"

	"github.com/electoreg/roster-module/internal/domain/model"
)

// recordKeys — ключи-обёртки массива записей, в порядке приоритета.
var recordKeys = []string{"data", "voters", "results"}

// totalKeys — имена поля общего количества записей, в порядке приоритета.
var totalKeys = []string{"totalCount", "total", "count"}

// parsePage нормализует тело ответа реестра в Page.
// Неопознанная форма тела не является ошибкой: такой ответ трактуется как
// ноль записей (ShapeMismatch — деградация, а не отказ), с предупреждением в лог.
func parsePage(body []byte, logger *slog.Logger) Page {
	// Правило 1: голый массив записей
	var raw []model.Record
	if err := json.Unmarshal(body, &raw); err == nil {
		return Page{Records: raw}
	}

	// Правило 2: объект-обёртка с массивом под известным ключом
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err != nil {
		logger.Warn("Неопознанная форма ответа реестра, трактуется как ноль записей",
			slog.Int("body_len", len(body)),
		)
		return Page{}
	}

	page := Page{}
	for _, key := range recordKeys {
		rawList, ok := wrapper[key]
		if !ok {
			continue
		}
		var records []model.Record
		if err := json.Unmarshal(rawList, &records); err != nil {
			logger.Warn("Массив записей под известным ключом не разобран",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			continue
		}
		page.Records = records
		break
	}

	// Общее количество — первое из известных числовых полей
	for _, key := range totalKeys {
		rawTotal, ok := wrapper[key]
		if !ok {
			continue
		}
		var total float64
		if err := json.Unmarshal(rawTotal, &total); err != nil {
			continue
		}
		page.ReportedTotal = int(total)
		break
	}

	if page.Records == nil && len(wrapper) > 0 {
		logger.Warn("В ответе реестра не найден массив записей",
			slog.Int("keys", len(wrapper)),
		)
	}

	return page
}
