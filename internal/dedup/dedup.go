// Пакет dedup — дедупликация записей реестра по идентификационным ключам.
// Чистые функции без зависимостей; вызываются на каждой границе, где
// объединяются записи разного происхождения: страницы реестра, чтение кэша,
// результаты поиска и фильтров, ответы удалённого поиска.
package dedup

import (
	"strings"

	"github.com/electoreg/roster-module/internal/domain/model"
)

// Keys возвращает доступные идентификационные ключи записи, по ярусам:
// внутренний ID реестра, номер удостоверения, составной ключ из
// нормализованных имени, телефона, округа и части списка. Пустые ярусы
// опускаются. Префиксы исключают коллизии между ярусами.
// Две записи, совпавшие хотя бы по одному ярусу, считаются одним человеком:
// реестр встречается с дублями, у которых совпадает номер удостоверения,
// но различаются внутренние ID.
func Keys(r model.Record) []string {
	keys := make([]string, 0, 3)
	if r.InternalID != "" {
		keys = append(keys, "id|"+r.InternalID)
	}
	if r.IdentityNumber != "" {
		keys = append(keys, "card|"+r.IdentityNumber)
	}
	if r.Name != "" || r.Phone != "" || r.ConstituencyCode != "" || r.ListPartNumber != "" {
		keys = append(keys, "comp|"+strings.ToLower(r.Name)+"|"+r.Phone+"|"+r.ConstituencyCode+"|"+r.ListPartNumber)
	}
	return keys
}

// Records удаляет дубликаты за один проход: запись отбрасывается, если любой
// из её ключей уже встречался; у выжившей записи регистрируются все ключи.
// Сохраняется первое вхождение и исходный относительный порядок выживших.
// Исходный срез не изменяется.
func Records(rs []model.Record) []model.Record {
	if len(rs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(rs))
	out := make([]model.Record, 0, len(rs))
	for _, r := range rs {
		keys := Keys(r)
		dup := false
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
		out = append(out, r)
	}
	return out
}
