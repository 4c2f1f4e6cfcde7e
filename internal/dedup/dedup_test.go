package dedup

import (
	"testing"

	"github.com/electoreg/roster-module/internal/domain/model"
)

// TestKeys_Tiers проверяет состав ярусов идентификационных ключей.
func TestKeys_Tiers(t *testing.T) {
	// Все ярусы заполнены
	r := model.Record{InternalID: "int-1", IdentityNumber: "ABC1234567", Name: "ИВАН", Phone: "9876543210", ConstituencyCode: "77", ListPartNumber: "4"}
	got := Keys(r)
	want := []string{"id|int-1", "card|ABC1234567", "comp|иван|9876543210|77|4"}
	if len(got) != len(want) {
		t.Fatalf("Keys вернул %d ключей, ожидалось %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keys[%d] = %q, ожидался %q", i, got[i], want[i])
		}
	}

	// Пустые ярусы опускаются
	r = model.Record{IdentityNumber: "ABC1234567"}
	got = Keys(r)
	if len(got) != 1 || got[0] != "card|ABC1234567" {
		t.Errorf("Keys = %v, ожидался единственный ключ card|ABC1234567", got)
	}

	// Запись без идентификационных признаков не имеет ключей
	if got := Keys(model.Record{Age: 30}); len(got) != 0 {
		t.Errorf("Keys = %v, ожидался пустой набор", got)
	}
}

// TestRecords_FirstSeenWins проверяет, что при равных ключах выживает
// запись с меньшим исходным индексом и порядок сохраняется.
func TestRecords_FirstSeenWins(t *testing.T) {
	rs := []model.Record{
		{IdentityNumber: "X1", Name: "Первый"},
		{IdentityNumber: "X2", Name: "Второй"},
		{IdentityNumber: "X1", Name: "Дубликат"},
		{IdentityNumber: "X3", Name: "Третий"},
	}

	out := Records(rs)
	if len(out) != 3 {
		t.Fatalf("len = %d, ожидался 3", len(out))
	}
	if out[0].Name != "Первый" || out[1].Name != "Второй" || out[2].Name != "Третий" {
		t.Errorf("порядок нарушен: %v", out)
	}
}

// TestRecords_SameCardDifferentInternalID проверяет слияние двух страниц:
// записи с одинаковым номером удостоверения, но разными внутренними ID —
// один человек, выживает запись первой страницы.
func TestRecords_SameCardDifferentInternalID(t *testing.T) {
	rs := []model.Record{
		{InternalID: "p1-rec", IdentityNumber: "X1", Name: "Из первой страницы"},
		{InternalID: "p2-rec", IdentityNumber: "X1", Name: "Из второй страницы"},
	}
	out := Records(rs)
	if len(out) != 1 {
		t.Fatalf("выжило %d записей, ожидалась ровно 1", len(out))
	}
	if out[0].InternalID != "p1-rec" {
		t.Errorf("выжила запись %q, ожидалась запись первой страницы", out[0].InternalID)
	}
}

// TestRecords_AnyTierMatches проверяет срабатывание дубликата по любому ярусу:
// совпадение составного ключа при разных номерах удостоверений.
func TestRecords_AnyTierMatches(t *testing.T) {
	rs := []model.Record{
		{IdentityNumber: "A1", Name: "Пётр", Phone: "79000000001"},
		{IdentityNumber: "A2", Name: "пётр", Phone: "79000000001"},
	}
	out := Records(rs)
	if len(out) != 1 {
		t.Fatalf("выжило %d записей, ожидалась ровно 1", len(out))
	}
	if out[0].IdentityNumber != "A1" {
		t.Errorf("выжила запись %q, ожидалась A1", out[0].IdentityNumber)
	}
}

// TestRecords_NoKeysKept проверяет, что записи без идентификационных
// признаков не схлопываются между собой.
func TestRecords_NoKeysKept(t *testing.T) {
	rs := []model.Record{
		{Age: 30},
		{Age: 40},
	}
	if out := Records(rs); len(out) != 2 {
		t.Errorf("выжило %d записей, ожидалось 2", len(out))
	}
}

// TestRecords_Idempotent проверяет идемпотентность: dedup(dedup(S)) == dedup(S)
// и |dedup(S)| <= |S|.
func TestRecords_Idempotent(t *testing.T) {
	rs := []model.Record{
		{InternalID: "a"},
		{InternalID: "b"},
		{InternalID: "a"},
		{Name: "Пётр", Phone: "1"},
		{Name: "пётр", Phone: "1"},
	}

	once := Records(rs)
	if len(once) > len(rs) {
		t.Fatalf("|dedup(S)| = %d > |S| = %d", len(once), len(rs))
	}

	twice := Records(once)
	if len(twice) != len(once) {
		t.Fatalf("повторная дедупликация изменила размер: %d != %d", len(twice), len(once))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("повторная дедупликация изменила порядок на позиции %d", i)
		}
	}
}

// TestRecords_Empty проверяет поведение на пустом входе.
func TestRecords_Empty(t *testing.T) {
	if out := Records(nil); len(out) != 0 {
		t.Errorf("ожидался пустой результат, получено %d записей", len(out))
	}
}
