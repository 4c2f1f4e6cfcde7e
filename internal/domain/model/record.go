// Пакет model — доменные модели Roster Module.
// Record — запись избирателя из внешнего реестра.
package model

// Record — одна запись реестра избирателей.
// После получения из реестра запись считается неизменяемой (value object):
// обновление — только заменой в владеющей коллекции, без мутации полей.
// JSON-теги используются и для ответа upstream-реестра, и для локального кэша.
type Record struct {
	// InternalID — внутренний идентификатор записи в upstream-реестре (опционально)
	InternalID string `json:"id,omitempty"`
	// IdentityNumber — номер удостоверения избирателя (внешний идентификатор)
	IdentityNumber string `json:"card_no,omitempty"`
	// Name — имя
	Name string `json:"name"`
	// NameLocal — имя на локальном языке (опционально)
	NameLocal string `json:"name_local,omitempty"`
	// Surname — фамилия (опционально)
	Surname string `json:"surname,omitempty"`
	// SurnameLocal — фамилия на локальном языке (опционально)
	SurnameLocal string `json:"surname_local,omitempty"`
	// Phone — номер телефона (опционально)
	Phone string `json:"phone,omitempty"`
	// AddressPrimary — основная строка адреса (опционально)
	AddressPrimary string `json:"address1,omitempty"`
	// AddressSecondary — дополнительная строка адреса (опционально)
	AddressSecondary string `json:"address2,omitempty"`
	// HouseNumber — номер дома (опционально)
	HouseNumber string `json:"house_no,omitempty"`
	// ConstituencyCode — код избирательного округа (опционально)
	ConstituencyCode string `json:"constituency_code,omitempty"`
	// ListPartNumber — номер части списка избирателей (опционально)
	ListPartNumber string `json:"list_part,omitempty"`
	// PollingCenter — избирательный участок (опционально)
	PollingCenter string `json:"polling_center,omitempty"`
	// PollingArea — территория участка (опционально)
	PollingArea string `json:"polling_area,omitempty"`
	// Age — возраст (опционально, 0 = не задан)
	Age int `json:"age,omitempty"`
	// Gender — пол (опционально)
	Gender string `json:"gender,omitempty"`
}
