// uid.go — кодек идентификаторов Collab Module.
// Все доменные записи (ревизии, вопросы, ссылки) используют 128-битные
// UUID; наружу они отдаются в каноническом строковом представлении
// (lowercase, с дефисами). Кодек двусторонний и стабильный:
// ParseUID(FormatUID(id)) == id для любого id.
package model

import "github.com/google/uuid"

// FormatUID возвращает каноническое строковое представление идентификатора.
func FormatUID(id uuid.UUID) string {
	return id.String()
}

// ParseUID разбирает каноническое строковое представление.
// Возвращает ошибку, если строка не является валидным UUID.
func ParseUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// IsUID сообщает, является ли строка синтаксически валидным UUID.
// Используется резолвером ревизий: UUID → поиск по идентификатору,
// любая другая строка — поиск по тегу или ветке.
func IsUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
