// revision.go — модель ревизии истории проекта.
// Ревизии создаются подсистемой версионирования (внешний модуль);
// Collab Module читает их и никогда не изменяет.
package model

import "github.com/google/uuid"

// Revision — неизменяемый снимок истории проекта.
type Revision struct {
	// ID — UUID ревизии
	ID uuid.UUID
	// Account — владелец проекта
	Account string
	// Project — имя проекта
	Project string
	// Branch — ветка, к которой относится ревизия
	Branch string
	// Tag — человекочитаемый неизменяемый псевдоним (опционально, "" = нет)
	Tag string
	// Timestamp — время создания, epoch millis
	Timestamp int64
	// Parent — родительская ревизия (nil для корневой)
	Parent *uuid.UUID
	// Current — множество идентификаторов записей, входящих в снимок
	Current []uuid.UUID
	// Seq — порядок вставки в таблицу. Стабильный tie-break при
	// совпадении Timestamp двух ревизий.
	Seq int64
}
