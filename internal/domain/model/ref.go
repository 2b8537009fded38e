// ref.go — модель федеративной ссылки между проектами.
// Ссылки создаются при сборке федерации (внешний модуль);
// Collab Module читает их и никогда не изменяет.
package model

import "github.com/google/uuid"

// Ref — ссылка из одного проекта на другой.
// ID ссылки входит в множество Current какой-либо ревизии владеющего
// проекта — ссылка видима только через снимок, в который она входит.
type Ref struct {
	// ID — UUID записи ссылки
	ID uuid.UUID
	// Account — владелец проекта, содержащего ссылку
	Account string
	// Project — проект, содержащий ссылку
	Project string
	// TargetAccount — владелец целевого проекта (nil = тот же аккаунт)
	TargetAccount *string
	// TargetProject — имя целевого проекта
	TargetProject string
	// RID — закреплённая ревизия или идентификатор ветки (nil = ветка master)
	RID *uuid.UUID
	// Unique — true: RID указывает на одну неизменяемую ревизию,
	// false: RID интерпретируется как имя ветки (tracking)
	Unique bool
}
