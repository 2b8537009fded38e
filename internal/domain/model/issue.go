// issue.go — доменная модель вопроса (issue) и его очищенное
// представление для API. Вопрос — аннотированная точка обзора 3D-модели
// с потоком комментариев, привязанная к ревизии истории проекта.
package model

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// ScreenshotSaved — маркер-заглушка вместо тела скриншота в ответе
// операции создания: бинарные данные сохранены, но обратно не отдаются.
const ScreenshotSaved = "saved"

// Viewpoint — дескриптор точки обзора 3D-сцены.
// Хранится как jsonb; имена полей совместимы с фронтендом вьювера.
type Viewpoint struct {
	Up             []float64 `json:"up,omitempty"`
	Position       []float64 `json:"position,omitempty"`
	LookAt         []float64 `json:"look_at,omitempty"`
	ViewDir        []float64 `json:"view_dir,omitempty"`
	Right          []float64 `json:"right,omitempty"`
	UnityHeight    float64   `json:"unityHeight,omitempty"`
	FOV            float64   `json:"fov,omitempty"`
	AspectRatio    float64   `json:"aspect_ratio,omitempty"`
	Far            float64   `json:"far,omitempty"`
	Near           float64   `json:"near,omitempty"`
	ClippingPlanes []any     `json:"clippingPlanes,omitempty"`
}

// Comment — один комментарий в потоке вопроса.
// Sealed=true делает комментарий неизменяемым: правка и удаление
// отклоняются. RevID фиксирует ревизию, при которой комментарий оставлен.
type Comment struct {
	Owner   string     `json:"owner"`
	Comment string     `json:"comment"`
	Created int64      `json:"created"`
	Sealed  bool       `json:"sealed,omitempty"`
	RevID   *uuid.UUID `json:"rev_id,omitempty"`
}

// Issue — вопрос, привязанный к проекту и (опционально) к ревизии.
// RevID задаётся один раз при создании и больше не меняется.
// RevID == nil — legacy-вопрос, созданный до появления ревизий;
// такие вопросы отбираются по временному окну (см. service.FilterService).
type Issue struct {
	// ID — UUID вопроса
	ID uuid.UUID
	// Account — владелец проекта
	Account string
	// Project — имя проекта
	Project string
	// Name — заголовок вопроса (обязателен)
	Name string
	// Number — порядковый номер в проекте (count+1 при создании)
	Number int
	// Created — время создания, epoch millis
	Created int64
	// Owner — автор вопроса
	Owner string
	// Closed — вопрос закрыт
	Closed bool
	// ClosedTime — время закрытия, epoch millis (nil = открыт/переоткрыт)
	ClosedTime *int64
	// Priority — приоритет (свободная строка: low, medium, high)
	Priority string
	// RevID — ревизия, к которой привязан вопрос (nil = legacy)
	RevID *uuid.UUID
	// Parent — shared id 3D-объекта, который аннотирует вопрос
	Parent *uuid.UUID
	// ObjectID — исходный идентификатор 3D-объекта, указанный при создании
	ObjectID *uuid.UUID
	// Scale, Position, Norm — геометрия маркера на модели
	Scale    *float64
	Position []float64
	Norm     []float64
	// CreatorRole — роль автора на момент создания
	CreatorRole string
	// AssignedRoles — роли, назначенные на вопрос
	AssignedRoles []string
	// Viewpoint — точка обзора (nil допустим, но для вопросов с
	// комментариями это data-integrity проблема — экспорт BCF
	// деградирует мягко, без прерывания архива)
	Viewpoint *Viewpoint
	// Comments — упорядоченный поток комментариев
	Comments []Comment
	// Scribble — бинарный набросок поверх модели (nil = нет
	// либо исключён проекцией выборки)
	Scribble []byte
	// Screenshot — бинарный снимок экрана (nil = нет либо исключён
	// проекцией выборки)
	Screenshot []byte
}

// CleanedComment — комментарий в представлении API.
type CleanedComment struct {
	Owner   string `json:"owner"`
	Comment string `json:"comment"`
	Created int64  `json:"created"`
	Sealed  bool   `json:"sealed,omitempty"`
	RevID   string `json:"rev_id,omitempty"`
}

// CleanedIssue — очищенное представление вопроса для API.
// Правила присутствия полей:
//   - идентификаторы — всегда, в каноническом строковом виде;
//   - account/project — всегда (проставляются из записи);
//   - rev_id/parent/closed_time — только если заданы;
//   - scribble/screenshot — base64 только если бинарные данные
//     присутствовали в выборке; в ответе создания screenshot
//     заменяется маркером ScreenshotSaved.
type CleanedIssue struct {
	ID            string           `json:"_id"`
	Account       string           `json:"account"`
	Project       string           `json:"project"`
	Name          string           `json:"name"`
	Number        int              `json:"number"`
	Created       int64            `json:"created"`
	Owner         string           `json:"owner"`
	Closed        bool             `json:"closed"`
	ClosedTime    *int64           `json:"closed_time,omitempty"`
	Priority      string           `json:"priority,omitempty"`
	RevID         string           `json:"rev_id,omitempty"`
	Parent        string           `json:"parent,omitempty"`
	Scale         *float64         `json:"scale,omitempty"`
	Position      []float64        `json:"position,omitempty"`
	Norm          []float64        `json:"norm,omitempty"`
	CreatorRole   string           `json:"creator_role,omitempty"`
	AssignedRoles []string         `json:"assigned_roles,omitempty"`
	Viewpoint     *Viewpoint       `json:"viewpoint,omitempty"`
	Comments      []CleanedComment `json:"comments"`
	Scribble      string           `json:"scribble,omitempty"`
	Screenshot    string           `json:"screenshot,omitempty"`
}

// Clean возвращает очищенное представление вопроса:
// UUID → канонические строки, бинарные вложения → base64 (если есть).
func (i *Issue) Clean() *CleanedIssue {
	c := &CleanedIssue{
		ID:            FormatUID(i.ID),
		Account:       i.Account,
		Project:       i.Project,
		Name:          i.Name,
		Number:        i.Number,
		Created:       i.Created,
		Owner:         i.Owner,
		Closed:        i.Closed,
		ClosedTime:    i.ClosedTime,
		Priority:      i.Priority,
		Scale:         i.Scale,
		Position:      i.Position,
		Norm:          i.Norm,
		CreatorRole:   i.CreatorRole,
		AssignedRoles: i.AssignedRoles,
		Viewpoint:     i.Viewpoint,
		Comments:      make([]CleanedComment, 0, len(i.Comments)),
	}

	if i.RevID != nil {
		c.RevID = FormatUID(*i.RevID)
	}
	if i.Parent != nil {
		c.Parent = FormatUID(*i.Parent)
	}

	for _, cm := range i.Comments {
		cleaned := CleanedComment{
			Owner:   cm.Owner,
			Comment: cm.Comment,
			Created: cm.Created,
			Sealed:  cm.Sealed,
		}
		if cm.RevID != nil {
			cleaned.RevID = FormatUID(*cm.RevID)
		}
		c.Comments = append(c.Comments, cleaned)
	}

	if len(i.Scribble) > 0 {
		c.Scribble = base64.StdEncoding.EncodeToString(i.Scribble)
	}
	if len(i.Screenshot) > 0 {
		c.Screenshot = base64.StdEncoding.EncodeToString(i.Screenshot)
	}

	return c
}
