package repository

import (
	"context"
	"fmt"
)

// PermissionRepository — проверка прав чтения проекта.
// Таблица project_permissions принадлежит Admin Module; CM читает её
// при агрегации федерации: лист без права чтения молча даёт ноль вопросов.
type PermissionRepository interface {
	// HasReadAccess сообщает, может ли username читать проект.
	// Владелец аккаунта всегда имеет доступ к своим проектам.
	HasReadAccess(ctx context.Context, username, account, project string) (bool, error)
}

// permissionRepo — реализация PermissionRepository через pgx.
type permissionRepo struct {
	db DBTX
}

// NewPermissionRepository создаёт репозиторий прав доступа.
func NewPermissionRepository(db DBTX) PermissionRepository {
	return &permissionRepo{db: db}
}

func (r *permissionRepo) HasReadAccess(ctx context.Context, username, account, project string) (bool, error) {
	// Владелец аккаунта — всегда
	if username == account {
		return true, nil
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM project_permissions
			WHERE account = $1 AND project = $2 AND username = $3
		)`

	var granted bool
	if err := r.db.QueryRow(ctx, query, account, project, username).Scan(&granted); err != nil {
		return false, fmt.Errorf("ошибка проверки права чтения: %w", err)
	}
	return granted, nil
}
