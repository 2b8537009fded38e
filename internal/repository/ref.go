package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/collab-module/internal/domain/model"
)

// refColumns — список столбцов таблицы refs для SELECT-запросов.
const refColumns = `id, account, project, target_account, target_project, rid, is_unique`

// RefRepository — read-only доступ к федеративным ссылкам.
// Ссылка видима только через множество Current конкретной ревизии,
// поэтому единственная нужная операция — выборка по идентификаторам.
type RefRepository interface {
	// ListByIDs возвращает ссылки проекта с id из ids.
	// Записи множества Current, не являющиеся ссылками, просто
	// не попадают в результат — это не ошибка.
	ListByIDs(ctx context.Context, account, project string, ids []uuid.UUID) ([]*model.Ref, error)
}

// refRepo — реализация RefRepository через pgx.
type refRepo struct {
	db DBTX
}

// NewRefRepository создаёт репозиторий федеративных ссылок.
func NewRefRepository(db DBTX) RefRepository {
	return &refRepo{db: db}
}

func (r *refRepo) ListByIDs(ctx context.Context, account, project string, ids []uuid.UUID) ([]*model.Ref, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT %s FROM refs
		WHERE account = $1 AND project = $2 AND id = ANY($3)
		ORDER BY id`,
		refColumns,
	)

	rows, err := r.db.Query(ctx, query, account, project, ids)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки ссылок: %w", err)
	}
	defer rows.Close()

	var result []*model.Ref
	for rows.Next() {
		ref := &model.Ref{}
		if err := rows.Scan(
			&ref.ID, &ref.Account, &ref.Project,
			&ref.TargetAccount, &ref.TargetProject, &ref.RID, &ref.Unique,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования ссылки: %w", err)
		}
		result = append(result, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации ссылок: %w", err)
	}
	return result, nil
}
