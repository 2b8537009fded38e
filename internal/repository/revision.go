package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/collab-module/internal/domain/model"
)

// revisionColumns — список столбцов таблицы revisions для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const revisionColumns = `id, account, project, branch, tag, timestamp_ms,
	parent, current, seq`

// RevisionRepository — read-only доступ к истории ревизий проекта.
// Таблица revisions принадлежит подсистеме версионирования; CM никогда
// не создаёт, не изменяет и не удаляет ревизии.
type RevisionRepository interface {
	// GetByID возвращает ревизию по UUID или ErrNotFound.
	GetByID(ctx context.Context, account, project string, id uuid.UUID) (*model.Revision, error)
	// GetByTag возвращает ревизию по неизменяемому тегу или ErrNotFound.
	GetByTag(ctx context.Context, account, project, tag string) (*model.Revision, error)
	// GetLatestByBranch возвращает самую свежую ревизию ветки
	// (timestamp desc, при равенстве — порядок вставки) или ErrNotFound.
	GetLatestByBranch(ctx context.Context, account, project, branch string) (*model.Revision, error)
	// ListIDsAtOrBefore возвращает идентификаторы всех ревизий проекта
	// с timestamp_ms <= ts. Пустой срез — не ошибка.
	ListIDsAtOrBefore(ctx context.Context, account, project string, ts int64) ([]uuid.UUID, error)
	// NextAfter возвращает ближайшую ревизию строго после ts
	// (timestamp asc, при равенстве — порядок вставки) или ErrNotFound.
	NextAfter(ctx context.Context, account, project string, ts int64) (*model.Revision, error)
}

// revisionRepo — реализация RevisionRepository через pgx.
type revisionRepo struct {
	db DBTX
}

// NewRevisionRepository создаёт репозиторий ревизий.
func NewRevisionRepository(db DBTX) RevisionRepository {
	return &revisionRepo{db: db}
}

func (r *revisionRepo) GetByID(ctx context.Context, account, project string, id uuid.UUID) (*model.Revision, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM revisions WHERE account = $1 AND project = $2 AND id = $3`,
		revisionColumns,
	)
	return r.scanOne(r.db.QueryRow(ctx, query, account, project, id), "получения ревизии")
}

func (r *revisionRepo) GetByTag(ctx context.Context, account, project, tag string) (*model.Revision, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM revisions WHERE account = $1 AND project = $2 AND tag = $3`,
		revisionColumns,
	)
	return r.scanOne(r.db.QueryRow(ctx, query, account, project, tag), "получения ревизии по тегу")
}

func (r *revisionRepo) GetLatestByBranch(ctx context.Context, account, project, branch string) (*model.Revision, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM revisions
		WHERE account = $1 AND project = $2 AND branch = $3
		ORDER BY timestamp_ms DESC, seq DESC
		LIMIT 1`,
		revisionColumns,
	)
	return r.scanOne(r.db.QueryRow(ctx, query, account, project, branch), "получения головы ветки")
}

func (r *revisionRepo) ListIDsAtOrBefore(ctx context.Context, account, project string, ts int64) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM revisions
		WHERE account = $1 AND project = $2 AND timestamp_ms <= $3
		ORDER BY timestamp_ms ASC, seq ASC`

	rows, err := r.db.Query(ctx, query, account, project, ts)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки ревизий окна: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования идентификатора ревизии: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации ревизий окна: %w", err)
	}
	return ids, nil
}

func (r *revisionRepo) NextAfter(ctx context.Context, account, project string, ts int64) (*model.Revision, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM revisions
		WHERE account = $1 AND project = $2 AND timestamp_ms > $3
		ORDER BY timestamp_ms ASC, seq ASC
		LIMIT 1`,
		revisionColumns,
	)
	return r.scanOne(r.db.QueryRow(ctx, query, account, project, ts), "получения следующей ревизии")
}

// scanOne сканирует одну ревизию, транслируя pgx.ErrNoRows в ErrNotFound.
func (r *revisionRepo) scanOne(row pgx.Row, op string) (*model.Revision, error) {
	rev := &model.Revision{}
	err := row.Scan(
		&rev.ID, &rev.Account, &rev.Project, &rev.Branch, &rev.Tag,
		&rev.Timestamp, &rev.Parent, &rev.Current, &rev.Seq,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка %s: %w", op, err)
	}
	return rev, nil
}
