package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SceneRepository — read-only доступ к узлам 3D-сцены.
// CM использует его только для привязки вопроса к объекту:
// по идентификатору узла находится его стабильный shared id.
type SceneRepository interface {
	// GetSharedID возвращает shared id узла сцены или ErrNotFound.
	GetSharedID(ctx context.Context, account, project string, id uuid.UUID) (uuid.UUID, error)
}

// sceneRepo — реализация SceneRepository через pgx.
type sceneRepo struct {
	db DBTX
}

// NewSceneRepository создаёт репозиторий узлов сцены.
func NewSceneRepository(db DBTX) SceneRepository {
	return &sceneRepo{db: db}
}

func (r *sceneRepo) GetSharedID(ctx context.Context, account, project string, id uuid.UUID) (uuid.UUID, error) {
	query := `SELECT shared_id FROM scene_nodes WHERE account = $1 AND project = $2 AND id = $3`

	var sid uuid.UUID
	err := r.db.QueryRow(ctx, query, account, project, id).Scan(&sid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("ошибка получения shared id узла: %w", err)
	}
	return sid, nil
}
