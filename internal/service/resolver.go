// resolver.go — резолвер ревизий: отображение идентификатора,
// тега или имени ветки в конкретную запись ревизии.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/collab-module/internal/domain/model"
	"github.com/bigkaa/goartstore/collab-module/internal/repository"
)

// Ошибки резолвера.
var (
	// ErrHistoryNotFound — явно запрошенная ревизия/тег/ветка не существует.
	ErrHistoryNotFound = errors.New("ревизия не найдена")
)

// ResolverService — резолвер ревизий.
// Синтаксически валидный UUID резолвится поиском по идентификатору,
// любая другая строка — поиском по тегу; ветка — самой свежей ревизией
// ветки. Все операции read-only.
type ResolverService struct {
	revRepo repository.RevisionRepository
	cache   *RevisionCache
	logger  *slog.Logger
}

// NewResolverService создаёт резолвер ревизий.
func NewResolverService(
	revRepo repository.RevisionRepository,
	cache *RevisionCache,
	logger *slog.Logger,
) *ResolverService {
	return &ResolverService{
		revRepo: revRepo,
		cache:   cache,
		logger:  logger.With(slog.String("component", "resolver_service")),
	}
}

// Lookup возвращает ревизию по ветке либо по идентификатору/тегу.
// branch имеет приоритет; если branch пуст, revision интерпретируется
// как UUID или тег. Отсутствие ревизии — НЕ ошибка: возвращается
// (nil, nil). Так работает обход федерации: несуществующая ветка
// листа даёт ноль вопросов.
func (s *ResolverService) Lookup(ctx context.Context, account, project, branch, revision string) (*model.Revision, error) {
	var (
		rev *model.Revision
		err error
	)

	switch {
	case branch != "":
		// Головы веток мутабельны — без кэша
		rev, err = s.revRepo.GetLatestByBranch(ctx, account, project, branch)
	case revision != "":
		rev, err = s.lookupImmutable(ctx, account, project, revision)
	default:
		return nil, nil
	}

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("резолв ревизии: %w", err)
	}
	return rev, nil
}

// Require возвращает ревизию по явно запрошенному идентификатору или
// тегу. Отсутствие — ошибка ErrHistoryNotFound (в отличие от Lookup).
func (s *ResolverService) Require(ctx context.Context, account, project, revision string) (*model.Revision, error) {
	rev, err := s.lookupImmutable(ctx, account, project, revision)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrHistoryNotFound
		}
		return nil, fmt.Errorf("резолв ревизии: %w", err)
	}
	return rev, nil
}

// lookupImmutable резолвит UUID или тег через LRU-кэш.
// Результаты неизменяемы, поэтому кэширование безопасно.
func (s *ResolverService) lookupImmutable(ctx context.Context, account, project, revision string) (*model.Revision, error) {
	key := account + "/" + project + "/" + revision
	if rev, ok := s.cache.Get(key); ok {
		return rev, nil
	}

	var (
		rev *model.Revision
		err error
	)
	if model.IsUID(revision) {
		id, _ := model.ParseUID(revision)
		rev, err = s.revRepo.GetByID(ctx, account, project, id)
	} else {
		rev, err = s.revRepo.GetByTag(ctx, account, project, revision)
	}
	if err != nil {
		return nil, err
	}

	s.cache.Set(key, rev)
	return rev, nil
}
