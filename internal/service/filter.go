// filter.go — временной фильтр: построение окна выборки вопросов
// для снимка конкретной ревизии.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goartstore/collab-module/internal/domain/model"
	"github.com/bigkaa/goartstore/collab-module/internal/repository"
)

// FilterService — построитель окна ревизии.
// Для ревизии R с timestamp T окно пропускает:
//   - вопросы с rev_id из множества ревизий с timestamp <= T;
//   - legacy-вопросы (без rev_id), созданные строго раньше ближайшей
//     ревизии после T — исторически вопросы до появления ревизий
//     относятся к окну, в которое хронологически попали. Если ревизий
//     после T нет, верхняя граница для legacy-вопросов отсутствует.
type FilterService struct {
	revRepo repository.RevisionRepository
	logger  *slog.Logger
}

// NewFilterService создаёт построитель окна ревизии.
func NewFilterService(revRepo repository.RevisionRepository, logger *slog.Logger) *FilterService {
	return &FilterService{
		revRepo: revRepo,
		logger:  logger.With(slog.String("component", "filter_service")),
	}
}

// BuildWindow строит окно выборки для ревизии rev.
// Выполняет два упорядоченных запроса к таблице ревизий (строго после T,
// не позже T); оба корректны и для проекта без единой ревизии — тогда
// окно вырождается в «rev_id отсутствует, без верхней границы».
func (s *FilterService) BuildWindow(ctx context.Context, account, project string, rev *model.Revision) (*repository.RevisionWindow, error) {
	window := &repository.RevisionWindow{}

	// Ближайшая ревизия строго после T — верхняя граница для legacy-вопросов
	next, err := s.revRepo.NextAfter(ctx, account, project, rev.Timestamp)
	switch {
	case err == nil:
		ts := next.Timestamp
		window.LegacyBefore = &ts
		s.logger.Debug("Найдена следующая ревизия",
			slog.String("rev_id", model.FormatUID(next.ID)),
			slog.Int64("timestamp", ts),
		)
	case errors.Is(err, repository.ErrNotFound):
		// Ревизий после T нет — legacy-вопросы без верхней границы
	default:
		return nil, fmt.Errorf("поиск следующей ревизии: %w", err)
	}

	// Все ревизии не позже T — anchored-стратегия
	ids, err := s.revRepo.ListIDsAtOrBefore(ctx, account, project, rev.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("выборка ревизий окна: %w", err)
	}
	window.RevIDs = ids

	return window, nil
}
