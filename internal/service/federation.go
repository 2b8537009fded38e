// federation.go — обход дерева федерации: рекурсивное раскрытие
// межпроектных ссылок в плоский список листьев.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/goartstore/collab-module/internal/domain/model"
	"github.com/bigkaa/goartstore/collab-module/internal/repository"
)

// Prometheus-метрики обхода федерации.
var (
	federationNodesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_federation_nodes_total",
		Help: "Общее количество посещённых узлов дерева федерации.",
	})
	federationLeaves = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cm_federation_leaves",
		Help:    "Количество листьев на один обход федерации.",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})
)

// ResolutionContext — контекст резолва одного узла федерации:
// проект и ветка либо ревизия, через которую он виден.
// Эфемерное значение, не персистится.
type ResolutionContext struct {
	// Account — владелец проекта
	Account string
	// Project — имя проекта
	Project string
	// Branch — имя ветки ("" = резолв по Revision)
	Branch string
	// Revision — UUID или тег ревизии ("" = резолв по Branch)
	Revision string
}

// FederationService — обход дерева федерации.
// Соседние ссылки одного уровня резолвятся конкурентно; результат
// собирается после завершения всех ветвей (без short-circuit).
type FederationService struct {
	resolver      *ResolverService
	refRepo       repository.RefRepository
	defaultBranch string
	maxDepth      int
	logger        *slog.Logger
}

// NewFederationService создаёт сервис обхода федерации.
func NewFederationService(
	resolver *ResolverService,
	refRepo repository.RefRepository,
	defaultBranch string,
	maxDepth int,
	logger *slog.Logger,
) *FederationService {
	return &FederationService{
		resolver:      resolver,
		refRepo:       refRepo,
		defaultBranch: defaultBranch,
		maxDepth:      maxDepth,
		logger:        logger.With(slog.String("component", "federation_service")),
	}
}

// visitedSet — множество посещённых узлов (account, project, revision-id).
// Ограничивает обход на циклических графах ссылок: повтор узла
// обрывается молча. Защищён мьютексом — ветви обхода конкурентны.
type visitedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newVisitedSet() *visitedSet {
	return &visitedSet{seen: make(map[string]struct{})}
}

// visit отмечает узел посещённым.
// Возвращает false, если узел уже был посещён.
func (v *visitedSet) visit(account, project, revID string) bool {
	key := account + "/" + project + "@" + revID
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[key]; ok {
		return false
	}
	v.seen[key] = struct{}{}
	return true
}

// Walk раскрывает дерево ссылок корневого проекта в плоский список
// контекстов резолва — по одному на каждую ссылку, встреченную на любом
// уровне. Ссылки родителя идут раньше результатов его детей; порядок
// между листьями разных ветвей не контрактен (дальше «корень первым»
// на него полагаться нельзя).
func (s *FederationService) Walk(ctx context.Context, root ResolutionContext) ([]ResolutionContext, error) {
	leaves, err := s.walk(ctx, root, newVisitedSet(), 0)
	if err != nil {
		return nil, err
	}
	federationLeaves.Observe(float64(len(leaves)))
	return leaves, nil
}

// walk — рекурсивный шаг обхода.
func (s *FederationService) walk(ctx context.Context, node ResolutionContext, visited *visitedSet, depth int) ([]ResolutionContext, error) {
	if depth >= s.maxDepth {
		s.logger.Warn("Достигнута предельная глубина обхода федерации",
			slog.String("account", node.Account),
			slog.String("project", node.Project),
			slog.Int("depth", depth),
		)
		return nil, nil
	}

	rev, err := s.resolver.Lookup(ctx, node.Account, node.Project, node.Branch, node.Revision)
	if err != nil {
		return nil, err
	}
	if rev == nil {
		// Ветка/ревизия не существует — узел даёт ноль листьев, не ошибка
		return nil, nil
	}

	if !visited.visit(node.Account, node.Project, model.FormatUID(rev.ID)) {
		// Цикл или повторная ссылка на тот же снимок
		return nil, nil
	}
	federationNodesTotal.Inc()

	refs, err := s.refRepo.ListByIDs(ctx, node.Account, node.Project, rev.Current)
	if err != nil {
		return nil, fmt.Errorf("выборка ссылок узла %s/%s: %w", node.Account, node.Project, err)
	}
	if len(refs) == 0 {
		return nil, nil
	}

	// Контексты детей: ссылки родителя попадают в результат
	// раньше рекурсивных результатов
	children := make([]ResolutionContext, 0, len(refs))
	for _, ref := range refs {
		children = append(children, s.childContext(node, ref))
	}

	// Конкурентный fan-out по детям; join всех ветвей до возврата
	results := make([][]ResolutionContext, len(children))
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range children {
		g.Go(func() error {
			sub, err := s.walk(gctx, child, visited, depth+1)
			if err != nil {
				return err
			}
			results[i] = sub
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := children
	for _, sub := range results {
		out = append(out, sub...)
	}
	return out, nil
}

// childContext вычисляет контекст резолва дочернего узла по ссылке.
// Владелец по умолчанию — аккаунт родителя; без закреплённой ревизии
// ребёнок резолвится по ветке по умолчанию; закреплённая ревизия
// интерпретируется как неизменяемая при Unique, иначе — как ветка.
func (s *FederationService) childContext(parent ResolutionContext, ref *model.Ref) ResolutionContext {
	child := ResolutionContext{
		Account: parent.Account,
		Project: ref.TargetProject,
	}
	if ref.TargetAccount != nil {
		child.Account = *ref.TargetAccount
	}

	switch {
	case ref.RID == nil:
		child.Branch = s.defaultBranch
	case ref.Unique:
		child.Revision = model.FormatUID(*ref.RID)
	default:
		child.Branch = model.FormatUID(*ref.RID)
	}
	return child
}
