// issues.go — сервис вопросов: агрегация по федерации с проверкой прав,
// создание и жизненный цикл (комментарии, закрытие/переоткрытие).
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/collab-module/internal/domain/model"
	"github.com/bigkaa/goartstore/collab-module/internal/repository"
)

// Ошибки сервиса вопросов.
var (
	// ErrNotFound — вопрос не найден.
	ErrNotFound = errors.New("вопрос не найден")
	// ErrNoName — при создании не указан заголовок вопроса.
	ErrNoName = errors.New("заголовок вопроса обязателен")
	// ErrObjectNotFound — аннотируемый 3D-объект не найден в сцене.
	ErrObjectNotFound = errors.New("объект сцены не найден")
	// ErrInvalidAttachment — вложение не является валидным base64.
	ErrInvalidAttachment = errors.New("некорректное base64-вложение")
	// ErrCommentSealed — правка запечатанного комментария или
	// комментирование закрытого вопроса.
	ErrCommentSealed = errors.New("комментарий запечатан или вопрос закрыт")
	// ErrCommentPermission — актор не является автором комментария.
	ErrCommentPermission = errors.New("правка чужого комментария запрещена")
	// ErrCommentInvalidIndex — комментария с таким индексом нет.
	ErrCommentInvalidIndex = errors.New("некорректный индекс комментария")
	// ErrIssueClosedAlready — повторное закрытие вопроса.
	ErrIssueClosedAlready = errors.New("вопрос уже закрыт")
)

// Prometheus-метрики сервиса вопросов.
var (
	listTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_issue_list_total",
		Help: "Общее количество запросов списка вопросов.",
	})
	listDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cm_issue_list_duration_seconds",
		Help:    "Длительность агрегации списка вопросов.",
		Buckets: prometheus.DefBuckets,
	})
	leavesDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_federation_leaves_denied_total",
		Help: "Количество листьев федерации, отклонённых проверкой прав.",
	})
)

// ListOptions — параметры агрегации списка вопросов.
type ListOptions struct {
	// IncludeBinaries — включить scribble/screenshot в выборку
	IncludeBinaries bool
}

// CreateIssueRequest — входные данные операции создания вопроса.
type CreateIssueRequest struct {
	// Name — заголовок (обязателен)
	Name string
	// ObjectID — идентификатор аннотируемого 3D-объекта (опционально)
	ObjectID string
	// Revision — UUID или тег ревизии для привязки (опционально;
	// пусто = привязка к голове ветки по умолчанию, если она есть)
	Revision string
	// Owner — автор вопроса
	Owner string
	// Viewpoint — точка обзора
	Viewpoint *model.Viewpoint
	// Scale, Position, Norm — геометрия маркера
	Scale    *float64
	Position []float64
	Norm     []float64
	// CreatorRole — роль автора
	CreatorRole string
	// AssignedRoles — назначенные роли
	AssignedRoles []string
	// Priority — приоритет
	Priority string
	// Scribble — base64-набросок (опционально)
	Scribble string
	// Screenshot — base64-скриншот (опционально)
	Screenshot string
}

// CommentRequest — входные данные операций над комментариями.
type CommentRequest struct {
	// Owner — актор операции
	Owner string
	// Comment — текст комментария
	Comment string
	// Revision — UUID или тег ревизии (только добавление)
	Revision string
	// Sealed — запечатать комментарий (только правка)
	Sealed bool
}

// IssueService — сервис вопросов.
// Координирует резолвер, временной фильтр, обход федерации,
// репозитории и Prometheus-метрики.
type IssueService struct {
	issueRepo     repository.IssueRepository
	sceneRepo     repository.SceneRepository
	permRepo      repository.PermissionRepository
	resolver      *ResolverService
	filter        *FilterService
	federation    *FederationService
	defaultBranch string
	logger        *slog.Logger
}

// NewIssueService создаёт сервис вопросов.
func NewIssueService(
	issueRepo repository.IssueRepository,
	sceneRepo repository.SceneRepository,
	permRepo repository.PermissionRepository,
	resolver *ResolverService,
	filter *FilterService,
	federation *FederationService,
	defaultBranch string,
	logger *slog.Logger,
) *IssueService {
	return &IssueService{
		issueRepo:     issueRepo,
		sceneRepo:     sceneRepo,
		permRepo:      permRepo,
		resolver:      resolver,
		filter:        filter,
		federation:    federation,
		defaultBranch: defaultBranch,
		logger:        logger.With(slog.String("component", "issue_service")),
	}
}

// ListByProject возвращает очищенные вопросы проекта на опциональной
// ветке/ревизии, с агрегацией по федерации.
func (s *IssueService) ListByProject(ctx context.Context, account, project, username, branch, revision string) ([]*model.CleanedIssue, error) {
	issues, err := s.listMerged(ctx, account, project, username, branch, revision, ListOptions{})
	if err != nil {
		return nil, err
	}

	cleaned := make([]*model.CleanedIssue, 0, len(issues))
	for _, issue := range issues {
		cleaned = append(cleaned, issue.Clean())
	}
	return cleaned, nil
}

// listMerged — агрегатор: вопросы корневого проекта (с фильтром по
// ревизии) + вопросы каждого доступного листа федерации (без фильтра
// по ревизии — legacy-поведение, см. DESIGN.md). Корень всегда первым,
// листья — в порядке списка обхода.
func (s *IssueService) listMerged(ctx context.Context, account, project, username, branch, revision string, opts ListOptions) ([]*model.Issue, error) {
	start := time.Now()
	listTotal.Inc()

	// 1. Окно ревизии для корня (только если ревизия явно запрошена)
	var window *repository.RevisionWindow
	if revision != "" {
		rev, err := s.resolver.Require(ctx, account, project, revision)
		if err != nil {
			return nil, err
		}
		window, err = s.filter.BuildWindow(ctx, account, project, rev)
		if err != nil {
			return nil, err
		}
	}

	issues, err := s.issueRepo.List(ctx, account, project, repository.IssueFilter{
		Window:          window,
		IncludeBinaries: opts.IncludeBinaries,
	})
	if err != nil {
		return nil, fmt.Errorf("выборка вопросов корня: %w", err)
	}

	// 2. Обход федерации. Без явной ветки/ревизии корень обходится
	// по ветке по умолчанию.
	rootCtx := ResolutionContext{
		Account:  account,
		Project:  project,
		Branch:   branch,
		Revision: revision,
	}
	if rootCtx.Branch == "" && rootCtx.Revision == "" {
		rootCtx.Branch = s.defaultBranch
	}

	leaves, err := s.federation.Walk(ctx, rootCtx)
	if err != nil {
		return nil, fmt.Errorf("обход федерации: %w", err)
	}

	// 3. Вопросы листьев: проверка права чтения, без фильтра по ревизии.
	// Отказ в доступе — молча ноль вопросов от листа.
	for _, leaf := range leaves {
		granted, err := s.permRepo.HasReadAccess(ctx, username, leaf.Account, leaf.Project)
		if err != nil {
			return nil, fmt.Errorf("проверка права чтения %s/%s: %w", leaf.Account, leaf.Project, err)
		}
		if !granted {
			leavesDenied.Inc()
			continue
		}

		leafIssues, err := s.issueRepo.List(ctx, leaf.Account, leaf.Project, repository.IssueFilter{
			IncludeBinaries: opts.IncludeBinaries,
		})
		if err != nil {
			return nil, fmt.Errorf("выборка вопросов листа %s/%s: %w", leaf.Account, leaf.Project, err)
		}
		issues = append(issues, leafIssues...)
	}

	duration := time.Since(start)
	listDuration.Observe(duration.Seconds())

	s.logger.Debug("Агрегация вопросов выполнена",
		slog.String("account", account),
		slog.String("project", project),
		slog.Int("leaves", len(leaves)),
		slog.Int("total", len(issues)),
		slog.Duration("duration", duration),
	)

	return issues, nil
}

// GetByUID возвращает один вопрос по каноническому идентификатору.
// stubs=true — укороченное представление (идентификатор, заголовок,
// позиция, родитель) для списочных подсказок вьювера.
func (s *IssueService) GetByUID(ctx context.Context, account, project, uid string, stubs bool) (*model.CleanedIssue, error) {
	id, err := model.ParseUID(uid)
	if err != nil {
		return nil, ErrNotFound
	}

	issue, err := s.issueRepo.GetByID(ctx, account, project, id, true)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение вопроса: %w", err)
	}

	cleaned := issue.Clean()
	if stubs {
		cleaned = &model.CleanedIssue{
			ID:       cleaned.ID,
			Account:  cleaned.Account,
			Project:  cleaned.Project,
			Name:     cleaned.Name,
			Position: cleaned.Position,
			Parent:   cleaned.Parent,
			Comments: []model.CleanedComment{},
		}
	}
	return cleaned, nil
}

// FindBySharedID возвращает вопросы, аннотирующие один 3D-объект
// (по shared id), с опциональным фильтром по порядковому номеру.
func (s *IssueService) FindBySharedID(ctx context.Context, account, project, sid string, number *int) ([]*model.CleanedIssue, error) {
	parent, err := model.ParseUID(sid)
	if err != nil {
		return nil, ErrObjectNotFound
	}

	issues, err := s.issueRepo.List(ctx, account, project, repository.IssueFilter{
		Parent:          &parent,
		Number:          number,
		IncludeBinaries: true,
	})
	if err != nil {
		return nil, fmt.Errorf("выборка вопросов объекта: %w", err)
	}

	cleaned := make([]*model.CleanedIssue, 0, len(issues))
	for _, issue := range issues {
		cleaned = append(cleaned, issue.Clean())
	}
	return cleaned, nil
}

// Create создаёт вопрос. Заголовок обязателен. Явно запрошенная
// несуществующая ревизия — ошибка ErrHistoryNotFound; без ревизии
// вопрос привязывается к голове ветки по умолчанию (если она есть,
// иначе создаётся legacy-вопрос без rev_id).
func (s *IssueService) Create(ctx context.Context, account, project string, req CreateIssueRequest) (*model.CleanedIssue, error) {
	if req.Name == "" {
		return nil, ErrNoName
	}

	issue := &model.Issue{
		ID:            uuid.New(),
		Account:       account,
		Project:       project,
		Name:          req.Name,
		Owner:         req.Owner,
		Priority:      req.Priority,
		Viewpoint:     req.Viewpoint,
		Scale:         req.Scale,
		Position:      req.Position,
		Norm:          req.Norm,
		CreatorRole:   req.CreatorRole,
		AssignedRoles: req.AssignedRoles,
		Created:       time.Now().UnixMilli(),
	}

	// Привязка к 3D-объекту: по идентификатору узла находим shared id
	if req.ObjectID != "" {
		objectID, err := model.ParseUID(req.ObjectID)
		if err != nil {
			return nil, ErrObjectNotFound
		}
		sid, err := s.sceneRepo.GetSharedID(ctx, account, project, objectID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrObjectNotFound
			}
			return nil, fmt.Errorf("поиск shared id объекта: %w", err)
		}
		issue.ObjectID = &objectID
		issue.Parent = &sid
	}

	// Привязка к ревизии. rev_id задаётся один раз и больше не меняется.
	revID, err := s.resolveAnchor(ctx, account, project, req.Revision)
	if err != nil {
		return nil, err
	}
	issue.RevID = revID

	// Бинарные вложения
	if issue.Scribble, err = decodeAttachment(req.Scribble); err != nil {
		return nil, err
	}
	if issue.Screenshot, err = decodeAttachment(req.Screenshot); err != nil {
		return nil, err
	}

	count, err := s.issueRepo.Count(ctx, account, project)
	if err != nil {
		return nil, fmt.Errorf("подсчёт вопросов: %w", err)
	}
	issue.Number = count + 1

	if err := s.issueRepo.Insert(ctx, issue); err != nil {
		return nil, err
	}

	s.logger.Info("Вопрос создан",
		slog.String("account", account),
		slog.String("project", project),
		slog.String("issue_id", model.FormatUID(issue.ID)),
		slog.Int("number", issue.Number),
	)

	// Скриншот обратно не отдаётся, вместо него маркер сохранения
	cleaned := issue.Clean()
	cleaned.Screenshot = model.ScreenshotSaved
	return cleaned, nil
}

// AddComment добавляет комментарий к вопросу.
// Комментарий фиксирует ревизию, при которой был оставлен.
func (s *IssueService) AddComment(ctx context.Context, account, project, uid string, req CommentRequest) (*model.CleanedIssue, error) {
	issue, err := s.getForUpdate(ctx, account, project, uid)
	if err != nil {
		return nil, err
	}

	if issue.Closed {
		return nil, ErrCommentSealed
	}

	revID, err := s.resolveAnchor(ctx, account, project, req.Revision)
	if err != nil {
		return nil, err
	}

	issue.Comments = append(issue.Comments, model.Comment{
		Owner:   req.Owner,
		Comment: req.Comment,
		Created: time.Now().UnixMilli(),
		RevID:   revID,
	})

	return s.save(ctx, issue)
}

// EditComment изменяет текст комментария и/или запечатывает его.
// Закрытый вопрос и запечатанный комментарий неизменяемы; текст чужого
// комментария менять нельзя (запечатать — можно).
func (s *IssueService) EditComment(ctx context.Context, account, project, uid string, index int, req CommentRequest) (*model.CleanedIssue, error) {
	issue, err := s.getForUpdate(ctx, account, project, uid)
	if err != nil {
		return nil, err
	}

	if issue.Closed || (index >= 0 && index < len(issue.Comments) && issue.Comments[index].Sealed) {
		return nil, ErrCommentSealed
	}
	if index < 0 || index >= len(issue.Comments) {
		return nil, ErrCommentInvalidIndex
	}

	comment := &issue.Comments[index]
	if req.Comment != "" && comment.Owner != req.Owner {
		return nil, ErrCommentPermission
	}

	if req.Comment != "" {
		comment.Comment = req.Comment
		comment.Created = time.Now().UnixMilli()
	}
	comment.Sealed = req.Sealed || comment.Sealed

	return s.save(ctx, issue)
}

// RemoveComment удаляет комментарий.
// Удалять можно только свои незапечатанные комментарии открытого вопроса.
func (s *IssueService) RemoveComment(ctx context.Context, account, project, uid string, index int, owner string) (*model.CleanedIssue, error) {
	issue, err := s.getForUpdate(ctx, account, project, uid)
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= len(issue.Comments) {
		return nil, ErrCommentInvalidIndex
	}
	if issue.Comments[index].Owner != owner {
		return nil, ErrCommentPermission
	}
	if issue.Closed || issue.Comments[index].Sealed {
		return nil, ErrCommentSealed
	}

	issue.Comments = append(issue.Comments[:index], issue.Comments[index+1:]...)

	return s.save(ctx, issue)
}

// Close закрывает вопрос. Повторное закрытие — ErrIssueClosedAlready.
func (s *IssueService) Close(ctx context.Context, account, project, uid string) (*model.CleanedIssue, error) {
	issue, err := s.getForUpdate(ctx, account, project, uid)
	if err != nil {
		return nil, err
	}

	if issue.Closed {
		return nil, ErrIssueClosedAlready
	}

	issue.Closed = true
	now := time.Now().UnixMilli()
	issue.ClosedTime = &now

	return s.save(ctx, issue)
}

// Reopen переоткрывает вопрос и сбрасывает время закрытия.
func (s *IssueService) Reopen(ctx context.Context, account, project, uid string) (*model.CleanedIssue, error) {
	issue, err := s.getForUpdate(ctx, account, project, uid)
	if err != nil {
		return nil, err
	}

	issue.Closed = false
	issue.ClosedTime = nil

	return s.save(ctx, issue)
}

// --- Вспомогательные методы ---

// resolveAnchor резолвит привязку к ревизии для создания вопроса или
// комментария: явная ревизия обязана существовать (ErrHistoryNotFound),
// иначе берётся голова ветки по умолчанию; её отсутствие — не ошибка
// (проект без ревизий, привязки нет).
func (s *IssueService) resolveAnchor(ctx context.Context, account, project, revision string) (*uuid.UUID, error) {
	if revision != "" {
		rev, err := s.resolver.Require(ctx, account, project, revision)
		if err != nil {
			return nil, err
		}
		id := rev.ID
		return &id, nil
	}

	rev, err := s.resolver.Lookup(ctx, account, project, s.defaultBranch, "")
	if err != nil {
		return nil, err
	}
	if rev == nil {
		return nil, nil
	}
	id := rev.ID
	return &id, nil
}

// getForUpdate загружает вопрос для мутации (без бинарных вложений —
// они в UPDATE не участвуют).
func (s *IssueService) getForUpdate(ctx context.Context, account, project, uid string) (*model.Issue, error) {
	id, err := model.ParseUID(uid)
	if err != nil {
		return nil, ErrNotFound
	}

	issue, err := s.issueRepo.GetByID(ctx, account, project, id, false)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение вопроса: %w", err)
	}
	return issue, nil
}

// save сохраняет изменяемые поля вопроса и возвращает очищенную запись.
func (s *IssueService) save(ctx context.Context, issue *model.Issue) (*model.CleanedIssue, error) {
	if err := s.issueRepo.Update(ctx, issue); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Вопрос удалён между чтением и сохранением
			return nil, ErrNotFound
		}
		return nil, err
	}
	return issue.Clean(), nil
}

// decodeAttachment декодирует base64-вложение ("" = вложения нет).
func decodeAttachment(data string) ([]byte, error) {
	if data == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, ErrInvalidAttachment
	}
	return decoded, nil
}
