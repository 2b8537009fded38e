package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/collab-module/internal/domain/model"
)

// issueColumns — столбцы таблицы issues без бинарных вложений.
// Проекция по умолчанию: scribble/screenshot не выбираются, чтобы
// не таскать большие payload'ы в списочных контекстах.
const issueColumns = `id, account, project, name, number, created_ms, owner,
	closed, closed_ms, priority, rev_id, parent, object_id, scale, position,
	norm, creator_role, assigned_roles, viewpoint, comments`

// issueColumnsFull — полный набор столбцов, включая бинарные вложения.
const issueColumnsFull = issueColumns + `, scribble, screenshot`

// RevisionWindow — предикат отбора вопросов по снимку ревизии.
// Tagged union из двух независимых стратегий, объединённых логическим OR:
//   - anchored: rev_id входит в RevIDs (все ревизии с timestamp <= T);
//   - legacy: rev_id отсутствует, а время создания меньше LegacyBefore
//     (timestamp ближайшей ревизии строго после T). LegacyBefore == nil —
//     верхней границы нет: после T ревизий не существует, и все
//     legacy-вопросы принадлежат текущему окну.
type RevisionWindow struct {
	// RevIDs — идентификаторы ревизий окна (anchored-стратегия)
	RevIDs []uuid.UUID
	// LegacyBefore — верхняя граница created_ms для legacy-вопросов
	LegacyBefore *int64
}

// IssueFilter — параметры выборки вопросов.
type IssueFilter struct {
	// Window — окно ревизии (nil = без фильтра по ревизии)
	Window *RevisionWindow
	// Parent — shared id аннотируемого объекта (nil = не фильтровать)
	Parent *uuid.UUID
	// Number — порядковый номер вопроса (nil = не фильтровать)
	Number *int
	// IncludeBinaries — выбирать scribble/screenshot
	IncludeBinaries bool
}

// IssueRepository — доступ к вопросам проекта.
// Мутации (Insert/Update) всегда ограничены одним документом;
// конкурентные правки разных вопросов не конфликтуют.
type IssueRepository interface {
	// GetByID возвращает вопрос по UUID или ErrNotFound.
	GetByID(ctx context.Context, account, project string, id uuid.UUID, includeBinaries bool) (*model.Issue, error)
	// List выполняет выборку вопросов по фильтру, упорядоченную по номеру.
	List(ctx context.Context, account, project string, f IssueFilter) ([]*model.Issue, error)
	// Count возвращает количество вопросов проекта.
	Count(ctx context.Context, account, project string) (int, error)
	// Insert сохраняет новый вопрос.
	Insert(ctx context.Context, issue *model.Issue) error
	// Update сохраняет изменяемые поля вопроса: closed, closed_ms
	// и поток комментариев. rev_id и бинарные вложения после
	// создания не меняются и в UPDATE не участвуют.
	Update(ctx context.Context, issue *model.Issue) error
}

// issueRepo — реализация IssueRepository через pgx.
type issueRepo struct {
	db DBTX
}

// NewIssueRepository создаёт репозиторий вопросов.
func NewIssueRepository(db DBTX) IssueRepository {
	return &issueRepo{db: db}
}

func (r *issueRepo) GetByID(ctx context.Context, account, project string, id uuid.UUID, includeBinaries bool) (*model.Issue, error) {
	cols := issueColumns
	if includeBinaries {
		cols = issueColumnsFull
	}
	query := fmt.Sprintf(
		`SELECT %s FROM issues WHERE account = $1 AND project = $2 AND id = $3`,
		cols,
	)

	issue, err := scanIssue(r.db.QueryRow(ctx, query, account, project, id), includeBinaries)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения вопроса: %w", err)
	}
	return issue, nil
}

func (r *issueRepo) List(ctx context.Context, account, project string, f IssueFilter) ([]*model.Issue, error) {
	cols := issueColumns
	if f.IncludeBinaries {
		cols = issueColumnsFull
	}

	where, args := buildIssueWhere(account, project, f)
	query := fmt.Sprintf(`SELECT %s FROM issues %s ORDER BY number ASC`, cols, where)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки вопросов: %w", err)
	}
	defer rows.Close()

	var result []*model.Issue
	for rows.Next() {
		issue, err := scanIssue(rows, f.IncludeBinaries)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования вопроса: %w", err)
		}
		result = append(result, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации вопросов: %w", err)
	}
	return result, nil
}

func (r *issueRepo) Count(ctx context.Context, account, project string) (int, error) {
	query := `SELECT COUNT(*) FROM issues WHERE account = $1 AND project = $2`

	var count int
	if err := r.db.QueryRow(ctx, query, account, project).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта вопросов: %w", err)
	}
	return count, nil
}

func (r *issueRepo) Insert(ctx context.Context, issue *model.Issue) error {
	query := `
		INSERT INTO issues (
			id, account, project, name, number, created_ms, owner,
			closed, closed_ms, priority, rev_id, parent, object_id,
			scale, position, norm, creator_role, assigned_roles,
			viewpoint, comments, scribble, screenshot
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22
		)`

	_, err := r.db.Exec(ctx, query,
		issue.ID, issue.Account, issue.Project, issue.Name, issue.Number,
		issue.Created, issue.Owner, issue.Closed, issue.ClosedTime,
		issue.Priority, issue.RevID, issue.Parent, issue.ObjectID,
		issue.Scale, issue.Position, issue.Norm, issue.CreatorRole,
		issue.AssignedRoles, issue.Viewpoint, issue.Comments,
		issue.Scribble, issue.Screenshot,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения вопроса: %w", err)
	}
	return nil
}

func (r *issueRepo) Update(ctx context.Context, issue *model.Issue) error {
	query := `
		UPDATE issues
		SET closed = $4, closed_ms = $5, comments = $6
		WHERE account = $1 AND project = $2 AND id = $3`

	tag, err := r.db.Exec(ctx, query,
		issue.Account, issue.Project, issue.ID,
		issue.Closed, issue.ClosedTime, issue.Comments,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления вопроса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanIssue сканирует одну строку результата в model.Issue.
func scanIssue(row pgx.Row, includeBinaries bool) (*model.Issue, error) {
	issue := &model.Issue{}
	targets := []any{
		&issue.ID, &issue.Account, &issue.Project, &issue.Name, &issue.Number,
		&issue.Created, &issue.Owner, &issue.Closed, &issue.ClosedTime,
		&issue.Priority, &issue.RevID, &issue.Parent, &issue.ObjectID,
		&issue.Scale, &issue.Position, &issue.Norm, &issue.CreatorRole,
		&issue.AssignedRoles, &issue.Viewpoint, &issue.Comments,
	}
	if includeBinaries {
		targets = append(targets, &issue.Scribble, &issue.Screenshot)
	}
	if err := row.Scan(targets...); err != nil {
		return nil, err
	}
	return issue, nil
}

// buildIssueWhere строит WHERE-условие и аргументы для выборки вопросов.
// Окно ревизии — дизъюнкция anchored- и legacy-стратегий (см. RevisionWindow).
func buildIssueWhere(account, project string, f IssueFilter) (whereClause string, args []any) {
	conditions := []string{"account = $1", "project = $2"}
	args = []any{account, project}
	argNum := 3

	if f.Window != nil {
		if clause, clauseArgs := buildWindowClause(f.Window, argNum); clause != "" {
			conditions = append(conditions, clause)
			args = append(args, clauseArgs...)
			argNum += len(clauseArgs)
		}
	}

	if f.Parent != nil {
		conditions = append(conditions, fmt.Sprintf("parent = $%d", argNum))
		args = append(args, *f.Parent)
		argNum++
	}

	if f.Number != nil {
		conditions = append(conditions, fmt.Sprintf("number = $%d", argNum))
		args = append(args, *f.Number)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// buildWindowClause строит SQL-фрагмент окна ревизии.
// startArg — номер первого $-параметра.
func buildWindowClause(w *RevisionWindow, startArg int) (clause string, args []any) {
	legacy := "rev_id IS NULL"
	if w.LegacyBefore != nil {
		legacy = fmt.Sprintf("(rev_id IS NULL AND created_ms < $%d)", startArg)
		args = append(args, *w.LegacyBefore)
		startArg++
	}

	if len(w.RevIDs) == 0 {
		// Ревизий в окне нет — остаётся только legacy-стратегия
		return legacy, args
	}

	anchored := fmt.Sprintf("rev_id = ANY($%d)", startArg)
	args = append(args, w.RevIDs)

	return fmt.Sprintf("(%s OR %s)", anchored, legacy), args
}
