package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/collab-module/internal/domain/model"
	"github.com/bigkaa/goartstore/collab-module/internal/repository"
)

// --- Mock repositories ---

// mockRefRepo — мок RefRepository для unit-тестов.
type mockRefRepo struct {
	listByIDsFn func(ctx context.Context, account, project string, ids []uuid.UUID) ([]*model.Ref, error)
}

func (m *mockRefRepo) ListByIDs(ctx context.Context, account, project string, ids []uuid.UUID) ([]*model.Ref, error) {
	if m.listByIDsFn != nil {
		return m.listByIDsFn(ctx, account, project, ids)
	}
	return nil, nil
}

// fedNode — описание узла федерации для тестов: ревизия головы master
// и исходящие ссылки.
type fedNode struct {
	rev  *model.Revision
	refs []*model.Ref
}

// newFedService собирает FederationService поверх описания графа.
// Ревизии резолвятся по ветке master; ссылки выбираются по Current.
func newFedService(t *testing.T, graph map[string]fedNode) *FederationService {
	t.Helper()

	revRepo := &mockRevisionRepo{
		getLatestByBranchFn: func(_ context.Context, account, project, branch string) (*model.Revision, error) {
			if branch != "master" {
				return nil, repository.ErrNotFound
			}
			node, ok := graph[account+"/"+project]
			if !ok {
				return nil, repository.ErrNotFound
			}
			return node.rev, nil
		},
		getByIDFn: func(_ context.Context, account, project string, id uuid.UUID) (*model.Revision, error) {
			node, ok := graph[account+"/"+project]
			if !ok || node.rev.ID != id {
				return nil, repository.ErrNotFound
			}
			return node.rev, nil
		},
	}

	refRepo := &mockRefRepo{
		listByIDsFn: func(_ context.Context, account, project string, ids []uuid.UUID) ([]*model.Ref, error) {
			node, ok := graph[account+"/"+project]
			if !ok {
				return nil, nil
			}
			idSet := make(map[uuid.UUID]bool, len(ids))
			for _, id := range ids {
				idSet[id] = true
			}
			var out []*model.Ref
			for _, ref := range node.refs {
				if idSet[ref.ID] {
					out = append(out, ref)
				}
			}
			return out, nil
		},
	}

	resolver := NewResolverService(revRepo, NewRevisionCache(100, time.Minute), slog.Default())
	return NewFederationService(resolver, refRepo, "master", 16, slog.Default())
}

// mkNode создаёт узел графа: ревизия master с Current из ссылок.
func mkNode(refs ...*model.Ref) fedNode {
	current := make([]uuid.UUID, 0, len(refs))
	for _, ref := range refs {
		current = append(current, ref.ID)
	}
	return fedNode{
		rev:  &model.Revision{ID: uuid.New(), Branch: "master", Current: current},
		refs: refs,
	}
}

// mkRef создаёт ссылку на проект того же аккаунта без закреплённой ревизии.
func mkRef(targetProject string) *model.Ref {
	return &model.Ref{ID: uuid.New(), TargetProject: targetProject}
}

// --- Тесты FederationService ---

// TestFederation_Walk_PlainProject: проект без ссылок — ноль листьев.
func TestFederation_Walk_PlainProject(t *testing.T) {
	svc := newFedService(t, map[string]fedNode{
		"acc/root": mkNode(),
	})

	leaves, err := svc.Walk(context.Background(), ResolutionContext{
		Account: "acc", Project: "root", Branch: "master",
	})
	if err != nil {
		t.Fatalf("Walk ошибка: %v", err)
	}
	if len(leaves) != 0 {
		t.Errorf("len(leaves) = %d, ожидался 0", len(leaves))
	}
}

// TestFederation_Walk_SingleLevel: один уровень вложенности.
func TestFederation_Walk_SingleLevel(t *testing.T) {
	svc := newFedService(t, map[string]fedNode{
		"acc/root": mkNode(mkRef("child-a"), mkRef("child-b")),
		"acc/child-a": mkNode(),
		"acc/child-b": mkNode(),
	})

	leaves, err := svc.Walk(context.Background(), ResolutionContext{
		Account: "acc", Project: "root", Branch: "master",
	})
	if err != nil {
		t.Fatalf("Walk ошибка: %v", err)
	}
	if len(leaves) != 2 {
		t.Fatalf("len(leaves) = %d, ожидался 2", len(leaves))
	}

	got := map[string]bool{}
	for _, leaf := range leaves {
		got[leaf.Project] = true
		if leaf.Account != "acc" {
			t.Errorf("Account = %q, ожидался acc (наследование от родителя)", leaf.Account)
		}
		if leaf.Branch != "master" {
			t.Errorf("Branch = %q, ожидался master (ссылка без ревизии)", leaf.Branch)
		}
	}
	if !got["child-a"] || !got["child-b"] {
		t.Errorf("leaves = %v, ожидались child-a и child-b", got)
	}
}

// TestFederation_Walk_Nested: три уровня вложенности — ссылки всех
// уровней попадают в плоский список.
func TestFederation_Walk_Nested(t *testing.T) {
	svc := newFedService(t, map[string]fedNode{
		"acc/root": mkNode(mkRef("mid")),
		"acc/mid":  mkNode(mkRef("deep")),
		"acc/deep": mkNode(mkRef("leaf")),
		"acc/leaf": mkNode(),
	})

	leaves, err := svc.Walk(context.Background(), ResolutionContext{
		Account: "acc", Project: "root", Branch: "master",
	})
	if err != nil {
		t.Fatalf("Walk ошибка: %v", err)
	}
	if len(leaves) != 3 {
		t.Fatalf("len(leaves) = %d, ожидался 3", len(leaves))
	}
	// Ссылки родителя идут раньше результатов детей
	if leaves[0].Project != "mid" {
		t.Errorf("leaves[0] = %q, ожидался mid (корень первым)", leaves[0].Project)
	}
}

// TestFederation_Walk_SelfCycle: проект ссылается сам на себя —
// обход завершается без зацикливания.
func TestFederation_Walk_SelfCycle(t *testing.T) {
	svc := newFedService(t, map[string]fedNode{
		"acc/root": mkNode(mkRef("root")),
	})

	leaves, err := svc.Walk(context.Background(), ResolutionContext{
		Account: "acc", Project: "root", Branch: "master",
	})
	if err != nil {
		t.Fatalf("Walk ошибка: %v", err)
	}
	// Сама ссылка попадает в список, но повторный визит оборван
	if len(leaves) != 1 {
		t.Errorf("len(leaves) = %d, ожидался 1", len(leaves))
	}
}

// TestFederation_Walk_MutualCycle: взаимные ссылки двух проектов.
func TestFederation_Walk_MutualCycle(t *testing.T) {
	svc := newFedService(t, map[string]fedNode{
		"acc/a": mkNode(mkRef("b")),
		"acc/b": mkNode(mkRef("a")),
	})

	leaves, err := svc.Walk(context.Background(), ResolutionContext{
		Account: "acc", Project: "a", Branch: "master",
	})
	if err != nil {
		t.Fatalf("Walk ошибка: %v", err)
	}
	// b (из a) + a (из b, визит оборван на резолве)
	if len(leaves) != 2 {
		t.Errorf("len(leaves) = %d, ожидался 2", len(leaves))
	}
}

// TestFederation_Walk_MissingLeaf: несуществующая ветка листа —
// молча ноль вложенных листьев, не ошибка.
func TestFederation_Walk_MissingLeaf(t *testing.T) {
	svc := newFedService(t, map[string]fedNode{
		"acc/root": mkNode(mkRef("ghost")),
	})

	leaves, err := svc.Walk(context.Background(), ResolutionContext{
		Account: "acc", Project: "root", Branch: "master",
	})
	if err != nil {
		t.Fatalf("Walk ошибка: %v", err)
	}
	if len(leaves) != 1 || leaves[0].Project != "ghost" {
		t.Errorf("leaves = %v, ожидалась одна ссылка ghost", leaves)
	}
}

// TestFederation_ChildContext проверяет правила вычисления контекста
// дочернего узла.
func TestFederation_ChildContext(t *testing.T) {
	svc := newFedService(t, nil)
	parent := ResolutionContext{Account: "parent-acc", Project: "parent"}
	rid := uuid.New()
	otherAcc := "other-acc"

	tests := []struct {
		name string
		ref  *model.Ref
		want ResolutionContext
	}{
		{
			name: "без RID — ветка по умолчанию, аккаунт родителя",
			ref:  &model.Ref{TargetProject: "child"},
			want: ResolutionContext{Account: "parent-acc", Project: "child", Branch: "master"},
		},
		{
			name: "RID + unique — неизменяемая ревизия",
			ref:  &model.Ref{TargetProject: "child", RID: &rid, Unique: true},
			want: ResolutionContext{Account: "parent-acc", Project: "child", Revision: rid.String()},
		},
		{
			name: "RID без unique — интерпретируется как ветка",
			ref:  &model.Ref{TargetProject: "child", RID: &rid},
			want: ResolutionContext{Account: "parent-acc", Project: "child", Branch: rid.String()},
		},
		{
			name: "явный целевой аккаунт",
			ref:  &model.Ref{TargetAccount: &otherAcc, TargetProject: "child"},
			want: ResolutionContext{Account: "other-acc", Project: "child", Branch: "master"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.childContext(parent, tt.ref)
			if got != tt.want {
				t.Errorf("childContext = %+v, ожидался %+v", got, tt.want)
			}
		})
	}
}
