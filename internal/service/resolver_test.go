package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/collab-module/internal/domain/model"
	"github.com/bigkaa/goartstore/collab-module/internal/repository"
)

// --- Mock repositories ---

// mockRevisionRepo — мок RevisionRepository для unit-тестов.
type mockRevisionRepo struct {
	getByIDFn           func(ctx context.Context, account, project string, id uuid.UUID) (*model.Revision, error)
	getByTagFn          func(ctx context.Context, account, project, tag string) (*model.Revision, error)
	getLatestByBranchFn func(ctx context.Context, account, project, branch string) (*model.Revision, error)
	listIDsAtOrBeforeFn func(ctx context.Context, account, project string, ts int64) ([]uuid.UUID, error)
	nextAfterFn         func(ctx context.Context, account, project string, ts int64) (*model.Revision, error)
}

func (m *mockRevisionRepo) GetByID(ctx context.Context, account, project string, id uuid.UUID) (*model.Revision, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, account, project, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockRevisionRepo) GetByTag(ctx context.Context, account, project, tag string) (*model.Revision, error) {
	if m.getByTagFn != nil {
		return m.getByTagFn(ctx, account, project, tag)
	}
	return nil, repository.ErrNotFound
}

func (m *mockRevisionRepo) GetLatestByBranch(ctx context.Context, account, project, branch string) (*model.Revision, error) {
	if m.getLatestByBranchFn != nil {
		return m.getLatestByBranchFn(ctx, account, project, branch)
	}
	return nil, repository.ErrNotFound
}

func (m *mockRevisionRepo) ListIDsAtOrBefore(ctx context.Context, account, project string, ts int64) ([]uuid.UUID, error) {
	if m.listIDsAtOrBeforeFn != nil {
		return m.listIDsAtOrBeforeFn(ctx, account, project, ts)
	}
	return nil, nil
}

func (m *mockRevisionRepo) NextAfter(ctx context.Context, account, project string, ts int64) (*model.Revision, error) {
	if m.nextAfterFn != nil {
		return m.nextAfterFn(ctx, account, project, ts)
	}
	return nil, repository.ErrNotFound
}

// newTestResolver создаёт резолвер с моком и свежим кэшем.
func newTestResolver(repo repository.RevisionRepository) *ResolverService {
	return NewResolverService(repo, NewRevisionCache(100, time.Minute), slog.Default())
}

// --- Тесты ResolverService ---

// TestResolver_Lookup_BranchPriority: при заданной ветке revision игнорируется.
func TestResolver_Lookup_BranchPriority(t *testing.T) {
	head := &model.Revision{ID: uuid.New(), Branch: "master", Timestamp: 100}
	byIDCalled := false

	repo := &mockRevisionRepo{
		getLatestByBranchFn: func(_ context.Context, _, _, branch string) (*model.Revision, error) {
			if branch != "master" {
				t.Errorf("branch = %q, ожидался master", branch)
			}
			return head, nil
		},
		getByIDFn: func(_ context.Context, _, _ string, _ uuid.UUID) (*model.Revision, error) {
			byIDCalled = true
			return nil, repository.ErrNotFound
		},
	}

	svc := newTestResolver(repo)
	rev, err := svc.Lookup(context.Background(), "acc", "proj", "master", uuid.New().String())
	if err != nil {
		t.Fatalf("Lookup ошибка: %v", err)
	}
	if rev != head {
		t.Errorf("rev = %v, ожидалась голова ветки", rev)
	}
	if byIDCalled {
		t.Error("GetByID вызван, хотя задана ветка")
	}
}

// TestResolver_Lookup_UUIDvsTag: синтаксически валидный UUID идёт в GetByID,
// любая другая строка — в GetByTag.
func TestResolver_Lookup_UUIDvsTag(t *testing.T) {
	id := uuid.New()
	byID := &model.Revision{ID: id}
	byTag := &model.Revision{ID: uuid.New(), Tag: "v1.0"}

	repo := &mockRevisionRepo{
		getByIDFn: func(_ context.Context, _, _ string, got uuid.UUID) (*model.Revision, error) {
			if got != id {
				t.Errorf("id = %v, ожидался %v", got, id)
			}
			return byID, nil
		},
		getByTagFn: func(_ context.Context, _, _, tag string) (*model.Revision, error) {
			if tag != "v1.0" {
				t.Errorf("tag = %q, ожидался v1.0", tag)
			}
			return byTag, nil
		},
	}

	svc := newTestResolver(repo)

	rev, err := svc.Lookup(context.Background(), "acc", "proj", "", id.String())
	if err != nil {
		t.Fatalf("Lookup по UUID ошибка: %v", err)
	}
	if rev != byID {
		t.Errorf("rev = %v, ожидался результат GetByID", rev)
	}

	rev, err = svc.Lookup(context.Background(), "acc", "proj", "", "v1.0")
	if err != nil {
		t.Fatalf("Lookup по тегу ошибка: %v", err)
	}
	if rev != byTag {
		t.Errorf("rev = %v, ожидался результат GetByTag", rev)
	}
}

// TestResolver_Lookup_NotFoundIsNil: отсутствующая ревизия — (nil, nil).
func TestResolver_Lookup_NotFoundIsNil(t *testing.T) {
	svc := newTestResolver(&mockRevisionRepo{})

	rev, err := svc.Lookup(context.Background(), "acc", "proj", "nosuch", "")
	if err != nil {
		t.Fatalf("Lookup ошибка: %v", err)
	}
	if rev != nil {
		t.Errorf("rev = %v, ожидался nil", rev)
	}
}

// TestResolver_Lookup_Empty: без ветки и ревизии — (nil, nil) без запросов.
func TestResolver_Lookup_Empty(t *testing.T) {
	repo := &mockRevisionRepo{
		getLatestByBranchFn: func(_ context.Context, _, _, _ string) (*model.Revision, error) {
			t.Error("GetLatestByBranch не должен вызываться")
			return nil, repository.ErrNotFound
		},
	}
	svc := newTestResolver(repo)

	rev, err := svc.Lookup(context.Background(), "acc", "proj", "", "")
	if err != nil || rev != nil {
		t.Errorf("Lookup = (%v, %v), ожидался (nil, nil)", rev, err)
	}
}

// TestResolver_Require_NotFound: явно запрошенная ревизия обязана
// существовать.
func TestResolver_Require_NotFound(t *testing.T) {
	svc := newTestResolver(&mockRevisionRepo{})

	_, err := svc.Require(context.Background(), "acc", "proj", "v9.9")
	if !errors.Is(err, ErrHistoryNotFound) {
		t.Errorf("err = %v, ожидался ErrHistoryNotFound", err)
	}
}

// TestResolver_ImmutableLookupCached: повторный резолв того же тега
// не ходит в репозиторий.
func TestResolver_ImmutableLookupCached(t *testing.T) {
	callCount := 0
	repo := &mockRevisionRepo{
		getByTagFn: func(_ context.Context, _, _, _ string) (*model.Revision, error) {
			callCount++
			return &model.Revision{ID: uuid.New(), Tag: "v1.0"}, nil
		},
	}
	svc := newTestResolver(repo)

	for i := 0; i < 3; i++ {
		if _, err := svc.Require(context.Background(), "acc", "proj", "v1.0"); err != nil {
			t.Fatalf("Require ошибка: %v", err)
		}
	}

	if callCount != 1 {
		t.Errorf("GetByTag вызван %d раз, ожидался 1 (кэш)", callCount)
	}
}

// TestResolver_BranchHeadNotCached: головы веток мутабельны и через
// кэш не ходят.
func TestResolver_BranchHeadNotCached(t *testing.T) {
	callCount := 0
	repo := &mockRevisionRepo{
		getLatestByBranchFn: func(_ context.Context, _, _, _ string) (*model.Revision, error) {
			callCount++
			return &model.Revision{ID: uuid.New(), Branch: "master"}, nil
		},
	}
	svc := newTestResolver(repo)

	for i := 0; i < 2; i++ {
		if _, err := svc.Lookup(context.Background(), "acc", "proj", "master", ""); err != nil {
			t.Fatalf("Lookup ошибка: %v", err)
		}
	}

	if callCount != 2 {
		t.Errorf("GetLatestByBranch вызван %d раз, ожидался 2 (без кэша)", callCount)
	}
}
