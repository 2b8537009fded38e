package service

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"github.com/bigkaa/goartstore/collab-module/internal/domain/model"
	"github.com/bigkaa/goartstore/collab-module/internal/repository"
)

// exportToZip выполняет экспорт и возвращает содержимое архива по именам.
func exportToZip(t *testing.T, issues []*model.Issue) map[string][]byte {
	t.Helper()

	issueRepo := &mockIssueRepo{
		listFn: func(_ context.Context, _, _ string, f repository.IssueFilter) ([]*model.Issue, error) {
			if !f.IncludeBinaries {
				t.Error("экспорт должен выбирать бинарные вложения")
			}
			return issues, nil
		},
	}
	issueSvc := newTestIssueService(issueRepo, &mockSceneRepo{}, &mockPermRepo{},
		&mockRevisionRepo{}, &mockRefRepo{})
	svc := NewBCFService(issueSvc, slog.Default())

	var buf bytes.Buffer
	if err := svc.Export(context.Background(), &buf, "acc", "proj", "user", "", ""); err != nil {
		t.Fatalf("Export ошибка: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("архив не читается: %v", err)
	}

	entries := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("открытие записи %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("чтение записи %s: %v", f.Name, err)
		}
		entries[f.Name] = data
	}
	return entries
}

// TestBCF_Export_EntryNames: архив содержит ровно ожидаемый набор записей.
func TestBCF_Export_EntryNames(t *testing.T) {
	id := uuid.New()
	issue := &model.Issue{
		ID: id, Account: "acc", Project: "proj", Name: "трещина",
		Created:    1700000000000,
		Viewpoint:  &model.Viewpoint{Position: []float64{1, 2, 3}},
		Comments:   []model.Comment{{Owner: "alice", Comment: "видно на фасаде", Created: 1700000001000}},
		Screenshot: []byte{0x89, 'P', 'N', 'G'},
	}

	entries := exportToZip(t, []*model.Issue{issue})

	want := []string{
		"project.bcf",
		"bcf.version",
		id.String() + "/markup.bcf",
		id.String() + "/viewpoint.bcfv",
		id.String() + "/snapshot.png",
	}
	if len(entries) != len(want) {
		t.Errorf("записей %d, ожидалось %d: %v", len(entries), len(want), keys(entries))
	}
	for _, name := range want {
		if _, ok := entries[name]; !ok {
			t.Errorf("запись %s отсутствует", name)
		}
	}
}

// TestBCF_Export_Version: bcf.version объявляет формат 2.0.
func TestBCF_Export_Version(t *testing.T) {
	entries := exportToZip(t, nil)

	var version struct {
		VersionId       string `xml:"VersionId,attr"`
		DetailedVersion string `xml:"DetailedVersion"`
	}
	if err := xml.Unmarshal(entries["bcf.version"], &version); err != nil {
		t.Fatalf("bcf.version не парсится: %v", err)
	}
	if version.VersionId != "2.0" {
		t.Errorf("VersionId = %q, ожидался 2.0", version.VersionId)
	}
	if version.DetailedVersion != "2.0 RC" {
		t.Errorf("DetailedVersion = %q, ожидался %q", version.DetailedVersion, "2.0 RC")
	}
}

// TestBCF_Export_SnapshotUnmodified: байты скриншота пишутся как есть.
func TestBCF_Export_SnapshotUnmodified(t *testing.T) {
	id := uuid.New()
	png := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x01, 0x02}
	issue := &model.Issue{ID: id, Name: "n", Screenshot: png}

	entries := exportToZip(t, []*model.Issue{issue})

	got := entries[id.String()+"/snapshot.png"]
	if !bytes.Equal(got, png) {
		t.Errorf("snapshot.png = %v, ожидались исходные байты %v", got, png)
	}
}

// TestBCF_Export_CommentsShareViewpointGUID: все блоки Comment ссылаются
// на один GUID точки обзора, совпадающий с блоком Viewpoints, а сами
// GUID комментариев уникальны.
func TestBCF_Export_CommentsShareViewpointGUID(t *testing.T) {
	id := uuid.New()
	issue := &model.Issue{
		ID: id, Name: "n",
		Viewpoint: &model.Viewpoint{},
		Comments: []model.Comment{
			{Owner: "alice", Comment: "a"},
			{Owner: "bob", Comment: "b"},
		},
	}

	entries := exportToZip(t, []*model.Issue{issue})
	markup := entries[id.String()+"/markup.bcf"]

	var parsed struct {
		Viewpoints struct {
			Guid string `xml:"Guid,attr"`
		} `xml:"Viewpoints"`
		Comments []struct {
			Guid      string `xml:"Guid,attr"`
			Viewpoint struct {
				Guid string `xml:"Guid,attr"`
			} `xml:"Viewpoint"`
		} `xml:"Comment"`
	}
	if err := xml.Unmarshal(markup, &parsed); err != nil {
		t.Fatalf("markup.bcf не парсится: %v", err)
	}

	if len(parsed.Comments) != 2 {
		t.Fatalf("блоков Comment %d, ожидалось 2", len(parsed.Comments))
	}
	vpGUID := parsed.Viewpoints.Guid
	if vpGUID == "" {
		t.Fatal("блок Viewpoints без GUID")
	}
	for i, c := range parsed.Comments {
		if c.Viewpoint.Guid != vpGUID {
			t.Errorf("Comment[%d].Viewpoint.Guid = %q, ожидался %q", i, c.Viewpoint.Guid, vpGUID)
		}
	}
	if parsed.Comments[0].Guid == parsed.Comments[1].Guid {
		t.Error("GUID комментариев совпадают, ожидались уникальные")
	}
	if parsed.Comments[0].Guid == id.String() {
		t.Error("GUID комментария совпал с идентификатором вопроса")
	}
}

// TestBCF_Export_TopicStatusAndDate: блок Topic несёт статус, автора
// и дату RFC3339 UTC; блок Header пуст.
func TestBCF_Export_TopicStatusAndDate(t *testing.T) {
	id := uuid.New()
	closedMs := int64(1700000000000)
	issue := &model.Issue{
		ID: id, Name: "n", Owner: "bob", Closed: true, ClosedTime: &closedMs,
		Created: 1700000000000, // 2023-11-14T22:13:20Z
	}

	entries := exportToZip(t, []*model.Issue{issue})

	var parsed struct {
		Header struct {
			Files []struct{} `xml:"File"`
		} `xml:"Header"`
		Topic struct {
			Guid           string `xml:"Guid,attr"`
			TopicStatus    string `xml:"TopicStatus,attr"`
			CreationDate   string `xml:"CreationDate"`
			CreationAuthor string `xml:"CreationAuthor"`
		} `xml:"Topic"`
	}
	if err := xml.Unmarshal(entries[id.String()+"/markup.bcf"], &parsed); err != nil {
		t.Fatalf("markup.bcf не парсится: %v", err)
	}

	if parsed.Topic.Guid != id.String() {
		t.Errorf("Topic.Guid = %q, ожидался %q", parsed.Topic.Guid, id.String())
	}
	if parsed.Topic.TopicStatus != "Closed" {
		t.Errorf("TopicStatus = %q, ожидался Closed", parsed.Topic.TopicStatus)
	}
	if parsed.Topic.CreationDate != "2023-11-14T22:13:20Z" {
		t.Errorf("CreationDate = %q, ожидался 2023-11-14T22:13:20Z", parsed.Topic.CreationDate)
	}
	if parsed.Topic.CreationAuthor != "bob" {
		t.Errorf("CreationAuthor = %q, ожидался bob", parsed.Topic.CreationAuthor)
	}
	if len(parsed.Header.Files) != 0 {
		t.Errorf("Header содержит %d File, ожидался пустой", len(parsed.Header.Files))
	}
}

// TestBCF_Export_OpenStatus: незакрытый вопрос экспортируется со статусом Open.
func TestBCF_Export_OpenStatus(t *testing.T) {
	id := uuid.New()
	issue := &model.Issue{ID: id, Name: "n", Owner: "alice"}

	entries := exportToZip(t, []*model.Issue{issue})

	var parsed struct {
		Topic struct {
			TopicStatus string `xml:"TopicStatus,attr"`
		} `xml:"Topic"`
	}
	if err := xml.Unmarshal(entries[id.String()+"/markup.bcf"], &parsed); err != nil {
		t.Fatalf("markup.bcf не парсится: %v", err)
	}
	if parsed.Topic.TopicStatus != "Open" {
		t.Errorf("TopicStatus = %q, ожидался Open", parsed.Topic.TopicStatus)
	}
}

// TestBCF_Export_MissingViewpoint: вопрос без точки обзора — камера
// опускается, архив не прерывается.
func TestBCF_Export_MissingViewpoint(t *testing.T) {
	id := uuid.New()
	issue := &model.Issue{ID: id, Name: "n",
		Comments: []model.Comment{{Owner: "alice", Comment: "x"}}}

	entries := exportToZip(t, []*model.Issue{issue})

	bcfv := string(entries[id.String()+"/viewpoint.bcfv"])
	if strings.Contains(bcfv, "PerspectiveCamera") {
		t.Error("viewpoint.bcfv содержит камеру при отсутствующей точке обзора")
	}

	// GUID точки обзора — валидный UUID
	var parsed struct {
		Guid string `xml:"Guid,attr"`
	}
	if err := xml.Unmarshal(entries[id.String()+"/viewpoint.bcfv"], &parsed); err != nil {
		t.Fatalf("viewpoint.bcfv не парсится: %v", err)
	}
	uuidRe := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	if !uuidRe.MatchString(parsed.Guid) {
		t.Errorf("Guid = %q, ожидался UUID", parsed.Guid)
	}
}

// keys возвращает имена записей для диагностики.
func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
