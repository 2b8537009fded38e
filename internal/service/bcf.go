// bcf.go — экспорт вопросов проекта в архив формата BCF 2.0.
package service

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/collab-module/internal/domain/model"
)

// Prometheus-метрики экспорта BCF.
var (
	bcfExportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_bcf_exports_total",
		Help: "Общее количество экспортов BCF.",
	})
	bcfIssuesExported = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cm_bcf_issues_exported",
		Help:    "Количество вопросов на один экспорт BCF.",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500},
	})
)

// --- XML-структуры формата BCF 2.0 ---

// bcfProject — содержимое корневой записи project.bcf.
type bcfProject struct {
	XMLName xml.Name   `xml:"ProjectExtension"`
	Project bcfProjRef `xml:"Project"`
}

type bcfProjRef struct {
	ProjectId string `xml:"ProjectId,attr"`
	Name      string `xml:"Name"`
}

// bcfVersion — содержимое записи bcf.version.
type bcfVersion struct {
	XMLName         xml.Name `xml:"Version"`
	VersionId       string   `xml:"VersionId,attr"`
	DetailedVersion string   `xml:"DetailedVersion"`
}

// bcfMarkup — содержимое markup.bcf одного вопроса.
type bcfMarkup struct {
	XMLName    xml.Name       `xml:"Markup"`
	Header     *bcfHeader     `xml:"Header"`
	Topic      bcfTopic       `xml:"Topic"`
	Viewpoints *bcfViewpoints `xml:"Viewpoints,omitempty"`
	Comments   []bcfComment   `xml:"Comment"`
}

// bcfHeader — пустой блок Header, обязательный по схеме markup.
type bcfHeader struct{}

type bcfTopic struct {
	Guid           string `xml:"Guid,attr"`
	TopicStatus    string `xml:"TopicStatus,attr"`
	Title          string `xml:"Title"`
	Priority       string `xml:"Priority,omitempty"`
	CreationDate   string `xml:"CreationDate"`
	CreationAuthor string `xml:"CreationAuthor"`
}

// bcfViewpoints — блок ссылок на файлы точки обзора.
// Присутствует в markup только если у вопроса есть комментарии.
type bcfViewpoints struct {
	Guid      string `xml:"Guid,attr"`
	Viewpoint string `xml:"Viewpoint"`
	Snapshot  string `xml:"Snapshot,omitempty"`
}

type bcfComment struct {
	Guid        string     `xml:"Guid,attr"`
	Date        string     `xml:"Date"`
	Author      string     `xml:"Author"`
	CommentText string     `xml:"Comment"`
	Viewpoint   *bcfCommVP `xml:"Viewpoint,omitempty"`
}

type bcfCommVP struct {
	Guid string `xml:"Guid,attr"`
}

// bcfVisInfo — содержимое viewpoint.bcfv одного вопроса.
type bcfVisInfo struct {
	XMLName xml.Name   `xml:"VisualizationInfo"`
	Guid    string     `xml:"Guid,attr"`
	Camera  *bcfCamera `xml:"PerspectiveCamera,omitempty"`
}

type bcfCamera struct {
	CameraViewPoint bcfPoint `xml:"CameraViewPoint"`
	CameraDirection bcfPoint `xml:"CameraDirection"`
	CameraUpVector  bcfPoint `xml:"CameraUpVector"`
	FieldOfView     float64  `xml:"FieldOfView"`
}

type bcfPoint struct {
	X float64 `xml:"X"`
	Y float64 `xml:"Y"`
	Z float64 `xml:"Z"`
}

// BCFService — экспорт проекта в BCF-архив.
// Список вопросов собирается агрегатором IssueService (с федерацией
// и проверкой прав) и сериализуется в zip прямо в поток ответа.
type BCFService struct {
	issues *IssueService
	logger *slog.Logger
}

// NewBCFService создаёт сервис экспорта BCF.
func NewBCFService(issues *IssueService, logger *slog.Logger) *BCFService {
	return &BCFService{
		issues: issues,
		logger: logger.With(slog.String("component", "bcf_service")),
	}
}

// Export пишет BCF-архив проекта в w.
// Архив: project.bcf, bcf.version и по директории на вопрос
// (markup.bcf, viewpoint.bcfv, snapshot.png при наличии скриншота).
func (s *BCFService) Export(ctx context.Context, w io.Writer, account, project, username, branch, revision string) (err error) {
	bcfExportsTotal.Inc()

	issues, err := s.issues.listMerged(ctx, account, project, username, branch, revision, ListOptions{
		IncludeBinaries: true,
	})
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	defer func() {
		if cerr := zw.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("закрытие zip: %w", cerr)
		}
	}()

	if err = writeXMLEntry(zw, "project.bcf", bcfProject{
		Project: bcfProjRef{ProjectId: project, Name: project},
	}); err != nil {
		return err
	}
	if err = writeXMLEntry(zw, "bcf.version", bcfVersion{
		VersionId:       "2.0",
		DetailedVersion: "2.0 RC",
	}); err != nil {
		return err
	}

	for _, issue := range issues {
		if err = s.writeIssue(zw, issue); err != nil {
			return fmt.Errorf("экспорт вопроса %s: %w", model.FormatUID(issue.ID), err)
		}
	}

	bcfIssuesExported.Observe(float64(len(issues)))
	s.logger.Info("Экспорт BCF выполнен",
		slog.String("account", account),
		slog.String("project", project),
		slog.Int("issues", len(issues)),
	)
	return nil
}

// writeIssue пишет директорию одного вопроса в архив.
func (s *BCFService) writeIssue(zw *zip.Writer, issue *model.Issue) error {
	id := model.FormatUID(issue.ID)

	markup := bcfMarkup{
		Header: &bcfHeader{},
		Topic: bcfTopic{
			Guid:           id,
			TopicStatus:    topicStatus(issue.Closed),
			Title:          issue.Name,
			Priority:       issue.Priority,
			CreationDate:   bcfDate(issue.Created),
			CreationAuthor: issue.Owner,
		},
	}

	// Один GUID точки обзора на вопрос: его разделяют блок Viewpoints
	// и ссылки из комментариев
	viewpointGUID := model.FormatUID(uuid.New())

	if len(issue.Comments) > 0 {
		markup.Viewpoints = &bcfViewpoints{
			Guid:      viewpointGUID,
			Viewpoint: "viewpoint.bcfv",
		}
		if len(issue.Screenshot) > 0 {
			markup.Viewpoints.Snapshot = "snapshot.png"
		}
	}

	for _, cm := range issue.Comments {
		markup.Comments = append(markup.Comments, bcfComment{
			Guid:        model.FormatUID(uuid.New()),
			Date:        bcfDate(cm.Created),
			Author:      cm.Owner,
			CommentText: cm.Comment,
			Viewpoint:   &bcfCommVP{Guid: viewpointGUID},
		})
	}

	if err := writeXMLEntry(zw, id+"/markup.bcf", markup); err != nil {
		return err
	}

	// viewpoint.bcfv пишется всегда; при отсутствующей точке обзора
	// (data-integrity проблема старых записей) камера опускается,
	// архив не прерывается
	visInfo := bcfVisInfo{Guid: viewpointGUID}
	if vp := issue.Viewpoint; vp != nil {
		visInfo.Camera = &bcfCamera{
			CameraViewPoint: toPoint(vp.Position),
			CameraDirection: toPoint(vp.ViewDir),
			CameraUpVector:  toPoint(vp.Up),
			FieldOfView:     vp.FOV,
		}
	}
	if err := writeXMLEntry(zw, id+"/viewpoint.bcfv", visInfo); err != nil {
		return err
	}

	if len(issue.Screenshot) > 0 {
		f, err := zw.Create(id + "/snapshot.png")
		if err != nil {
			return err
		}
		// Байты скриншота пишутся как есть, без перекодирования
		if _, err := f.Write(issue.Screenshot); err != nil {
			return err
		}
	}
	return nil
}

// writeXMLEntry сериализует v в запись архива с XML-декларацией.
func writeXMLEntry(zw *zip.Writer, name string, v any) error {
	f, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("создание записи %s: %w", name, err)
	}
	if _, err := f.Write([]byte(xml.Header)); err != nil {
		return err
	}
	enc := xml.NewEncoder(f)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("сериализация %s: %w", name, err)
	}
	return enc.Close()
}

// bcfDate форматирует epoch millis в RFC3339 UTC.
func bcfDate(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func topicStatus(closed bool) string {
	if closed {
		return "Closed"
	}
	return "Open"
}

// toPoint переводит координатный срез в точку BCF (нехватка координат
// дополняется нулями).
func toPoint(v []float64) bcfPoint {
	var p bcfPoint
	if len(v) > 0 {
		p.X = v[0]
	}
	if len(v) > 1 {
		p.Y = v[1]
	}
	if len(v) > 2 {
		p.Z = v[2]
	}
	return p
}
