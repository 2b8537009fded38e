// bcf.go — HTTP-обработчик экспорта BCF-архива.
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/collab-module/internal/api/middleware"
)

// trackingWriter — обёртка, фиксирующая факт записи первого байта.
// Пока тело не началось, ошибку экспорта ещё можно отдать нормальным
// JSON-ответом со статусом.
type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (tw *trackingWriter) Write(b []byte) (int, error) {
	tw.wrote = true
	return tw.ResponseWriter.Write(b)
}

func (tw *trackingWriter) WriteHeader(code int) {
	tw.wrote = true
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *trackingWriter) Unwrap() http.ResponseWriter {
	return tw.ResponseWriter
}

// ExportBCF — GET /api/v1/{account}/{project}/issues.bcfzip.
// Архив стримится прямо в ответ. Ошибка до первого байта отдаётся
// обычным JSON-ответом; после — логируется и обрывает поток (статус-код
// уже отправлен).
func (h *APIHandler) ExportBCF(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	project := chi.URLParam(r, "project")
	username := middleware.UsernameFromContext(r.Context())

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", project+"_issues.bcf.zip"))

	tw := &trackingWriter{ResponseWriter: w}
	err := h.bcf.Export(r.Context(), tw, account, project, username,
		r.URL.Query().Get("branch"), r.URL.Query().Get("revision"))
	if err == nil {
		return
	}

	if !tw.wrote {
		w.Header().Del("Content-Type")
		w.Header().Del("Content-Disposition")
		h.writeServiceError(w, err)
		return
	}

	h.logger.Error("Экспорт BCF прерван после начала потока",
		slog.String("account", account),
		slog.String("project", project),
		slog.String("error", err.Error()),
	)
}
