package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mathlabs/evaluator/internal/importer"
)

const maxUploadBytes = 10 << 20

func (h *Handler) handleUploadQuestions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}

	file, header, err := r.FormFile("questions_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	res, err := importer.Import(h.store, header.Filename, data, h.now())
	if err != nil {
		slog.Error("question upload failed", "filename", header.Filename, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slog.Info("uploaded questions", "filename", header.Filename, "count", res.Imported, "unchanged", res.Unchanged)
	writeJSON(w, http.StatusOK, res)
}
