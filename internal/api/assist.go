package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sqlask/sqlask/internal/assistant"
)

// Multipart parts beyond this stay in memory; the rest spill to temp files.
const uploadMemoryLimit = 32 << 20

type askRequest struct {
	Question string `json:"question"`
}

func handleUpload(deps Dependencies, maxBytes int64, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant is not configured", false, nil)
		return
	}
	sess := sessionFromContext(r.Context())

	if maxBytes > 0 {
		// Headroom for multipart framing around the file itself.
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	}
	if err := r.ParseMultipartForm(uploadMemoryLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", "uploaded file exceeds size limit", false, map[string]any{"max_bytes": maxBytes})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MULTIPART", "invalid upload form", false, map[string]any{"details": err.Error()})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "FILE_REQUIRED", "form field \"file\" is required", false, nil)
		return
	}
	defer func() { _ = file.Close() }()
	if maxBytes > 0 && header.Size > maxBytes {
		writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", "uploaded file exceeds size limit", false, map[string]any{"max_bytes": maxBytes})
		return
	}

	message, err := deps.Assistant.Upload(r.Context(), sess, header.Filename, file, header.Size)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "UPLOAD_FAILED", "failed to store uploaded database", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"message":    message,
	})
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant is not configured", false, nil)
		return
	}
	sess := sessionFromContext(r.Context())

	var req askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	// Blank questions still reach the assistant so a session without a
	// database gets the upload advisory first.
	answer := deps.Assistant.Ask(r.Context(), sess, req.Question)
	response := map[string]any{
		"session_id": sess.ID,
		"outcome":    answer.Outcome,
		"message":    answer.Message(),
	}
	if answer.SQL != "" {
		response["sql"] = answer.SQL
	}
	if answer.Outcome == assistant.OutcomeAnswered {
		response["columns"] = answer.Result.Columns
		response["rows"] = answer.Result.Rows
		response["truncated"] = answer.Result.Truncated
		if answer.Summary != "" {
			response["answer"] = answer.Summary
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant is not configured", false, nil)
		return
	}
	sess := sessionFromContext(r.Context())

	source, tables, err := deps.Assistant.Schema(r.Context(), sess)
	if err != nil {
		if errors.Is(err, assistant.ErrNoDatabase) {
			writeError(r.Context(), w, http.StatusConflict, "NO_DATABASE", "upload a database first", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to load schema context", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"file_name":  source.FileName,
		"tables":     tables,
	})
}
