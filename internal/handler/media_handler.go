package handler

import (
	"net/http"

	"github.com/hitoshi/campusbuzz/internal/campus"
)

type validateMediaRequest struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// ValidateMedia はアップロード前の添付ファイルを検証する。問題なければ204を返す。
// POST /api/media/validate
func ValidateMedia(w http.ResponseWriter, r *http.Request) {
	var req validateMediaRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := campus.ValidateMedia(campus.MediaType(req.Type), req.Filename, req.Size); err != nil {
		handleServiceError(w, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
