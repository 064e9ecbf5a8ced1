package campus

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hitoshi/campusbuzz/internal/model"
)

// MediaType は添付ファイルの種類。
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaFile  MediaType = "file"
)

type mediaRule struct {
	maxSize    int64
	extensions []string
}

var mediaRules = map[MediaType]mediaRule{
	MediaImage: {maxSize: 10 << 20, extensions: []string{"jpg", "jpeg", "png", "gif"}},
	MediaVideo: {maxSize: 50 << 20, extensions: []string{"mp4", "mov", "avi"}},
	MediaFile:  {maxSize: 20 << 20, extensions: []string{"pdf", "doc", "docx", "txt", "ppt", "pptx"}},
}

// ValidateMedia はアップロード前の添付ファイルのサイズと拡張子を検証する。
func ValidateMedia(mediaType MediaType, filename string, size int64) error {
	rule, ok := mediaRules[mediaType]
	if !ok {
		return model.NewInvalidMediaError(fmt.Sprintf("unknown media type %q", mediaType))
	}
	if size < 0 {
		return model.NewInvalidMediaError("negative size")
	}
	if size > rule.maxSize {
		return model.NewInvalidMediaError(fmt.Sprintf("%s size exceeds %dMB limit", mediaType, rule.maxSize>>20))
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !slices.Contains(rule.extensions, ext) {
		return model.NewInvalidMediaError(fmt.Sprintf("%s format not supported. Use: %s",
			mediaType, strings.Join(rule.extensions, ", ")))
	}
	return nil
}
