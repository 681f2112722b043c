package util

import (
	"path/filepath"
	"strings"
)

// ValidateAttachmentName 校验作业附件的文件名扩展名和 MIME 类型
func ValidateAttachmentName(fileName, contentType string) error {
	if strings.TrimSpace(fileName) == "" {
		return BadRequestf("fileName is required")
	}
	if strings.ContainsAny(fileName, `/\`) {
		return BadRequestf("fileName must not contain path separators")
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	allowed := false
	for _, e := range AllowedAttachmentExtensions {
		if e == ext {
			allowed = true
			break
		}
	}
	if !allowed {
		return BadRequestf("unsupported attachment type: %s", ext)
	}
	if contentType != "" && (IsVideo(contentType) || strings.HasPrefix(contentType, "audio/")) {
		return BadRequestf("unsupported content type: %s", contentType)
	}
	return nil
}

func IsVideo(mimeType string) bool {
	return strings.HasPrefix(mimeType, MimeVideo)
}
