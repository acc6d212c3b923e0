package object

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"pixelpharm-backend/internal/shared/util"
)

const uploadsRoot = "uploads"

// NewUploadKey builds a storage key of the form uploads/<user hash>/<random>_<file name>.
func NewUploadKey(userID, fileName string) (string, error) {
	sanitized, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", fmt.Errorf("sanitize file name: %w", err)
	}
	return path.Join(uploadsRoot, util.HashUserKey(userID), randomID()+"_"+sanitized), nil
}

// FileNameFromKey returns the user-facing file name embedded in a storage key.
func FileNameFromKey(key string) string {
	base := path.Base(strings.TrimSpace(key))
	if base == "." || base == "/" {
		return ""
	}
	if idx := strings.Index(base, "_"); idx == 32 {
		return base[idx+1:]
	}
	return base
}

// DetectContentType sniffs the leading bytes and falls back to the file extension
// when sniffing yields only a generic type.
func DetectContentType(sniff []byte, fileName string) string {
	detected := http.DetectContentType(sniff)
	if idx := strings.Index(detected, ";"); idx >= 0 {
		if strings.HasPrefix(detected, "text/plain") {
			detected = "text/plain"
		} else {
			detected = detected[:idx]
		}
	}
	if detected != "application/octet-stream" {
		return detected
	}
	return ContentTypeFromName(fileName)
}

// ContentTypeFromName guesses a content type from the file extension alone.
func ContentTypeFromName(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".tif", ".tiff":
		return "image/tiff"
	case ".heic":
		return "image/heic"
	case ".txt":
		return "text/plain"
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		if idx := strings.Index(byExt, ";"); idx >= 0 {
			byExt = byExt[:idx]
		}
		return byExt
	}
	return "application/octet-stream"
}

func randomID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%032x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b[:])
}
