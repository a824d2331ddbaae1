// Пакет identity — вычисление идентичности файла: контрольная сумма
// содержимого (SHA-256, streaming) и определение MIME-типа по
// магическим байтам с fallback на расширение.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// FallbackMediaType — тип по умолчанию, когда содержимое и расширение
// не дали классификации.
const FallbackMediaType = "application/octet-stream"

// Identity — результат идентификации файла.
type Identity struct {
	// Checksum — SHA-256 содержимого, lowercase hex
	Checksum string
	// MediaType — MIME-тип (сниффинг содержимого либо fallback по расширению)
	MediaType string
	// Size — размер файла в байтах
	Size int64
}

// extMediaTypes — fallback-типы по расширению для случаев, когда
// сниффинг содержимого не дал результата.
var extMediaTypes = map[string]string{
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".odt":  "application/vnd.oasis.opendocument.text",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".heic": "image/heic",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
}

// Identify вычисляет контрольную сумму и MIME-тип файла.
// Чтение выполняется потоково, файл целиком в память не загружается.
// Детерминирована: одинаковые байты дают одинаковый checksum
// независимо от имени и расположения файла.
//
// Ошибка чтения не глотается: контрольная сумма от частично
// прочитанного файла молча испортила бы инвариант идентичности.
// Неудача классификации типа не фатальна — возвращается generic fallback.
func Identify(path string) (*Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть файл %s: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	size, err := io.Copy(hasher, f)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", path, err)
	}

	return &Identity{
		Checksum:  hex.EncodeToString(hasher.Sum(nil)),
		MediaType: detectMediaType(path),
		Size:      size,
	}, nil
}

// detectMediaType определяет MIME-тип: сначала сниффинг магических байтов,
// при неудаче — таблица расширений, иначе generic fallback.
func detectMediaType(path string) string {
	if mt, err := mimetype.DetectFile(path); err == nil && mt != nil {
		detected := mt.String()
		// mimetype возвращает octet-stream, когда сигнатура не распознана —
		// в этом случае расширение информативнее
		if detected != FallbackMediaType {
			// Убираем параметры (charset и т.д.)
			if idx := strings.Index(detected, ";"); idx != -1 {
				detected = strings.TrimSpace(detected[:idx])
			}
			return detected
		}
	}

	ext := strings.ToLower(filepath.Ext(path))
	if mt, ok := extMediaTypes[ext]; ok {
		return mt
	}
	return FallbackMediaType
}
