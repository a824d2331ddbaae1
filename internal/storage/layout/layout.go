// Пакет layout — размещение файлов на диске под корнем данных.
// Владеет структурой директорий: documents/, images/, videos/ с
// категорийными поддиректориями и карантином deleted_for_review/.
// Перемещение staged-файла в постоянное хранилище выполняется
// атомарным rename с разрешением коллизий имён суффиксом _N.
package layout

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/arturkryukov/lifearchive/internal/classify"
)

// QuarantineDirName — имя карантинной директории под корнем данных.
const QuarantineDirName = "deleted_for_review"

// filePerm — права финального файла: world-readable, owner-writable.
const filePerm = 0o644

// maxCollisionAttempts — предел перебора суффиксов _N при коллизии имён.
const maxCollisionAttempts = 10000

// ErrStorage — ошибка размещения: директория не создаётся либо
// перемещение не удалось. Staged-файл при этой ошибке остаётся на месте.
var ErrStorage = errors.New("ошибка размещения файла")

// Layout — менеджер размещения файлов под корнем данных.
type Layout struct {
	dataDir       string
	quarantineDir string
}

// New создаёт менеджер размещения. Создаёт корень данных, корзины
// верхнего уровня и карантинную директорию, если их нет.
// Корень приводится к абсолютному пути: все выдаваемые пути (и
// storage_path в каталоге) абсолютны независимо от формы конфигурации.
func New(dataDir string) (*Layout, error) {
	dataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("не удалось определить абсолютный путь %s: %w", dataDir, err)
	}

	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать корень данных %s: %w", dataDir, err)
	}

	for _, bucket := range classify.Buckets() {
		if err := os.MkdirAll(filepath.Join(dataDir, bucket), 0o750); err != nil {
			return nil, fmt.Errorf("не удалось создать корзину %s: %w", bucket, err)
		}
	}

	quarantineDir := filepath.Join(dataDir, QuarantineDirName)
	if err := os.MkdirAll(quarantineDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать карантин %s: %w", quarantineDir, err)
	}

	return &Layout{
		dataDir:       dataDir,
		quarantineDir: quarantineDir,
	}, nil
}

// Place перемещает staged-файл в директорию категории.
// Возвращает абсолютный финальный путь. Никогда не перезаписывает
// существующий файл: при занятом имени подбирается суффикс _N перед
// расширением. Файл либо остаётся по исходному пути, либо оказывается
// по финальному — промежуточных состояний rename не оставляет.
func (l *Layout) Place(stagedPath, category, desiredName string) (string, error) {
	categoryDir, err := l.CategoryDir(category)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(categoryDir, 0o750); err != nil {
		return "", fmt.Errorf("%w: не удалось создать директорию категории %s: %v", ErrStorage, categoryDir, err)
	}

	finalPath, err := resolveCollision(categoryDir, SanitizeName(desiredName))
	if err != nil {
		return "", err
	}

	if err := moveFile(stagedPath, finalPath); err != nil {
		return "", fmt.Errorf("%w: перемещение %s -> %s: %v", ErrStorage, stagedPath, finalPath, err)
	}

	if err := os.Chmod(finalPath, filePerm); err != nil {
		return "", fmt.Errorf("%w: установка прав %s: %v", ErrStorage, finalPath, err)
	}

	return finalPath, nil
}

// Quarantine перемещает файл в карантин deleted_for_review.
// Имя в карантине получает префикс с ID записи — коллизии исключены.
func (l *Layout) Quarantine(path, recordID string) (string, error) {
	quarantinePath := filepath.Join(l.quarantineDir, recordID+"_"+filepath.Base(path))

	if err := moveFile(path, quarantinePath); err != nil {
		return "", fmt.Errorf("%w: перемещение в карантин %s: %v", ErrStorage, path, err)
	}
	return quarantinePath, nil
}

// Restore перемещает файл из карантина обратно в директорию категории.
// Префикс с ID записи отбрасывается; коллизии в живой директории
// разрешаются как при обычном размещении.
func (l *Layout) Restore(quarantinePath, category, recordID string) (string, error) {
	name := strings.TrimPrefix(filepath.Base(quarantinePath), recordID+"_")
	return l.Place(quarantinePath, category, name)
}

// CategoryDir возвращает абсолютный путь директории категории.
// Категория не должна выходить за пределы корня данных.
func (l *Layout) CategoryDir(category string) (string, error) {
	cleaned := filepath.Clean(category)
	if cleaned == "." || cleaned == "/" || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%w: некорректная категория %q", ErrStorage, category)
	}
	return filepath.Join(l.dataDir, cleaned), nil
}

// DataDir возвращает корень данных.
func (l *Layout) DataDir() string {
	return l.dataDir
}

// QuarantineDir возвращает путь карантинной директории.
func (l *Layout) QuarantineDir() string {
	return l.quarantineDir
}

// BucketRoots возвращает абсолютные пути живых корней категорий.
func (l *Layout) BucketRoots() []string {
	roots := make([]string, 0, len(classify.Buckets()))
	for _, bucket := range classify.Buckets() {
		roots = append(roots, filepath.Join(l.dataDir, bucket))
	}
	return roots
}

// UnderBucketRoots проверяет, что путь лежит под одним из живых
// корней категорий (не в карантине, не вне корня данных).
func (l *Layout) UnderBucketRoots(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, root := range l.BucketRoots() {
		if strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// SanitizeName очищает имя файла для хранения: берётся базовое имя,
// пробелы заменяются подчёркиванием, управляющие и небезопасные
// символы отбрасываются. Пустой результат заменяется на "file".
func SanitizeName(name string) string {
	base := filepath.Base(name)

	var result strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			result.WriteRune(r)
		case r == ' ':
			result.WriteRune('_')
		case r >= 0x00C0 && r <= 0x024F: // латиница с диакритикой
			result.WriteRune(r)
		case r >= 0x0400 && r <= 0x04FF: // кириллица
			result.WriteRune(r)
		}
	}

	cleaned := strings.Trim(result.String(), ".")
	if cleaned == "" {
		return "file"
	}
	return cleaned
}

// resolveCollision подбирает свободное имя в директории: сначала
// желаемое, затем name_1.ext, name_2.ext и так далее.
func resolveCollision(dir, desiredName string) (string, error) {
	candidate := filepath.Join(dir, desiredName)
	if !fileExists(candidate) {
		return candidate, nil
	}

	ext := filepath.Ext(desiredName)
	base := strings.TrimSuffix(desiredName, ext)

	for i := 1; i <= maxCollisionAttempts; i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
		if !fileExists(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: не найдено свободное имя для %s в %s", ErrStorage, desiredName, dir)
}

// moveFile перемещает файл атомарным rename. Если источник и цель на
// разных томах (EXDEV), выполняется fallback: копия рядом с целью +
// fsync + rename, затем удаление источника — файл в любой момент
// существует хотя бы по одному из путей.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}

	if copyErr := copyAndSync(src, dst); copyErr != nil {
		return copyErr
	}
	return os.Remove(src)
}

// copyAndSync копирует src во временный файл рядом с dst, делает fsync
// и атомарно переименовывает в dst. При ошибке временный файл удаляется.
func copyAndSync(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmpPath := dst + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// fileExists проверяет существование пути.
func fileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
