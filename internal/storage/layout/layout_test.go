package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arturkryukov/lifearchive/internal/classify"
)

// newLayout создаёт менеджер размещения в temp-директории теста.
func newLayout(t *testing.T) *Layout {
	t.Helper()
	l, err := New(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("ошибка создания размещения: %v", err)
	}
	return l
}

// stageFile создаёт staged-файл с содержимым.
func stageFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("не удалось создать staged-файл: %v", err)
	}
	return path
}

// TestNew_CreatesStructure проверяет создание корзин и карантина.
func TestNew_CreatesStructure(t *testing.T) {
	l := newLayout(t)

	for _, bucket := range classify.Buckets() {
		dir := filepath.Join(l.DataDir(), bucket)
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("корзина %s не создана: %v", bucket, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s не является директорией", dir)
		}
	}

	if _, err := os.Stat(l.QuarantineDir()); err != nil {
		t.Errorf("карантин не создан: %v", err)
	}
}

// TestNew_RelativeDataDir проверяет приведение относительного корня
// к абсолютному: выдаваемые пути и проверки путей не зависят от формы
// настройки.
func TestNew_RelativeDataDir(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("не удалось получить рабочую директорию: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("не удалось сменить рабочую директорию: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	l, err := New("data")
	if err != nil {
		t.Fatalf("ошибка создания размещения: %v", err)
	}

	if !filepath.IsAbs(l.DataDir()) {
		t.Errorf("корень данных должен быть абсолютным, получен %s", l.DataDir())
	}

	staged := stageFile(t, t.TempDir(), "a.pdf", []byte("a"))
	finalPath, err := l.Place(staged, "documents/personal", "a.pdf")
	if err != nil {
		t.Fatalf("ошибка размещения: %v", err)
	}
	if !filepath.IsAbs(finalPath) {
		t.Errorf("финальный путь должен быть абсолютным, получен %s", finalPath)
	}

	// Относительная форма того же пути распознаётся как живая
	if !l.UnderBucketRoots(filepath.Join("data", "documents", "personal", "a.pdf")) {
		t.Error("относительный путь под живым корнем должен распознаваться")
	}
}

// TestPlace_MovesFile проверяет перемещение staged-файла в категорию.
func TestPlace_MovesFile(t *testing.T) {
	l := newLayout(t)
	staged := stageFile(t, t.TempDir(), "report.pdf", []byte("content"))

	finalPath, err := l.Place(staged, "documents/financial", "report.pdf")
	if err != nil {
		t.Fatalf("ошибка размещения: %v", err)
	}

	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Error("staged-файл должен быть перемещён")
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		t.Fatalf("финальный файл отсутствует: %v", err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("ожидались права 0644, получены %o", info.Mode().Perm())
	}

	wantDir := filepath.Join(l.DataDir(), "documents", "financial")
	if filepath.Dir(finalPath) != wantDir {
		t.Errorf("ожидалась директория %s, получена %s", wantDir, filepath.Dir(finalPath))
	}
}

// TestPlace_CollisionSuffix проверяет разрешение коллизий суффиксом _N.
func TestPlace_CollisionSuffix(t *testing.T) {
	l := newLayout(t)
	stagingDir := t.TempDir()

	first := stageFile(t, stagingDir, "a.pdf", []byte("first"))
	p1, err := l.Place(first, "documents/personal", "report.pdf")
	if err != nil {
		t.Fatalf("ошибка первого размещения: %v", err)
	}

	second := stageFile(t, stagingDir, "b.pdf", []byte("second"))
	p2, err := l.Place(second, "documents/personal", "report.pdf")
	if err != nil {
		t.Fatalf("ошибка второго размещения: %v", err)
	}

	if p1 == p2 {
		t.Fatal("коллизия имён не разрешена")
	}
	if filepath.Base(p2) != "report_1.pdf" {
		t.Errorf("ожидалось имя report_1.pdf, получено %s", filepath.Base(p2))
	}

	// Первый файл не перезаписан
	data, err := os.ReadFile(p1)
	if err != nil {
		t.Fatalf("первый файл пропал: %v", err)
	}
	if string(data) != "first" {
		t.Errorf("содержимое первого файла перезаписано: %q", data)
	}
}

// TestPlace_InvalidCategory проверяет отказ для категорий вне корня данных.
func TestPlace_InvalidCategory(t *testing.T) {
	l := newLayout(t)

	for _, category := range []string{"../outside", "/etc", "..", ""} {
		staged := stageFile(t, t.TempDir(), "x.txt", []byte("x"))
		if _, err := l.Place(staged, category, "x.txt"); err == nil {
			t.Errorf("ожидалась ошибка для категории %q", category)
		}
	}
}

// TestQuarantineRestore_RoundTrip проверяет карантин и восстановление.
func TestQuarantineRestore_RoundTrip(t *testing.T) {
	l := newLayout(t)
	staged := stageFile(t, t.TempDir(), "doc.pdf", []byte("data"))

	finalPath, err := l.Place(staged, "documents/personal", "doc.pdf")
	if err != nil {
		t.Fatalf("ошибка размещения: %v", err)
	}

	recordID := "rec-123"
	qPath, err := l.Quarantine(finalPath, recordID)
	if err != nil {
		t.Fatalf("ошибка карантина: %v", err)
	}

	if filepath.Dir(qPath) != l.QuarantineDir() {
		t.Errorf("файл не в карантине: %s", qPath)
	}
	if filepath.Base(qPath) != recordID+"_doc.pdf" {
		t.Errorf("ожидалось имя %s_doc.pdf, получено %s", recordID, filepath.Base(qPath))
	}
	if _, err := os.Stat(finalPath); !os.IsNotExist(err) {
		t.Error("файл должен быть перемещён из живой директории")
	}

	restored, err := l.Restore(qPath, "documents/personal", recordID)
	if err != nil {
		t.Fatalf("ошибка восстановления: %v", err)
	}
	if filepath.Base(restored) != "doc.pdf" {
		t.Errorf("префикс записи не отброшен: %s", filepath.Base(restored))
	}

	data, err := os.ReadFile(restored)
	if err != nil {
		t.Fatalf("восстановленный файл отсутствует: %v", err)
	}
	if string(data) != "data" {
		t.Errorf("содержимое повреждено: %q", data)
	}
}

// TestUnderBucketRoots проверяет валидацию путей.
func TestUnderBucketRoots(t *testing.T) {
	l := newLayout(t)

	inside := filepath.Join(l.DataDir(), "documents", "personal", "a.pdf")
	if !l.UnderBucketRoots(inside) {
		t.Errorf("путь %s должен лежать под живым корнем", inside)
	}

	outside := []string{
		filepath.Join(l.QuarantineDir(), "x.pdf"),
		filepath.Join(l.DataDir(), "wal", "x.json"),
		"/etc/passwd",
	}
	for _, p := range outside {
		if l.UnderBucketRoots(p) {
			t.Errorf("путь %s не должен считаться живым", p)
		}
	}
}

// TestSanitizeName проверяет очистку имён файлов.
func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"my file.txt", "my_file.txt"},
		{"../../etc/passwd", "passwd"},
		{"семейный_архив.pdf", "семейный_архив.pdf"},
		{"Straße.pdf", "Straße.pdf"},
		{"<>:|?*.txt", "txt"},
		{"...", "file"},
		{"", "file"},
	}

	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q): ожидалось %q, получено %q", tt.in, tt.want, got)
		}
	}
}
