package classify

import (
	"testing"
)

// TestClassify_BucketByExtension проверяет выбор корзины по расширению.
func TestClassify_BucketByExtension(t *testing.T) {
	rs := NewRuleSet("de")

	tests := []struct {
		name      string
		mediaType string
		want      string
	}{
		{"report.pdf", "application/pdf", "documents/personal"},
		{"photo.jpg", "image/jpeg", "images/events"},
		{"clip.mp4", "video/mp4", "videos/events"},
		{"sheet.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "documents/personal"},
	}

	for _, tt := range tests {
		got := rs.Classify(tt.name, tt.mediaType)
		if got != tt.want {
			t.Errorf("Classify(%q): ожидалась категория %s, получена %s", tt.name, tt.want, got)
		}
	}
}

// TestClassify_BucketByMediaType проверяет fallback по MIME-типу
// при нераспознанном расширении.
func TestClassify_BucketByMediaType(t *testing.T) {
	rs := NewRuleSet("de")

	if got := rs.Classify("snapshot.xyz", "image/webp"); got != "images/events" {
		t.Errorf("ожидалась категория images/events, получена %s", got)
	}
	if got := rs.Classify("clip.xyz", "video/ogg"); got != "videos/events" {
		t.Errorf("ожидалась категория videos/events, получена %s", got)
	}
	// Неизвестный тип и расширение — documents
	if got := rs.Classify("data.bin", "application/octet-stream"); got != "documents/personal" {
		t.Errorf("ожидалась категория documents/personal, получена %s", got)
	}
}

// TestClassify_EnglishKeywords проверяет уточнение по английским ключевым словам.
func TestClassify_EnglishKeywords(t *testing.T) {
	rs := NewRuleSet("de")

	tests := []struct {
		name string
		want string
	}{
		{"Invoice_2025.pdf", "documents/financial"},
		{"doctor_letter.pdf", "documents/medical"},
		{"rental_contract.pdf", "documents/legal"},
		{"passport_scan.jpg", "images/documents"},
		{"family_birthday.jpg", "images/family"},
		{"christmas_dinner.mp4", "videos/family"},
	}

	for _, tt := range tests {
		if got := rs.Classify(tt.name, ""); got != tt.want {
			t.Errorf("Classify(%q): ожидалась категория %s, получена %s", tt.name, tt.want, got)
		}
	}
}

// TestClassify_SecondaryKeywords проверяет слова второго языка.
func TestClassify_SecondaryKeywords(t *testing.T) {
	de := NewRuleSet("de")
	if got := de.Classify("Rechnung_Strom.pdf", "application/pdf"); got != "documents/financial" {
		t.Errorf("de: ожидалась категория documents/financial, получена %s", got)
	}

	ru := NewRuleSet("ru")
	if got := ru.Classify("договор_аренды.pdf", "application/pdf"); got != "documents/legal" {
		t.Errorf("ru: ожидалась категория documents/legal, получена %s", got)
	}

	// Немецкие слова не действуют в наборе ru
	if got := ru.Classify("Rechnung_Strom.pdf", "application/pdf"); got != "documents/personal" {
		t.Errorf("ru: немецкое слово не должно срабатывать, получена категория %s", got)
	}
}

// TestClassify_FirstMatchWins проверяет, что выигрывает первое правило.
func TestClassify_FirstMatchWins(t *testing.T) {
	rs := NewRuleSet("de")

	// Имя содержит и financial (invoice), и medical (doctor) —
	// financial идёт первым в таблице
	if got := rs.Classify("invoice_from_doctor.pdf", ""); got != "documents/financial" {
		t.Errorf("ожидалась категория documents/financial, получена %s", got)
	}
}

// TestClassify_Deterministic проверяет стабильность результата.
func TestClassify_Deterministic(t *testing.T) {
	rs := NewRuleSet("ru")

	first := rs.Classify("family_trip.jpg", "image/jpeg")
	for i := 0; i < 100; i++ {
		if got := rs.Classify("family_trip.jpg", "image/jpeg"); got != first {
			t.Fatalf("результат классификации нестабилен: %s != %s", got, first)
		}
	}
}

// TestClassify_CaseInsensitive проверяет регистронезависимость ключевых слов.
func TestClassify_CaseInsensitive(t *testing.T) {
	rs := NewRuleSet("de")

	if got := rs.Classify("INVOICE_2025.PDF", ""); got != "documents/financial" {
		t.Errorf("ожидалась категория documents/financial, получена %s", got)
	}
}

// TestBuckets проверяет список корзин верхнего уровня.
func TestBuckets(t *testing.T) {
	buckets := Buckets()
	if len(buckets) != 3 {
		t.Fatalf("ожидалось 3 корзины, получено %d", len(buckets))
	}

	want := map[string]bool{BucketDocuments: true, BucketImages: true, BucketVideos: true}
	for _, b := range buckets {
		if !want[b] {
			t.Errorf("неожиданная корзина %s", b)
		}
	}
}

// TestNewRuleSet_UnknownLang проверяет набор с неизвестным вторым языком.
func TestNewRuleSet_UnknownLang(t *testing.T) {
	rs := NewRuleSet("fr")

	// Английские слова работают
	if got := rs.Classify("tax_return.pdf", ""); got != "documents/financial" {
		t.Errorf("ожидалась категория documents/financial, получена %s", got)
	}
	// Немецкие — нет
	if got := rs.Classify("Rechnung.pdf", ""); got != "documents/personal" {
		t.Errorf("ожидалась категория documents/personal, получена %s", got)
	}
}
