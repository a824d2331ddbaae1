// Пакет classify — классификатор категорий хранения.
// Чистая функция без I/O: имя файла + MIME-тип → путь категории
// вида «documents/financial». Правила — статическая упорядоченная
// таблица: расширение → корзина, корзина + список ключевых слов →
// категория. Первое совпадение выигрывает.
package classify

import (
	"path/filepath"
	"strings"
)

// Корзины верхнего уровня.
const (
	BucketDocuments = "documents"
	BucketImages    = "images"
	BucketVideos    = "videos"
)

// bucketExtensions — расширение → корзина верхнего уровня.
// Нераспознанное расширение попадает в documents.
var bucketExtensions = map[string]string{
	".pdf":  BucketDocuments,
	".doc":  BucketDocuments,
	".docx": BucketDocuments,
	".txt":  BucketDocuments,
	".odt":  BucketDocuments,
	".xls":  BucketDocuments,
	".xlsx": BucketDocuments,
	".jpg":  BucketImages,
	".jpeg": BucketImages,
	".png":  BucketImages,
	".gif":  BucketImages,
	".heic": BucketImages,
	".bmp":  BucketImages,
	".mp4":  BucketVideos,
	".mov":  BucketVideos,
	".avi":  BucketVideos,
	".mkv":  BucketVideos,
	".webm": BucketVideos,
}

// keywordRule — одно правило уточнения внутри корзины.
type keywordRule struct {
	// category — полный путь категории при совпадении
	category string
	// keywords — подстроки, ищутся в имени файла в нижнем регистре
	keywords []string
}

// RuleSet — набор правил классификации. Детерминирован: одинаковая
// конфигурация и вход всегда дают одинаковую категорию.
type RuleSet struct {
	// rules — упорядоченные правила по корзинам, первое совпадение выигрывает
	rules map[string][]keywordRule
	// defaults — категория корзины по умолчанию
	defaults map[string]string
}

// secondaryKeywords — ключевые слова второго языка по корзинам и категориям.
var secondaryKeywords = map[string]map[string][]string{
	"de": {
		"documents/financial": {"rechnung", "quittung", "beleg"},
		"documents/medical":   {"gesundheit", "arzt", "rezept"},
		"documents/legal":     {"vertrag", "testament", "vollmacht"},
		"images/documents":    {"ausweis", "reisepass"},
		"images/family":       {"familie", "geburtstag", "hochzeit"},
		"videos/family":       {"familie", "geburtstag", "weihnachten"},
	},
	"ru": {
		"documents/financial": {"счет", "счёт", "квитанция", "чек"},
		"documents/medical":   {"медицин", "врач", "рецепт"},
		"documents/legal":     {"договор", "завещание", "доверенность"},
		"images/documents":    {"паспорт", "удостоверение"},
		"images/family":       {"семья", "деньрождения", "свадьба"},
		"videos/family":       {"семья", "деньрождения", "новыйгод"},
	},
}

// NewRuleSet создаёт таблицу правил с английскими ключевыми словами
// плюс слова второго языка (de или ru). Неизвестный язык даёт набор
// только с английскими словами.
func NewRuleSet(secondaryLang string) *RuleSet {
	rs := &RuleSet{
		rules: map[string][]keywordRule{
			BucketDocuments: {
				{category: "documents/financial", keywords: []string{"invoice", "bill", "receipt", "tax", "bank"}},
				{category: "documents/medical", keywords: []string{"medical", "doctor", "prescription", "vaccination"}},
				{category: "documents/legal", keywords: []string{"contract", "legal", "testament", "will", "deed"}},
			},
			BucketImages: {
				{category: "images/documents", keywords: []string{"passport", "license", "id_", "idcard"}},
				{category: "images/family", keywords: []string{"family", "birthday", "wedding"}},
			},
			BucketVideos: {
				{category: "videos/family", keywords: []string{"family", "birthday", "christmas"}},
			},
		},
		defaults: map[string]string{
			BucketDocuments: "documents/personal",
			BucketImages:    "images/events",
			BucketVideos:    "videos/events",
		},
	}

	// Дополняем правила словами второго языка
	if extra, ok := secondaryKeywords[secondaryLang]; ok {
		for bucket, rules := range rs.rules {
			for i := range rules {
				if words, ok := extra[rules[i].category]; ok {
					rs.rules[bucket][i].keywords = append(rs.rules[bucket][i].keywords, words...)
				}
			}
		}
	}

	return rs
}

// Classify определяет категорию хранения по оригинальному имени файла
// и MIME-типу. Алгоритм: корзина по расширению (при нераспознанном
// расширении — по префиксу MIME-типа, затем documents), уточнение
// по ключевым словам внутри корзины, иначе категория по умолчанию.
func (rs *RuleSet) Classify(originalName, mediaType string) string {
	bucket := bucketFor(originalName, mediaType)
	nameLower := strings.ToLower(originalName)

	for _, rule := range rs.rules[bucket] {
		for _, kw := range rule.keywords {
			if strings.Contains(nameLower, kw) {
				return rule.category
			}
		}
	}

	return rs.defaults[bucket]
}

// Buckets возвращает список корзин верхнего уровня — живые корневые
// директории, которые сканирует reconciliation.
func Buckets() []string {
	return []string{BucketDocuments, BucketImages, BucketVideos}
}

// bucketFor выбирает корзину верхнего уровня.
func bucketFor(originalName, mediaType string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if b, ok := bucketExtensions[ext]; ok {
		return b
	}

	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return BucketImages
	case strings.HasPrefix(mediaType, "video/"):
		return BucketVideos
	default:
		return BucketDocuments
	}
}
