package filter

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	digitsOnlyRegex  = regexp.MustCompile(`[^0-9]`)
	firstNumberRegex = regexp.MustCompile(`\d+`)
	decimalRegex     = regexp.MustCompile(`(\d+[\.,]?\d*)`)
	bedroomsRegex    = regexp.MustCompile(`(\d+)\s*hab`)
	bathroomsRegex   = regexp.MustCompile(`(\d+)\s*ba`)
)

// 否定词表: 出现在特征附近时该特征视为不存在
var negativeTokens = []string{"ninguno", "ninguna", "sin", "no", "0"}

// ParsePrice 从任意文本中提取价格: 剔除全部非数字字符后解析
// "$ 1.800.000 COP" -> 1800000
func ParsePrice(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	digits := digitsOnlyRegex.ReplaceAllString(raw, "")
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseEstrato 提取文本中的第一段数字作为社会阶层等级
func ParseEstrato(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	match := firstNumberRegex.FindString(raw)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseArea 提取面积数值,兼容欧式与美式小数写法
func ParseArea(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	match := decimalRegex.FindString(raw)
	if match == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(normalizeNumber(match), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseBedrooms 优先匹配 "N hab" 模式,退化到首段数字
func ParseBedrooms(raw string) (int, bool) {
	return parseSpecificNumber(raw, bedroomsRegex)
}

// ParseBathrooms 优先匹配 "N ba" 模式,退化到首段数字
func ParseBathrooms(raw string) (int, bool) {
	return parseSpecificNumber(raw, bathroomsRegex)
}

func parseSpecificNumber(raw string, pattern *regexp.Regexp) (int, bool) {
	if raw == "" {
		return 0, false
	}
	if match := pattern.FindStringSubmatch(NormalizeText(raw)); match != nil {
		if n, err := strconv.Atoi(match[1]); err == nil {
			return n, true
		}
	}
	return ParseInteger(raw)
}

// ParseInteger 提取文本中的首段数字
func ParseInteger(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	match := firstNumberRegex.FindString(raw)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}

// normalizeNumber 统一小数写法
// "1.234,5" -> "1234.5"; "120.5" 保持; "1.234" 千分位写法 -> 视情况
func normalizeNumber(number string) string {
	number = strings.TrimSpace(number)
	hasDot := strings.Contains(number, ".")
	hasComma := strings.Contains(number, ",")

	switch {
	case hasDot && hasComma:
		number = strings.ReplaceAll(number, ".", "")
		number = strings.ReplaceAll(number, ",", ".")
	case hasDot:
		integer, fraction, _ := strings.Cut(number, ".")
		if len(fraction) <= 2 {
			number = integer + "." + fraction
		} else {
			number = integer + fraction
		}
	default:
		number = strings.ReplaceAll(number, ",", ".")
	}
	return number
}

var accentStripper = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeText 去除重音并转小写,西语文本比较的统一形态
// "Baños" -> "banos"
func NormalizeText(value string) string {
	stripped, _, err := transform.String(accentStripper, value)
	if err != nil {
		stripped = value
	}
	return strings.ToLower(stripped)
}

// CanonicalizeURL 去除查询串,得到可作为去重键的规范URL
func CanonicalizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	canonical, _, _ := strings.Cut(rawURL, "?")
	return canonical
}

// containsNegative 文本中是否含否定词
func containsNegative(text string) bool {
	for _, token := range negativeTokens {
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}

// hasNegativeContext 关键字前方小窗口内是否出现否定词
// 捕获"sin balcon"这类表达,窗口固定8个字符
func hasNegativeContext(text, keyword string) bool {
	const windowSize = 8

	for from := 0; ; {
		index := strings.Index(text[from:], keyword)
		if index == -1 {
			return false
		}
		index += from

		start := index - windowSize
		if start < 0 {
			start = 0
		}
		snippet := text[start : index+len(keyword)]
		if containsNegative(snippet) {
			return true
		}
		from = index + 1
	}
}
