package source

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	// 第十二章, 第3回, 第IV卷 ...
	cjkChapterRe = regexp.MustCompile(`第\s*([0-9]+|[一二两三四五六七八九十〇零壹贰叁肆伍陆柒捌玖拾佰仟萬万亿廿卅皕百千]+|[IVXLCDMivxlcdm]+)\s*[章回节篇幕集话卷]`)
	// Chapter 12, chapter XII
	latinChapterRe = regexp.MustCompile(`(?i)\bchapter[\s_-]*([0-9]+|[ivxlcdm]+)\b`)
	// 001. Title, 12 Title, 7、Title
	leadingNumberRe = regexp.MustCompile(`^\s*(\d+)\s*[.、 _-]`)
	anyNumberRe     = regexp.MustCompile(`\d+`)
)

// ChapterNumber extracts the chapter number from a chapter title. Arabic,
// Chinese and Roman numerals are understood.
func ChapterNumber(title string) (int, bool) {
	if m := cjkChapterRe.FindStringSubmatch(title); m != nil {
		if n, ok := parseNumeral(m[1]); ok {
			return n, true
		}
	}
	if m := latinChapterRe.FindStringSubmatch(title); m != nil {
		if n, ok := parseNumeral(m[1]); ok {
			return n, true
		}
	}
	if m := leadingNumberRe.FindStringSubmatch(title); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	if m := anyNumberRe.FindString(title); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return n, true
		}
	}
	return 0, false
}

func parseNumeral(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if n, ok := chineseNumber(s); ok {
		return n, true
	}
	return romanNumber(s)
}

var (
	chineseDigits = map[rune]int{
		'零': 0, '〇': 0,
		'一': 1, '壹': 1,
		'二': 2, '贰': 2, '两': 2,
		'三': 3, '叁': 3,
		'四': 4, '肆': 4,
		'五': 5, '伍': 5,
		'六': 6, '陆': 6,
		'七': 7, '柒': 7,
		'八': 8, '捌': 8,
		'九': 9, '玖': 9,
	}
	chineseUnits = map[rune]int{
		'十': 10, '拾': 10,
		'百': 100, '佰': 100,
		'千': 1000, '仟': 1000,
	}
	chineseTens = map[rune]int{'廿': 20, '卅': 30, '皕': 200}
	// Section units multiply everything accumulated before them.
	chineseSections = map[rune]int{'万': 10000, '萬': 10000, '亿': 100000000}
)

func chineseNumber(s string) (int, bool) {
	total, section, digit := 0, 0, 0
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if d, ok := chineseDigits[r]; ok {
			digit = d
			continue
		}
		if u, ok := chineseUnits[r]; ok {
			if digit == 0 {
				digit = 1
			}
			section += digit * u
			digit = 0
			continue
		}
		if v, ok := chineseTens[r]; ok {
			section += v
			digit = 0
			continue
		}
		if u, ok := chineseSections[r]; ok {
			total += (section + digit) * u
			section, digit = 0, 0
			continue
		}
		return 0, false
	}
	n := total + section + digit
	return n, n > 0
}

var romanValues = map[rune]int{'I': 1, 'V': 5, 'X': 10, 'L': 50, 'C': 100, 'D': 500, 'M': 1000}

func romanNumber(s string) (int, bool) {
	total, prev := 0, 0
	runes := []rune(strings.ToUpper(s))
	for i := len(runes) - 1; i >= 0; i-- {
		v, ok := romanValues[runes[i]]
		if !ok {
			return 0, false
		}
		if v < prev {
			total -= v
		} else {
			total += v
			prev = v
		}
	}
	return total, total > 0
}

// SortChapters orders chapter ids by their chapter number. Ids without a
// number come last, sorted by name.
func SortChapters(ids []string) {
	slices.SortStableFunc(ids, func(a, b string) int {
		na, oka := ChapterNumber(a)
		nb, okb := ChapterNumber(b)
		switch {
		case oka && !okb:
			return -1
		case !oka && okb:
			return 1
		case oka && okb && na != nb:
			return na - nb
		}
		return strings.Compare(a, b)
	})
}
