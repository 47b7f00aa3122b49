package ocr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParsedCase holds the fields extracted from an accepted OCR result.
// OccurredAt is a "2006-01-02" date string; zero-valued fields were not
// found in the text.
type ParsedCase struct {
	Category         string `json:"category,omitempty"`
	PersonName       string `json:"person_name,omitempty"`
	Age              int    `json:"age,omitempty"`
	Gender           string `json:"gender,omitempty"`
	OccurredAt       string `json:"occurred_at,omitempty"`
	OccurredLocation string `json:"occurred_location,omitempty"`
	HeightCM         int    `json:"height_cm,omitempty"`
	WeightKG         int    `json:"weight_kg,omitempty"`
	BodyType         string `json:"body_type,omitempty"`
	FaceShape        string `json:"face_shape,omitempty"`
	HairColor        string `json:"hair_color,omitempty"`
	HairStyle        string `json:"hair_style,omitempty"`
	Clothing         string `json:"clothing,omitempty"`
	Features         string `json:"features,omitempty"`
	Status           string `json:"status,omitempty"`
}

// Sentinel defaults for fields the notice did not state.
const (
	DefaultCategory = "실종자"
	DefaultStatus   = "신고"
)

// firstLineRe matches the combined header line of a notice, e.g.
// "장애: 이우승(55세) 남자" or "아동 김수아(14세) 여자", yielding
// category, name, age, and gender in one pass.
var firstLineRe = regexp.MustCompile(`(?m)^\s*([가-힣]+)[:：]?\s+([가-힣]{2,4})\s*\(\s*(\d{1,3})\s*세\s*\)\s*(남|여|남자|여자|남성|여성)`)

var (
	nameRe     = regexp.MustCompile(`(?:성명|이름)\s*[:：]?\s*([가-힣]{2,4})`)
	ageRe      = regexp.MustCompile(`(?:나이|연령|당시나이|당시\s*나이)\s*[:：]?\s*(\d{1,3})`)
	genderRe   = regexp.MustCompile(`성별\s*[:：]?\s*(남|여|남성|여성)`)
	dateRe     = regexp.MustCompile(`(?:발생일시|실종일시)\s*[:：]?\s*(\d{4})년\s*(\d{1,2})월\s*(\d{1,2})일`)
	locationRe = regexp.MustCompile(`(?m)(?:실종장소|발생장소|장소)\s*[:：]?\s*(.+?)\s*(?:키|신장|$)`)
	heightRe   = regexp.MustCompile(`(?:신장|키)\s*[:：]?\s*(\d{2,3})\s*cm`)
	weightRe   = regexp.MustCompile(`(?:체중|몸무게)\s*[:：]?\s*(\d{2,3})\s*kg`)
	bodyRe     = regexp.MustCompile(`(?:체격|체형)\s*[:：]?\s*([가-힣()（）]+)`)
	faceRe     = regexp.MustCompile(`(?:얼굴형|얼굴)\s*[:：]?\s*([가-힣()（）]+)`)
	hairColRe  = regexp.MustCompile(`(?:두발색상|머리색|머리카락색)\s*[:：]?\s*([가-힣()（）]+)`)
	hairStyRe  = regexp.MustCompile(`(?:두발형태|머리형태|헤어스타일)\s*[:：]?\s*([가-힣()（）]+)`)
	clothingRe = regexp.MustCompile(`(?m)(?:착의의상|착의사항|착의|옷차림|의상)\s*[:：]?\s*(.+?)\s*(?:진행상태|특이사항|특징|기타특징|$)`)
	featuresRe = regexp.MustCompile(`(?:특이사항|특징|기타특징)\s*[:：]?\s*([^\n]+)`)
	statusRe   = regexp.MustCompile(`(?:진행상태|상태)\s*[:：]?\s*([가-힣]+)`)
)

// clothingLabelOnlyRe rejects matches where the capture is just another
// label rather than an actual description.
var clothingLabelOnlyRe = regexp.MustCompile(`^(착의|의상|착의의상|착의사항)$`)

// fieldRule applies one fallback pattern to the accumulator. Rules must
// only fill a field that is still unset so the first-line match wins.
type fieldRule struct {
	re    *regexp.Regexp
	apply func(c *ParsedCase, m []string)
}

var fieldRules = []fieldRule{
	{nameRe, func(c *ParsedCase, m []string) {
		if c.PersonName == "" {
			c.PersonName = m[1]
		}
	}},
	{ageRe, func(c *ParsedCase, m []string) {
		if c.Age == 0 {
			if age, err := strconv.Atoi(m[1]); err == nil {
				c.Age = age
			}
		}
	}},
	{genderRe, func(c *ParsedCase, m []string) {
		if c.Gender == "" {
			c.Gender = NormalizeGender(m[1])
		}
	}},
	{dateRe, func(c *ParsedCase, m []string) {
		if c.OccurredAt != "" {
			return
		}
		year, err1 := strconv.Atoi(m[1])
		month, err2 := strconv.Atoi(m[2])
		day, err3 := strconv.Atoi(m[3])
		if err1 != nil || err2 != nil || err3 != nil {
			return
		}
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return
		}
		c.OccurredAt = fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	}},
	{locationRe, func(c *ParsedCase, m []string) {
		if c.OccurredLocation == "" {
			c.OccurredLocation = strings.TrimSpace(m[1])
		}
	}},
	{heightRe, func(c *ParsedCase, m []string) {
		if c.HeightCM == 0 {
			if v, err := strconv.Atoi(m[1]); err == nil {
				c.HeightCM = v
			}
		}
	}},
	{weightRe, func(c *ParsedCase, m []string) {
		if c.WeightKG == 0 {
			if v, err := strconv.Atoi(m[1]); err == nil {
				c.WeightKG = v
			}
		}
	}},
	{bodyRe, func(c *ParsedCase, m []string) {
		if c.BodyType == "" {
			c.BodyType = strings.TrimSpace(m[1])
		}
	}},
	{faceRe, func(c *ParsedCase, m []string) {
		if c.FaceShape == "" {
			c.FaceShape = strings.TrimSpace(m[1])
		}
	}},
	{hairColRe, func(c *ParsedCase, m []string) {
		if c.HairColor == "" {
			c.HairColor = strings.TrimSpace(m[1])
		}
	}},
	{hairStyRe, func(c *ParsedCase, m []string) {
		if c.HairStyle == "" {
			c.HairStyle = strings.TrimSpace(m[1])
		}
	}},
	{clothingRe, func(c *ParsedCase, m []string) {
		if c.Clothing != "" {
			return
		}
		clothing := strings.TrimSpace(m[1])
		if utf8Len(clothing) < 2 || clothingLabelOnlyRe.MatchString(clothing) {
			return
		}
		c.Clothing = clothing
	}},
	{featuresRe, func(c *ParsedCase, m []string) {
		if c.Features == "" {
			c.Features = strings.TrimSpace(m[1])
		}
	}},
	{statusRe, func(c *ParsedCase, m []string) {
		if c.Status == "" {
			c.Status = strings.TrimSpace(m[1])
		}
	}},
}

// Parse extracts case fields from an accepted OCR result. The combined
// first-line pattern runs first; the field-level fallbacks only fill
// fields it left empty. Malformed numeric matches are dropped rather than
// failing the parse, and unmatched optional fields get sentinel defaults.
func Parse(text string) ParsedCase {
	var c ParsedCase

	if m := firstLineRe.FindStringSubmatch(text); m != nil {
		c.Category = m[1]
		c.PersonName = m[2]
		if age, err := strconv.Atoi(m[3]); err == nil {
			c.Age = age
		}
		c.Gender = NormalizeGender(m[4])
	}

	for _, rule := range fieldRules {
		if m := rule.re.FindStringSubmatch(text); m != nil {
			rule.apply(&c, m)
		}
	}

	if c.Category == "" {
		c.Category = DefaultCategory
	}
	if c.Status == "" {
		c.Status = DefaultStatus
	}
	return c
}

// NormalizeGender maps the gender spellings found in notices onto the two
// canonical values.
func NormalizeGender(gender string) string {
	switch {
	case strings.Contains(gender, "남"):
		return "남성"
	case strings.Contains(gender, "여"):
		return "여성"
	default:
		return gender
	}
}

func utf8Len(s string) int {
	return len([]rune(s))
}
