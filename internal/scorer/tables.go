package scorer

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	cSuite = NewPhrases("ceo", "cfo", "cto", "coo", "cro", "cco", "ciso", "chief")
	board  = NewPhrases("board member", "board director", "independent director",
		"non executive director", "nonexecutive director", "chairman", "chairwoman", "chair of the board")
	seniorExec     = NewPhrases("executive vice president", "senior vice president", "evp", "svp")
	vicePresident  = NewPhrases("vice president", "vp")
	president      = NewPhrases("president")
	director       = NewPhrases("director", "head of", "managing director")
	titleSpecialty = NewPhrases("risk", "governance", "compliance", "audit", "regulatory")
)

// TitleLevel classifies a job title into a seniority band.
type TitleLevel int

const (
	LevelNone TitleLevel = iota
	LevelDirector
	LevelVP
	LevelSeniorExec
	LevelBoard
	LevelCSuite
)

// ClassifyTitle returns the seniority band of a title using whole-word
// matching, so "Director" never reads as "cto".
func ClassifyTitle(title string) TitleLevel {
	w := Words(title)
	switch {
	case cSuite.Any(w):
		return LevelCSuite
	case board.Any(w):
		return LevelBoard
	case seniorExec.Any(w):
		return LevelSeniorExec
	case vicePresident.Any(w):
		return LevelVP
	case president.Any(w):
		return LevelSeniorExec
	case director.Any(w):
		return LevelDirector
	}
	return LevelNone
}

var titleLevelPoints = map[TitleLevel]float64{
	LevelCSuite:     95,
	LevelBoard:      90,
	LevelSeniorExec: 85,
	LevelVP:         75,
	LevelDirector:   65,
}

type industryScore struct {
	key   string
	match Phrases
	score float64
}

// Ordered so that the most specific label wins.
var industryTable = []industryScore{
	{"financial_services", NewPhrases("financial services", "financial", "finance", "asset management", "investment"), 100},
	{"banking", NewPhrases("banking", "bank"), 95},
	{"insurance", NewPhrases("insurance"), 90},
	{"healthcare", NewPhrases("healthcare", "health care", "hospital"), 90},
	{"pharmaceuticals", NewPhrases("pharmaceuticals", "pharmaceutical", "biotech", "life sciences"), 85},
	{"technology", NewPhrases("technology", "software", "information technology"), 85},
	{"consulting", NewPhrases("consulting", "professional services"), 80},
	{"manufacturing", NewPhrases("manufacturing"), 75},
	{"energy", NewPhrases("energy", "utilities", "oil"), 75},
	{"telecommunications", NewPhrases("telecommunications", "telecom"), 70},
}

// IndustryCategory maps a free-form industry label onto a canonical key
// such as "financial_services". Unrecognized labels return "other" and
// empty labels return "".
func IndustryCategory(industry string) string {
	w := Words(industry)
	if len(w) == 0 {
		return ""
	}
	for _, row := range industryTable {
		if row.match.Any(w) {
			return row.key
		}
	}
	return "other"
}

// IndustryScore rates an industry label; empty is unknown.
func IndustryScore(industry string, neutral float64) float64 {
	cat := IndustryCategory(industry)
	if cat == "" {
		return neutral
	}
	for _, row := range industryTable {
		if row.key == cat {
			return row.score
		}
	}
	return 60
}

var (
	digitsRe     = regexp.MustCompile(`\d[\d,]*`)
	sizeKeywords = []struct {
		match Phrases
		score float64
	}{
		{NewPhrases("enterprise", "fortune 500", "global"), 100},
		{NewPhrases("large"), 90},
		{NewPhrases("medium", "mid market", "midsize"), 75},
		{NewPhrases("small"), 60},
		{NewPhrases("startup", "early stage"), 40},
	}
)

// EmployeeCount extracts the largest number from a size label such as
// "1,001-5,000" or "10000+". It returns 0 when none is present.
func EmployeeCount(size string) int {
	best := 0
	for _, m := range digitsRe.FindAllString(size, -1) {
		n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
		if err == nil && n > best {
			best = n
		}
	}
	return best
}

func sizeScoreFromCount(n int) float64 {
	switch {
	case n >= 10000:
		return 100
	case n >= 5000:
		return 90
	case n >= 1000:
		return 75
	case n >= 500:
		return 60
	default:
		return 40
	}
}

// SizeScore rates company size from a label, falling back to an employee
// count from enrichment.
func SizeScore(label string, employees int, neutral float64) float64 {
	if n := EmployeeCount(label); n > 0 {
		return sizeScoreFromCount(n)
	}
	w := Words(label)
	for _, row := range sizeKeywords {
		if row.match.Any(w) {
			return row.score
		}
	}
	if employees > 0 {
		return sizeScoreFromCount(employees)
	}
	return neutral
}

var (
	wellKnownCompanies = NewPhrases("google", "microsoft", "apple", "amazon", "meta", "tesla",
		"jpmorgan", "jp morgan", "bank of america", "wells fargo", "goldman sachs",
		"johnson johnson", "pfizer", "merck", "abbott")
	legalSuffixes = NewPhrases("inc", "corp", "corporation", "llc", "ltd", "limited", "plc", "co", "group")
)

// ReputationScore rates a company name.
func ReputationScore(company string, neutral float64) float64 {
	w := Words(company)
	switch {
	case len(w) == 0:
		return neutral
	case wellKnownCompanies.Any(w):
		return 95
	case legalSuffixes.Any(w):
		return 70
	}
	return 60
}

var (
	researchPositive = NewPhrases("leadership", "experience", "expertise", "award", "recognized",
		"published", "speaker", "keynote", "innovation", "growth", "led", "founded")
	researchGovernance = NewPhrases("governance", "board", "compliance", "risk", "audit",
		"oversight", "fiduciary", "regulatory", "committee")
)
