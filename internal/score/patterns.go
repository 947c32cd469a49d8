package score

import (
	"strings"
)

// fakeCombos are term combinations typical of fabricated or sensational
// claims. Three-term combos weigh 3, two-term combos 1.5.
var fakeCombos = [][]string{
	// corrections and retractions
	{"오보", "정정", "사과"},
	{"오역", "잘못", "인정"},
	{"가짜", "허위", "조작"},
	{"방심위", "경고", "징계"},
	{"바로잡", "수정", "정정보도"},

	// implausible blanket mandates
	{"모든 국민", "1일 2시간", "법안"},
	{"모든 국민", "자동 설치", "벌금"},
	{"모든", "강제", "법안"},
	{"전 국민", "의무", "처벌"},

	// extreme figures
	{"100%", "즉시", "효과"},
	{"24시간", "완전", "치료"},
	{"하루", "10kg", "감량"},
	{"1일", "차단", "벌금"},

	// miracle cures
	{"암", "완치", "비법"},
	{"당뇨", "하루", "완전"},
	{"코로나", "예방", "100%"},

	// investment fraud
	{"무조건", "수익", "보장"},
	{"하루", "백만원", "벌기"},
	{"투자", "원금보장", "고수익"},

	// sensational framing
	{"충격", "진실"},
	{"절대", "믿을 수 없는"},
	{"국가기밀", "최초공개"},
	{"자동", "차단"},
	{"강제", "모니터링"},
}

// suspiciousTerms each add 0.1 to the pattern score
var suspiciousTerms = []string{
	"100%", "완전", "전면",
	"충격", "놀라운", "믿을 수 없는", "폭로",
	"완치", "효과 100%", "즉시", "하루만에",
	"원금보장", "무손실", "확실한 수익", "대박",
	"전 국민", "모든 국민", "일괄 적용",
}

// PatternResult is the outcome of fake-content pattern detection
type PatternResult struct {
	Score          float64  `json:"score"`
	Combos         []string `json:"combos,omitempty"`
	Terms          []string `json:"terms,omitempty"`
	QualityPenalty float64  `json:"quality_penalty"`
	GlobalPenalty  float64  `json:"global_penalty"`
}

// DetectPatterns scans text (query text plus title) for fake-content
// patterns and derives the evidence-quality and global penalties
func DetectPatterns(text string) PatternResult {
	lower := strings.ToLower(text)
	var res PatternResult

	for _, combo := range fakeCombos {
		if !containsAll(lower, combo) {
			continue
		}
		if len(combo) >= 3 {
			res.Score += 3
		} else {
			res.Score += 1.5
		}
		res.Combos = append(res.Combos, strings.Join(combo, "+"))
	}

	for _, term := range suspiciousTerms {
		if strings.Contains(lower, term) {
			res.Score += 0.1
			res.Terms = append(res.Terms, term)
		}
	}

	res.QualityPenalty, res.GlobalPenalty = PatternPenalties(res.Score)
	return res
}

// PatternPenalties maps a pattern score onto the evidence-quality penalty
// and the penalty subtracted from the final score
func PatternPenalties(score float64) (quality, global float64) {
	switch {
	case score >= 4:
		return 0.8, 0.5
	case score >= 2:
		return 0.5, 0.3
	case score >= 1:
		return 0.2, 0.1
	}
	return 0, 0
}

func containsAll(s string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(s, t) {
			return false
		}
	}
	return true
}
