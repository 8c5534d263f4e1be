// Package anomaly classifies briefing narratives as anomaly-bearing.
//
// This is the text-heuristic half of anomaly detection, used when attesting
// already-generated narratives on-chain. The structured z-score signal that
// routes narrative generation lives in the warehouse layer; the two paths are
// intentionally independent and may disagree for the same day.
package anomaly

import "strings"

// 中英文关键字，与简报的生成语言保持一致。
var (
	negativeKeywords = []string{"anomal", "abnormal", "irregular", "异常", "显著"}
	negationPhrases  = []string{"no anomaly", "no significant", "未发现显著异常"}
)

// FromText reports whether a narrative describes an anomaly. An explicit
// negation phrase always wins over negative keywords, and a text with no
// keyword at all is not anomalous: under-detection is preferred to false
// positives.
func FromText(summary string) bool {
	if summary == "" {
		return false
	}
	s := strings.ToLower(summary)
	for _, g := range negationPhrases {
		if strings.Contains(s, g) {
			return false
		}
	}
	for _, b := range negativeKeywords {
		if strings.Contains(s, b) {
			return true
		}
	}
	return false
}
