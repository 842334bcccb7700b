package classify

import (
	"regexp"
	"strings"
)

// monetizationTerms 是变现相关词表（词边界 + 大小写不敏感）。
// 顺序无语义；新增词条只需追加一行。
var monetizationTerms = []string{
	`\bloot\s*box(es)?\b`,
	`\bgacha\b`,
	`\bmicro[-\s]?transaction(s)?\b`,
	`\bmtx\b`,
	`\bbattle\s*pass(es)?\b`,
	`\bseason\s*pass(es)?\b`,
	`\bpay\s*to\s*win\b`,
	`\bp2w\b`,
	`\bmonetiz(e|ation|ed|ing)\b`,
	`\bcosmetic(s)?\b`,
	`\bskins?\b`,
	`\bcrates?\b`,
	`\bkeys?\b`,
	`\bpremium\s*(currency|shop)\b`,
	`\bstore\b`,
}

var monetizationRE = regexp.MustCompile(`(?i)` + strings.Join(monetizationTerms, "|"))

// Monetization 判断文本是否提及变现相关概念。空文本恒为 false。
func Monetization(text string) bool {
	if text == "" {
		return false
	}
	return monetizationRE.MatchString(text)
}
