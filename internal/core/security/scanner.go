package security

import (
	"fmt"
	"regexp"
)

// Rule 定义了敏感信息检测规则
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

// builtinRules 按优先级排列，更具体的模式在前
var builtinRules = []struct {
	name, pattern, replacement string
}{
	{"Private Key", `-----BEGIN [A-Z ]+ PRIVATE KEY-----`, "[PRIVATE_KEY_REDACTED]"},
	{"AWS Access Key", `\bAKIA[0-9A-Z]{16}\b`, "[AWS_AK_REDACTED]"},
	{"Anthropic API Key", `\bsk-ant-[a-zA-Z0-9_-]{20,}`, "[ANTHROPIC_KEY_REDACTED]"},
	{"OpenAI API Key", `\bsk-(?:proj-)?[a-zA-Z0-9]{20,}\b`, "[OPENAI_KEY_REDACTED]"},
	{"GitHub Token", `\b(ghp|gho|ghu|ghs|ghr)_[a-zA-Z0-9]{36}\b`, "[GITHUB_TOKEN_REDACTED]"},
	{"Google API Key", `\bAIza[0-9A-Za-z_-]{35}\b`, "[GOOGLE_KEY_REDACTED]"},
}

// Scanner 在消息发往上游之前清理其中的凭据
type Scanner struct {
	rules []Rule
}

// NewScanner 创建一个内置凭据规则的 Scanner
func NewScanner() *Scanner {
	s := &Scanner{rules: make([]Rule, 0, len(builtinRules))}
	for _, r := range builtinRules {
		s.rules = append(s.rules, Rule{
			Name:        r.name,
			Pattern:     regexp.MustCompile(r.pattern),
			Replacement: r.replacement,
		})
	}
	return s
}

// Sanitize 按顺序应用所有规则，返回清理后的文本和命中的规则名
func (s *Scanner) Sanitize(input string) (string, []string) {
	result := input
	var hits []string
	for _, rule := range s.rules {
		if !rule.Pattern.MatchString(result) {
			continue
		}
		result = rule.Pattern.ReplaceAllString(result, rule.Replacement)
		hits = append(hits, rule.Name)
	}
	return result, hits
}

// AddRule 动态添加自定义规则
func (s *Scanner) AddRule(name, pattern, replacement string) error {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("rule %s: %w", name, err)
	}
	if replacement == "" {
		replacement = "[REDACTED]"
	}
	s.rules = append(s.rules, Rule{Name: name, Pattern: compiled, Replacement: replacement})
	return nil
}

// Rules 返回当前所有规则的副本
func (s *Scanner) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}
