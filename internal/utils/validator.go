package utils

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxHeaderValueLength HTTP头部值最大长度 (8KB)
	MaxHeaderValueLength = 8192
)

var (
	// ForbiddenHeaders 禁止用户配置的头部 (由HTTP客户端管理)
	ForbiddenHeaders = []string{
		"Host",
		"Content-Length",
		"Transfer-Encoding",
		"Connection",
	}
)

// HeaderValidationError 头部验证错误
type HeaderValidationError struct {
	HeaderName string // 出错的头部名称
	Reason     string // 失败原因
	Suggestion string // 修复建议
}

// Error 实现error接口
func (e *HeaderValidationError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("头部 '%s' 无效: %s (建议: %s)", e.HeaderName, e.Reason, e.Suggestion)
	}
	return fmt.Sprintf("头部 '%s' 无效: %s", e.HeaderName, e.Reason)
}

// HeaderValidator 验证HTTP头部是否符合RFC 7230规范
type HeaderValidator struct {
	// nameRegex 验证头部名称 (字母数字连字符)
	nameRegex *regexp.Regexp

	// valueRegex 验证头部值 (可打印ASCII)
	valueRegex *regexp.Regexp

	// forbiddenHeaders 禁止用户配置的头部 (如Host, Content-Length)
	forbiddenHeaders map[string]bool
}

// NewHeaderValidator 创建验证器
func NewHeaderValidator() *HeaderValidator {
	// 构建禁止头部的map (不区分大小写)
	forbidden := make(map[string]bool)
	for _, h := range ForbiddenHeaders {
		forbidden[strings.ToLower(h)] = true
	}

	return &HeaderValidator{
		// HTTP头部名称验证 (RFC 7230): 允许字母、数字和连字符
		nameRegex: regexp.MustCompile(`^[A-Za-z0-9-]+$`),

		// HTTP头部值验证: 可打印ASCII + 空格/制表符
		valueRegex: regexp.MustCompile(`^[\x20-\x7E\t]*$`),

		forbiddenHeaders: forbidden,
	}
}

// ValidateHeader 验证头部名称+值
func (hv *HeaderValidator) ValidateHeader(name, value string) error {
	// 1. 检查是否为禁止头部
	if hv.IsForbidden(name) {
		return &HeaderValidationError{
			HeaderName: name,
			Reason:     "此头部由HTTP客户端自动管理,不允许自定义",
			Suggestion: fmt.Sprintf("移除 '%s' 头部配置", name),
		}
	}

	// 2. 验证名称
	if name == "" {
		return &HeaderValidationError{
			HeaderName: name,
			Reason:     "头部名称不能为空",
		}
	}
	if !hv.nameRegex.MatchString(name) {
		return &HeaderValidationError{
			HeaderName: name,
			Reason:     "头部名称包含非法字符 (仅允许字母、数字和连字符)",
			Suggestion: "使用字母、数字和连字符 (如 'User-Agent', 'X-Custom-Header')",
		}
	}

	// 3. 验证值
	if len(value) > MaxHeaderValueLength {
		return &HeaderValidationError{
			HeaderName: name,
			Reason:     fmt.Sprintf("头部值过长: %d 字节 (最大 %d)", len(value), MaxHeaderValueLength),
			Suggestion: fmt.Sprintf("将值缩短至 %d 字节以内", MaxHeaderValueLength),
		}
	}
	if !hv.valueRegex.MatchString(value) {
		return &HeaderValidationError{
			HeaderName: name,
			Reason:     "头部值包含非法字符 (仅允许可打印ASCII字符)",
			Suggestion: "移除控制字符和非ASCII字符",
		}
	}

	return nil
}

// IsForbidden 检查头部是否被禁止
func (hv *HeaderValidator) IsForbidden(name string) bool {
	return hv.forbiddenHeaders[strings.ToLower(name)]
}

// ValidateHeaders 验证头部集合,返回第一个验证错误
func (hv *HeaderValidator) ValidateHeaders(headers map[string]string) error {
	for name, value := range headers {
		if err := hv.ValidateHeader(name, value); err != nil {
			return err
		}
	}
	return nil
}

// ParseHeaderFlag 解析命令行头部参数,格式: 'Name: Value'
func ParseHeaderFlag(raw string) (string, string, error) {
	idx := strings.Index(raw, ":")
	if idx <= 0 {
		return "", "", fmt.Errorf("头部格式无效: %q (期望 'Name: Value')", raw)
	}
	name := strings.TrimSpace(raw[:idx])
	value := strings.TrimSpace(raw[idx+1:])
	return name, value, nil
}
