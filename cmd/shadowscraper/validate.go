package main

import (
	"fmt"
	"regexp"
)

var scraperNameRegex = regexp.MustCompile(`^[\w-]+$`)

// ValidateFlags 验证命令行标志
func ValidateFlags(scraperName string, batchDelay int) error {
	// 验证采集器名称
	if scraperName != "" && !scraperNameRegex.MatchString(scraperName) {
		return fmt.Errorf("采集器名称无效: %s (仅允许字母、数字、下划线和连字符)", scraperName)
	}

	// 验证延迟
	if batchDelay < 0 || batchDelay > 300 {
		return fmt.Errorf("起始URL间延迟必须在0-300秒之间,当前值: %d", batchDelay)
	}

	return nil
}
