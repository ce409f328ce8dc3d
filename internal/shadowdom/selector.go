package shadowdom

import (
	"fmt"
	"sort"
	"strings"
)

// CSS 将解析后的步骤编译为等价的CSS选择器
// 纯函数,输出确定(属性按名称排序),便于缓存与测试
func CSS(step Step) string {
	var sb strings.Builder
	sb.WriteString(step.Tag)

	if len(step.Attrs) > 0 {
		// 属性约束按名称排序,保证输出确定
		// 所有约束均须匹配,顺序不影响语义
		names := make([]string, 0, len(step.Attrs))
		for name := range step.Attrs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, `[%s=%q]`, name, step.Attrs[name])
		}
	}

	if step.Nth > 0 {
		fmt.Fprintf(&sb, ":nth-of-type(%d)", step.Nth)
	}

	return sb.String()
}

// CSSChain 将连续步骤编译为单条组合选择器链
// 步骤间按各自的边界标记连接: 后代(' ')或直接子元素(' > ');
// 首个步骤不带组合符
func CSSChain(steps []Step) string {
	var sb strings.Builder
	for i, step := range steps {
		if i > 0 {
			if step.Descendant {
				sb.WriteString(" ")
			} else {
				sb.WriteString(" > ")
			}
		}
		sb.WriteString(CSS(step))
	}
	return sb.String()
}
