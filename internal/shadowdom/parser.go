// Package shadowdom 实现路径表达式(XPath子集)的解析、CSS编译与
// 跨Shadow DOM边界的元素解析。
//
// 标准结构查询无法穿透自定义元素(如 pt-main-specs)封装的Shadow Root。
// 本包先尝试普通XPath匹配,失败时定位路径中的首个自定义元素作为宿主,
// 进入其Shadow Root后用编译出的CSS选择器解析剩余路径(最多穿越一层边界)。
package shadowdom

import (
	"regexp"
	"strings"
)

// Step 路径表达式中的单个步骤
type Step struct {
	Tag        string            // 标签名(自定义元素含'-')
	Attrs      map[string]string // 属性等值约束(无序)
	Nth        int               // 位置索引(1-based), 0表示未设置
	Descendant bool              // true: 来自'//'(后代), false: 来自'/'(直接子元素)
}

// Suffix 路径尾部的取值标注
// Attr非空时提取该属性,否则提取渲染文本(默认)
type Suffix struct {
	Attr string
}

// IsText 是否为文本提取模式
func (s Suffix) IsText() bool {
	return s.Attr == ""
}

var (
	// stepRegex 匹配步骤: 标签名 + 可选的[谓词]
	stepRegex = regexp.MustCompile(`^\s*([\w-]+)\s*(?:\[(.+)\])?\s*$`)

	// attrClauseRegex 匹配谓词中的属性等值子句: @name="value"
	attrClauseRegex = regexp.MustCompile(`^@([\w:-]+)\s*=\s*"(.*)"$`)

	// indexClauseRegex 匹配谓词中的纯数字位置索引
	indexClauseRegex = regexp.MustCompile(`^\d+$`)

	// andSplitRegex 谓词子句分隔符
	andSplitRegex = regexp.MustCompile(`\s+and\s+`)
)

// rawStep 切分阶段的中间结果
type rawStep struct {
	text       string
	descendant bool
}

// splitSteps 将路径表达式切分为步骤
// 区分'//'(后代)与'/'(直接子元素); 方括号谓词内部的'/'不作为分隔符
func splitSteps(path string) []rawStep {
	xp := strings.TrimSpace(path)
	steps := make([]rawStep, 0, 4)

	i := 0
	for i < len(xp) {
		descendant := false
		if strings.HasPrefix(xp[i:], "//") {
			descendant = true
			i += 2
		} else if xp[i] == '/' {
			i++
		}

		// 扫描到下一个谓词外的'/'
		depth := 0
		j := i
		for j < len(xp) {
			switch xp[j] {
			case '[':
				depth++
			case ']':
				if depth > 0 {
					depth--
				}
			case '/':
				if depth == 0 {
					goto stepEnd
				}
			}
			j++
		}
	stepEnd:
		if text := strings.TrimSpace(xp[i:j]); text != "" {
			steps = append(steps, rawStep{text: text, descendant: descendant})
		}
		i = j
	}

	return steps
}

// parseStep 解析单个步骤
// 软失败: 无法解析的步骤退化为无约束的裸标签步骤,不报错,
// 下游解析只会得到更少(或零个)匹配
func parseStep(raw rawStep) Step {
	m := stepRegex.FindStringSubmatch(raw.text)
	if m == nil {
		return Step{Tag: raw.text, Descendant: raw.descendant}
	}

	step := Step{Tag: m[1], Descendant: raw.descendant}
	pred := m[2]
	if pred == "" {
		return step
	}

	// 仅支持简单形式: @attr="val" (可用and连接) 与数字索引 [N]
	for _, clause := range andSplitRegex.Split(pred, -1) {
		clause = strings.TrimSpace(clause)
		if indexClauseRegex.MatchString(clause) {
			if n := parsePositiveInt(clause); n > 0 {
				step.Nth = n
			}
			continue
		}
		if am := attrClauseRegex.FindStringSubmatch(clause); am != nil {
			if step.Attrs == nil {
				step.Attrs = make(map[string]string)
			}
			step.Attrs[am[1]] = am[2]
		}
	}

	return step
}

// parsePositiveInt 解析正整数,溢出或非法返回0
func parsePositiveInt(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
		if n > 1<<20 {
			return 0
		}
	}
	return n
}

// Parse 将路径表达式解析为有序步骤序列
// 空序列表示路径无效,调用方按零匹配处理
func Parse(path string) []Step {
	raws := splitSteps(path)
	if len(raws) == 0 {
		return nil
	}
	steps := make([]Step, 0, len(raws))
	for _, r := range raws {
		steps = append(steps, parseStep(r))
	}
	return steps
}

// Clean 剥离路径尾部的取值标注
// 支持'/@attr'(属性模式,优先)与'/text()'(文本模式); 默认为文本模式
func Clean(path string) (string, Suffix) {
	xp := strings.TrimSpace(path)

	if idx := strings.LastIndex(xp, "/@"); idx >= 0 {
		attr := xp[idx+2:]
		if slash := strings.Index(attr, "/"); slash >= 0 {
			attr = attr[:slash]
		}
		return xp[:idx], Suffix{Attr: attr}
	}

	if strings.HasSuffix(xp, "/text()") {
		return strings.TrimSuffix(xp, "/text()"), Suffix{}
	}

	return xp, Suffix{}
}

// isCustomTag 判断标签是否为自定义元素(启发式: 含连字符)
// 自定义元素是Shadow DOM封装宿主的标志
func isCustomTag(tag string) bool {
	return strings.Contains(tag, "-")
}
