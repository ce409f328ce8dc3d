package shadowdom

import (
	"strings"
)

// Element 已解析的元素句柄,由各后端提供实现
type Element interface {
	// Text 返回元素的渲染文本(已反映动态内容)
	Text() (string, error)

	// Attribute 返回属性值,属性不存在时返回nil(不报错)
	Attribute(name string) (*string, error)

	// ShadowQueryAll 在元素的Shadow Root内执行CSS查询
	// 元素没有Shadow Root时返回ok=false
	ShadowQueryAll(selector string) ([]Element, bool, error)
}

// Document 可查询的文档,由各后端提供实现
type Document interface {
	// QueryXPath 对主文档执行直接XPath匹配
	QueryXPath(expr string) ([]Element, error)

	// QueryCSS 对主文档执行CSS查询,返回首个匹配(无匹配返回nil)
	QueryCSS(selector string) (Element, error)
}

// Resolve 边界感知解析: 返回路径匹配的元素句柄列表(可能为空)
//
// 算法:
//  1. 先对主文档整体做直接XPath匹配,命中即返回(常见的廉价路径)
//  2. 否则按序查找首个含连字符的标签(自定义元素,封装宿主启发式),
//     没有则无法回退,返回空
//  3. 将起始到宿主步骤编译为一条组合选择器链,在主文档中定位宿主元素
//  4. 进入宿主的Shadow Root(最多一层,不递归嵌套封装);
//     宿主为路径末步时,宿主本身即为结果
//  5. 将剩余步骤编译为一条组合选择器链,在Shadow Root内查询全部匹配
//
// 需要穿越两层及以上边界的路径不受支持,解析为空
// (已知限制,而非静默返回错误数据)
func Resolve(doc Document, cleanPath string) ([]Element, error) {
	// 1) 直接XPath匹配
	// 表达式无效时不中断,继续尝试Shadow感知回退
	elements, err := doc.QueryXPath(cleanPath)
	if err == nil && len(elements) > 0 {
		return elements, nil
	}

	// 2) Shadow感知回退(单层边界)
	steps := Parse(cleanPath)
	if len(steps) == 0 {
		return nil, nil
	}

	hostIdx := -1
	for i, step := range steps {
		if isCustomTag(step.Tag) {
			hostIdx = i
			break
		}
	}
	if hostIdx < 0 {
		return nil, nil
	}

	// 3) 编译到宿主的选择器链并在主文档中定位宿主
	hostCSS := CSSChain(steps[:hostIdx+1])
	host, err := doc.QueryCSS(hostCSS)
	if err != nil {
		return nil, err
	}
	if host == nil {
		return nil, nil
	}

	// 4) 宿主即为末步时直接返回宿主
	remain := steps[hostIdx+1:]
	if len(remain) == 0 {
		return []Element{host}, nil
	}

	// 5) 在Shadow Root内解析剩余链
	remainCSS := CSSChain(remain)
	matches, ok, err := host.ShadowQueryAll(remainCSS)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return matches, nil
}

// ExtractValues 从元素句柄列表中按取值标注提取字符串值
// 属性模式读取属性(缺失属性跳过,不报错);
// 文本模式读取渲染文本; 去除首尾空白,丢弃空串;
// 结果顺序即文档/解析顺序
func ExtractValues(elements []Element, suffix Suffix) []string {
	out := make([]string, 0, len(elements))
	for _, el := range elements {
		var raw string
		if suffix.IsText() {
			text, err := el.Text()
			if err != nil {
				continue
			}
			raw = text
		} else {
			val, err := el.Attribute(suffix.Attr)
			if err != nil || val == nil {
				continue
			}
			raw = *val
		}
		if s := strings.TrimSpace(raw); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Extract 完整提取流程: 剥离取值标注 -> 边界感知解析 -> 取值
func Extract(doc Document, path string) ([]string, error) {
	clean, suffix := Clean(path)
	elements, err := Resolve(doc, clean)
	if err != nil {
		return nil, err
	}
	return ExtractValues(elements, suffix), nil
}
