package scrapers

import (
	"github.com/go-rod/rod"

	"github.com/RecoveryAshes/shadowscraper/internal/shadowdom"
)

// rodDocument 实时浏览器页面的shadowdom.Document实现
type rodDocument struct {
	page *rod.Page
}

func (d *rodDocument) QueryXPath(expr string) ([]shadowdom.Element, error) {
	els, err := d.page.ElementsX(expr)
	if err != nil {
		return nil, err
	}
	elements := make([]shadowdom.Element, 0, len(els))
	for _, el := range els {
		elements = append(elements, &rodElement{el: el})
	}
	return elements, nil
}

func (d *rodDocument) QueryCSS(selector string) (shadowdom.Element, error) {
	els, err := d.page.Elements(selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, nil
	}
	return &rodElement{el: els.First()}, nil
}

// rodElement 实时DOM元素
type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text() (string, error) {
	return e.el.Text()
}

func (e *rodElement) Attribute(name string) (*string, error) {
	return e.el.Attribute(name)
}

// ShadowQueryAll 在元素已附加的shadow root内执行CSS查询
// closed shadow root或无shadow root时ShadowRoot()返回错误,视为无边界
func (e *rodElement) ShadowQueryAll(selector string) ([]shadowdom.Element, bool, error) {
	shadow, err := e.el.ShadowRoot()
	if err != nil || shadow == nil {
		return nil, false, nil
	}
	els, err := shadow.Elements(selector)
	if err != nil {
		return nil, true, err
	}
	elements := make([]shadowdom.Element, 0, len(els))
	for _, el := range els {
		elements = append(elements, &rodElement{el: el})
	}
	return elements, true, nil
}
