package scrapers

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/RecoveryAshes/shadowscraper/internal/shadowdom"
)

// staticDocument 静态HTML文档的shadowdom.Document实现
// 声明式Shadow DOM(<template shadowrootmode>)在服务端渲染场景下
// 等价于浏览器中已附加的shadow root,按同样的边界规则处理
type staticDocument struct {
	root *html.Node
}

func newStaticDocument(body []byte) (*staticDocument, error) {
	root, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return &staticDocument{root: root}, nil
}

func (d *staticDocument) QueryXPath(expr string) ([]shadowdom.Element, error) {
	nodes, err := htmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil, err
	}
	elements := make([]shadowdom.Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &staticElement{node: n})
	}
	return elements, nil
}

func (d *staticDocument) QueryCSS(selector string) (shadowdom.Element, error) {
	doc := goquery.NewDocumentFromNode(d.root)
	sel := doc.Find(selector).First()
	if len(sel.Nodes) == 0 {
		return nil, nil
	}
	return &staticElement{node: sel.Nodes[0]}, nil
}

// staticElement 静态DOM节点
type staticElement struct {
	node *html.Node
}

func (e *staticElement) Text() (string, error) {
	return htmlquery.InnerText(e.node), nil
}

func (e *staticElement) Attribute(name string) (*string, error) {
	for _, attr := range e.node.Attr {
		if attr.Key == name {
			v := attr.Val
			return &v, nil
		}
	}
	return nil, nil
}

// ShadowQueryAll 在节点的声明式shadow root内执行CSS查询
// 无<template shadowrootmode>子节点时返回ok=false(视为无shadow root)
func (e *staticElement) ShadowQueryAll(selector string) ([]shadowdom.Element, bool, error) {
	tmpl := declarativeShadowRoot(e.node)
	if tmpl == nil {
		return nil, false, nil
	}

	sel := goquery.NewDocumentFromNode(tmpl).Find(selector)
	elements := make([]shadowdom.Element, 0, len(sel.Nodes))
	for _, n := range sel.Nodes {
		elements = append(elements, &staticElement{node: n})
	}
	return elements, true, nil
}

// declarativeShadowRoot 查找节点的直接子节点中首个声明式shadow模板
func declarativeShadowRoot(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || !strings.EqualFold(c.Data, "template") {
			continue
		}
		for _, attr := range c.Attr {
			if attr.Key == "shadowrootmode" || attr.Key == "shadowroot" {
				return c
			}
		}
	}
	return nil
}
