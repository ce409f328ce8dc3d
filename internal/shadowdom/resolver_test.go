package shadowdom

import (
	"reflect"
	"testing"
)

// fakeElement 测试用元素句柄
type fakeElement struct {
	text     string
	attrs    map[string]string
	shadow   map[string][]Element // CSS选择器 -> Shadow Root内的匹配
	noShadow bool
}

func (f *fakeElement) Text() (string, error) { return f.text, nil }

func (f *fakeElement) Attribute(name string) (*string, error) {
	if v, ok := f.attrs[name]; ok {
		return &v, nil
	}
	return nil, nil
}

func (f *fakeElement) ShadowQueryAll(selector string) ([]Element, bool, error) {
	if f.noShadow {
		return nil, false, nil
	}
	return f.shadow[selector], true, nil
}

// fakeDocument 测试用文档
type fakeDocument struct {
	xpath map[string][]Element // XPath表达式 -> 匹配
	css   map[string]Element   // CSS选择器 -> 首个匹配
}

func (f *fakeDocument) QueryXPath(expr string) ([]Element, error) {
	return f.xpath[expr], nil
}

func (f *fakeDocument) QueryCSS(selector string) (Element, error) {
	return f.css[selector], nil
}

// TestResolve 测试边界感知解析
func TestResolve(t *testing.T) {
	t.Run("直接XPath命中优先", func(t *testing.T) {
		direct := &fakeElement{text: "直接结果"}
		doc := &fakeDocument{
			xpath: map[string][]Element{`//div[@class="a"]`: {direct}},
		}

		elements, err := Resolve(doc, `//div[@class="a"]`)
		if err != nil {
			t.Fatalf("不应报错: %v", err)
		}
		if len(elements) != 1 || elements[0] != Element(direct) {
			t.Errorf("应返回直接匹配结果, 得到%v", elements)
		}
	})

	t.Run("无自定义元素时无法回退", func(t *testing.T) {
		doc := &fakeDocument{}
		elements, err := Resolve(doc, `//div/span`)
		if err != nil {
			t.Fatalf("不应报错: %v", err)
		}
		if len(elements) != 0 {
			t.Errorf("无自定义元素的未命中路径应解析为空, 得到%v", elements)
		}
	})

	t.Run("单层Shadow边界解析", func(t *testing.T) {
		inner := &fakeElement{text: "3 habitaciones"}
		host := &fakeElement{
			shadow: map[string][]Element{`div[class="specs"] span`: {inner}},
		}
		doc := &fakeDocument{
			css: map[string]Element{"pt-main-specs": host},
		}

		elements, err := Resolve(doc, `//pt-main-specs/div[@class="specs"]//span`)
		if err != nil {
			t.Fatalf("不应报错: %v", err)
		}
		if len(elements) != 1 || elements[0] != Element(inner) {
			t.Errorf("应返回Shadow Root内的匹配, 得到%v", elements)
		}
	})

	t.Run("宿主为末步时返回宿主本身", func(t *testing.T) {
		host := &fakeElement{text: "宿主"}
		doc := &fakeDocument{
			css: map[string]Element{`pt-price[class="main"]`: host},
		}

		elements, err := Resolve(doc, `//pt-price[@class="main"]`)
		if err != nil {
			t.Fatalf("不应报错: %v", err)
		}
		if len(elements) != 1 || elements[0] != Element(host) {
			t.Errorf("应返回宿主元素, 得到%v", elements)
		}
	})

	t.Run("宿主不存在解析为空", func(t *testing.T) {
		doc := &fakeDocument{}
		elements, err := Resolve(doc, `//pt-missing/div`)
		if err != nil {
			t.Fatalf("不应报错: %v", err)
		}
		if len(elements) != 0 {
			t.Errorf("宿主缺失应解析为空, 得到%v", elements)
		}
	})

	t.Run("宿主无ShadowRoot解析为空", func(t *testing.T) {
		host := &fakeElement{noShadow: true}
		doc := &fakeDocument{
			css: map[string]Element{"pt-plain": host},
		}

		elements, err := Resolve(doc, `//pt-plain/div`)
		if err != nil {
			t.Fatalf("不应报错: %v", err)
		}
		if len(elements) != 0 {
			t.Errorf("无Shadow Root应解析为空, 得到%v", elements)
		}
	})

	t.Run("需要两层边界的路径解析为空", func(t *testing.T) {
		// 第一层宿主的Shadow Root内没有能匹配嵌套链的元素
		host := &fakeElement{shadow: map[string][]Element{}}
		doc := &fakeDocument{
			css: map[string]Element{"pt-outer": host},
		}

		elements, err := Resolve(doc, `//pt-outer//pt-inner/div`)
		if err != nil {
			t.Fatalf("不应报错: %v", err)
		}
		if len(elements) != 0 {
			t.Errorf("双层边界不受支持应解析为空, 得到%v", elements)
		}
	})
}

// TestExtractValues 测试取值
func TestExtractValues(t *testing.T) {
	t.Run("文本模式去空白并丢弃空串", func(t *testing.T) {
		elements := []Element{
			&fakeElement{text: "  hola  "},
			&fakeElement{text: "   "},
			&fakeElement{text: "mundo"},
		}
		got := ExtractValues(elements, Suffix{})
		want := []string{"hola", "mundo"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("期望%v, 得到%v", want, got)
		}
	})

	t.Run("属性模式跳过缺失属性", func(t *testing.T) {
		elements := []Element{
			&fakeElement{attrs: map[string]string{"href": "/a"}},
			&fakeElement{attrs: map[string]string{}},
			&fakeElement{attrs: map[string]string{"href": "/b"}},
		}
		got := ExtractValues(elements, Suffix{Attr: "href"})
		want := []string{"/a", "/b"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("期望%v, 得到%v", want, got)
		}
	})

	t.Run("保持文档顺序", func(t *testing.T) {
		elements := []Element{
			&fakeElement{text: "1"},
			&fakeElement{text: "2"},
			&fakeElement{text: "3"},
		}
		got := ExtractValues(elements, Suffix{})
		want := []string{"1", "2", "3"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("期望%v, 得到%v", want, got)
		}
	})
}

// TestExtract 测试完整提取流程
func TestExtract(t *testing.T) {
	t.Run("属性标注提取href", func(t *testing.T) {
		link := &fakeElement{attrs: map[string]string{"href": "/detail/1"}}
		doc := &fakeDocument{
			xpath: map[string][]Element{`//a[@class="lnk"]`: {link}},
		}

		got, err := Extract(doc, `//a[@class="lnk"]/@href`)
		if err != nil {
			t.Fatalf("不应报错: %v", err)
		}
		if !reflect.DeepEqual(got, []string{"/detail/1"}) {
			t.Errorf("期望[/detail/1], 得到%v", got)
		}
	})
}
