package models

import (
	"fmt"
	"time"
)

// Engine 采集引擎类型
type Engine string

const (
	EngineStatic  Engine = "static"  // 静态抓取(Colly)
	EngineBrowser Engine = "browser" // 浏览器渲染(Rod)
)

// ValidEngines 有效的引擎名称
var ValidEngines = map[Engine]bool{
	EngineStatic:  true,
	EngineBrowser: true,
}

// FieldSpec 字段提取配置
// 两种形态(标签变体):
//   - 标量字段: 仅设置XPath,提取结果为单个字符串
//   - 键值对字段: 设置NamesXPath+ValuesXPath,提取结果为单键map列表,
//     两者均可为路径表达式或字面常量
type FieldSpec struct {
	Name        string `yaml:"name" json:"name"`
	XPath       string `yaml:"xpath,omitempty" json:"xpath,omitempty"`
	NamesXPath  string `yaml:"xpath_names,omitempty" json:"xpath_names,omitempty"`
	ValuesXPath string `yaml:"xpath_values,omitempty" json:"xpath_values,omitempty"`
}

// IsDynamic 是否为键值对字段
func (f FieldSpec) IsDynamic() bool {
	return f.XPath == "" && (f.NamesXPath != "" || f.ValuesXPath != "")
}

// Validate 验证字段配置
func (f FieldSpec) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("字段名称不能为空")
	}
	if f.XPath == "" && f.NamesXPath == "" && f.ValuesXPath == "" {
		return fmt.Errorf("字段 '%s' 必须配置 xpath 或 xpath_names/xpath_values", f.Name)
	}
	if f.XPath != "" && (f.NamesXPath != "" || f.ValuesXPath != "") {
		return fmt.Errorf("字段 '%s' 不能同时配置 xpath 和 xpath_names/xpath_values", f.Name)
	}
	if f.XPath == "" && (f.NamesXPath == "" || f.ValuesXPath == "") {
		return fmt.Errorf("字段 '%s' 必须同时配置 xpath_names 和 xpath_values", f.Name)
	}
	return nil
}

// ScraperInput 单次采集运行的完整配置
// 配置在运行期间不可变,由运行持有
type ScraperInput struct {
	Name          string            `yaml:"name" json:"name"`
	Description   string            `yaml:"description,omitempty" json:"description,omitempty"`
	URLs          []string          `yaml:"urls" json:"urls"`
	BaseURL       string            `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	NextXPath     string            `yaml:"next_xpath,omitempty" json:"next_xpath,omitempty"`
	NumberOfPages int               `yaml:"number_of_pages" json:"number_of_pages"` // 0=直到无下一页, 1=仅首页, N=固定N页
	Information   []FieldSpec       `yaml:"information" json:"information"`
	Engine        Engine            `yaml:"scraping_engine" json:"scraping_engine"`
	Headers       map[string]string `yaml:"-" json:"-"` // 运行时注入的自定义HTTP头部
}

// Validate 验证采集配置
// 配置验证失败在访问任何页面之前即为致命错误
func (s *ScraperInput) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("采集器名称不能为空")
	}
	if len(s.URLs) == 0 {
		return fmt.Errorf("采集器 '%s' 必须配置至少一个起始URL", s.Name)
	}
	for _, u := range s.URLs {
		if err := ValidateURL(u); err != nil {
			return fmt.Errorf("采集器 '%s' 起始URL无效: %w", s.Name, err)
		}
	}
	if s.NumberOfPages < 0 {
		return fmt.Errorf("采集器 '%s' 页数配置无效: %d (必须>=0)", s.Name, s.NumberOfPages)
	}
	if !ValidEngines[s.Engine] {
		return fmt.Errorf("采集器 '%s' 引擎无效: %s (有效值: static, browser)", s.Name, s.Engine)
	}
	if len(s.Information) == 0 {
		return fmt.Errorf("采集器 '%s' 必须配置至少一个提取字段", s.Name)
	}
	seen := make(map[string]bool, len(s.Information))
	for _, f := range s.Information {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("采集器 '%s': %w", s.Name, err)
		}
		if seen[f.Name] {
			return fmt.Errorf("采集器 '%s' 字段名称重复: %s", s.Name, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// ScraperOutput 单个页面的提取记录
// 创建后不可变; 要么在内存中缓冲,要么立即增量写入,二者不共存
type ScraperOutput struct {
	ID          string         `json:"id"`        // 记录唯一ID (UUID)
	URL         string         `json:"url"`       // 来源页面URL
	Information map[string]any `json:"information"` // 字段名 -> 字符串 | 单键map列表; 缺失字段为nil
	DateTime    time.Time      `json:"date_time"` // 采集时间(UTC)
}

// NewScraperOutput 创建提取记录
func NewScraperOutput(url string, information map[string]any) *ScraperOutput {
	return &ScraperOutput{
		ID:          generateID(),
		URL:         url,
		Information: information,
		DateTime:    time.Now().UTC(),
	}
}
