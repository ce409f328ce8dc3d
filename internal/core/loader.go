package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/RecoveryAshes/shadowscraper/internal/models"
)

// StringList 兼容单个字符串与字符串列表两种YAML写法
type StringList []string

func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var single string
		if err := node.Decode(&single); err != nil {
			return err
		}
		*s = StringList{single}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = StringList(list)
		return nil
	default:
		return fmt.Errorf("pages_url必须是字符串或字符串列表")
	}
}

// ScraperDefinition 单个站点的采集定义
// 每个定义展开为列表页/详情页两个采集输入
type ScraperDefinition struct {
	Name          string             `yaml:"name"`
	Description   string             `yaml:"description"`
	Engine        string             `yaml:"engine"`
	PagesURL      StringList         `yaml:"pages_url"`
	URLsXPath     string             `yaml:"urls_xpath"`
	BaseURL       string             `yaml:"base_url"`
	NextXPath     string             `yaml:"next_xpath"`
	NumberOfPages int                `yaml:"number_of_pages"`
	Information   []models.FieldSpec `yaml:"information"`
}

// ScrapersFile 采集定义文件
type ScrapersFile struct {
	Scrapers []ScraperDefinition `yaml:"scrapers"`
}

// ScraperPair 一个站点的列表页与详情页采集输入
// Pages先行采集详情URL,Details随后逐一采集字段
type ScraperPair struct {
	Name    string
	Pages   *models.ScraperInput
	Details *models.ScraperInput
}

// LoadScrapers 加载并校验采集定义文件
func LoadScrapers(path string, headers map[string]string) ([]ScraperPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取采集定义文件失败 [%s]: %w", path, err)
	}

	var file ScrapersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("解析采集定义文件失败 [%s]: %w", path, err)
	}
	if len(file.Scrapers) == 0 {
		return nil, fmt.Errorf("采集定义文件为空 [%s]", path)
	}

	pairs := make([]ScraperPair, 0, len(file.Scrapers))
	for i, def := range file.Scrapers {
		pair, err := buildPair(def, headers)
		if err != nil {
			return nil, fmt.Errorf("采集定义无效 (#%d %s): %w", i+1, def.Name, err)
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// buildPair 将一个定义展开为列表页/详情页输入并校验
func buildPair(def ScraperDefinition, headers map[string]string) (ScraperPair, error) {
	engine := models.Engine(def.Engine)
	if def.Engine == "" {
		engine = models.EngineStatic
	}

	pages := &models.ScraperInput{
		Name:          def.Name + "_pages",
		Description:   def.Description,
		URLs:          []string(def.PagesURL),
		BaseURL:       def.BaseURL,
		NextXPath:     def.NextXPath,
		NumberOfPages: def.NumberOfPages,
		Engine:        engine,
		Headers:       headers,
		Information: []models.FieldSpec{
			{
				Name:        "urls",
				NamesXPath:  "url",
				ValuesXPath: def.URLsXPath,
			},
		},
	}
	if err := pages.Validate(); err != nil {
		return ScraperPair{}, fmt.Errorf("列表页输入无效: %w", err)
	}

	// 详情页URL在运行时由列表页结果填充
	details := &models.ScraperInput{
		Name:          def.Name + "_details",
		Description:   def.Description,
		BaseURL:       def.BaseURL,
		NumberOfPages: 1,
		Engine:        engine,
		Headers:       headers,
		Information:   def.Information,
	}
	if err := validateDetails(details); err != nil {
		return ScraperPair{}, fmt.Errorf("详情页输入无效: %w", err)
	}

	return ScraperPair{Name: def.Name, Pages: pages, Details: details}, nil
}

// validateDetails 详情页输入校验(URL列表运行时填充,此处跳过URL检查)
func validateDetails(details *models.ScraperInput) error {
	if !models.ValidEngines[details.Engine] {
		return fmt.Errorf("引擎无效: %s (有效值: static, browser)", details.Engine)
	}
	if len(details.Information) == 0 {
		return fmt.Errorf("information不能为空")
	}
	seen := make(map[string]bool, len(details.Information))
	for _, field := range details.Information {
		if err := field.Validate(); err != nil {
			return err
		}
		if seen[field.Name] {
			return fmt.Errorf("字段名重复: %s", field.Name)
		}
		seen[field.Name] = true
	}
	return nil
}
