package core

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/RecoveryAshes/shadowscraper/internal/models"
)

func writeScrapersFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scrapers.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入测试文件失败: %v", err)
	}
	return path
}

const validScrapers = `
scrapers:
  - name: demo
    description: 测试站点
    engine: static
    pages_url: "https://example.com/list"
    urls_xpath: '//a[@class="card"]/@href'
    base_url: "https://example.com"
    next_xpath: '//a[@rel="next"]/@href'
    number_of_pages: 3
    information:
      - name: title
        xpath: '//h1/text()'
      - name: details
        xpath_names: '//th/text()'
        xpath_values: '//td/text()'
`

// TestLoadScrapers 测试采集定义加载
func TestLoadScrapers(t *testing.T) {
	t.Run("合法定义展开为列表页与详情页", func(t *testing.T) {
		path := writeScrapersFile(t, validScrapers)
		pairs, err := LoadScrapers(path, nil)
		if err != nil {
			t.Fatalf("加载失败: %v", err)
		}
		if len(pairs) != 1 {
			t.Fatalf("期望1个定义, 得到%d", len(pairs))
		}

		pair := pairs[0]
		if pair.Name != "demo" {
			t.Errorf("名称不符: %s", pair.Name)
		}

		pages := pair.Pages
		if pages.Name != "demo_pages" {
			t.Errorf("列表页名称不符: %s", pages.Name)
		}
		if !reflect.DeepEqual(pages.URLs, []string{"https://example.com/list"}) {
			t.Errorf("起始URL不符: %v", pages.URLs)
		}
		if pages.NumberOfPages != 3 {
			t.Errorf("页数不符: %d", pages.NumberOfPages)
		}
		if len(pages.Information) != 1 || pages.Information[0].Name != "urls" {
			t.Errorf("列表页应只有urls字段: %+v", pages.Information)
		}
		if pages.Information[0].NamesXPath != "url" {
			t.Errorf("urls字段的键应为字面量url: %s", pages.Information[0].NamesXPath)
		}

		details := pair.Details
		if details.Name != "demo_details" {
			t.Errorf("详情页名称不符: %s", details.Name)
		}
		if details.NextXPath != "" {
			t.Error("详情页不应配置分页")
		}
		if len(details.Information) != 2 {
			t.Errorf("详情页字段数不符: %d", len(details.Information))
		}
	})

	t.Run("pages_url支持字符串列表", func(t *testing.T) {
		path := writeScrapersFile(t, `
scrapers:
  - name: multi
    engine: static
    pages_url:
      - "https://a.example.com/list"
      - "https://b.example.com/list"
    urls_xpath: '//a/@href'
    number_of_pages: 1
    information:
      - name: title
        xpath: '//h1/text()'
`)
		pairs, err := LoadScrapers(path, nil)
		if err != nil {
			t.Fatalf("加载失败: %v", err)
		}
		want := []string{"https://a.example.com/list", "https://b.example.com/list"}
		if !reflect.DeepEqual(pairs[0].Pages.URLs, want) {
			t.Errorf("期望%v, 得到%v", want, pairs[0].Pages.URLs)
		}
	})

	t.Run("引擎缺省为static", func(t *testing.T) {
		path := writeScrapersFile(t, `
scrapers:
  - name: nodefault
    pages_url: "https://example.com"
    urls_xpath: '//a/@href'
    number_of_pages: 1
    information:
      - name: title
        xpath: '//h1/text()'
`)
		pairs, err := LoadScrapers(path, nil)
		if err != nil {
			t.Fatalf("加载失败: %v", err)
		}
		if pairs[0].Pages.Engine != models.EngineStatic {
			t.Errorf("期望static, 得到%s", pairs[0].Pages.Engine)
		}
	})

	t.Run("无效引擎报错", func(t *testing.T) {
		path := writeScrapersFile(t, `
scrapers:
  - name: bad
    engine: playwright
    pages_url: "https://example.com"
    urls_xpath: '//a/@href'
    number_of_pages: 1
    information:
      - name: title
        xpath: '//h1/text()'
`)
		if _, err := LoadScrapers(path, nil); err == nil {
			t.Error("无效引擎应报错")
		}
	})

	t.Run("字段同时配置两种形态报错", func(t *testing.T) {
		path := writeScrapersFile(t, `
scrapers:
  - name: conflict
    engine: static
    pages_url: "https://example.com"
    urls_xpath: '//a/@href'
    number_of_pages: 1
    information:
      - name: title
        xpath: '//h1/text()'
        xpath_names: '//th/text()'
        xpath_values: '//td/text()'
`)
		if _, err := LoadScrapers(path, nil); err == nil {
			t.Error("冲突的字段形态应报错")
		}
	})

	t.Run("空文件报错", func(t *testing.T) {
		path := writeScrapersFile(t, "")
		if _, err := LoadScrapers(path, nil); err == nil {
			t.Error("空定义文件应报错")
		}
	})

	t.Run("文件不存在报错", func(t *testing.T) {
		if _, err := LoadScrapers("/nonexistent/scrapers.yaml", nil); err == nil {
			t.Error("文件缺失应报错")
		}
	})

	t.Run("头部传递到两个输入", func(t *testing.T) {
		path := writeScrapersFile(t, validScrapers)
		headers := map[string]string{"Accept-Language": "es-CO"}
		pairs, err := LoadScrapers(path, headers)
		if err != nil {
			t.Fatalf("加载失败: %v", err)
		}
		if pairs[0].Pages.Headers["Accept-Language"] != "es-CO" {
			t.Error("列表页应携带自定义头部")
		}
		if pairs[0].Details.Headers["Accept-Language"] != "es-CO" {
			t.Error("详情页应携带自定义头部")
		}
	})
}

// TestLoadConfig 测试应用配置加载
func TestLoadConfig(t *testing.T) {
	t.Run("默认搜索路径下无配置文件仍可加载", func(t *testing.T) {
		cwd, _ := os.Getwd()
		tmp := t.TempDir()
		if err := os.Chdir(tmp); err != nil {
			t.Skipf("无法切换目录: %v", err)
		}
		defer os.Chdir(cwd)

		config, err := LoadConfig("")
		if err != nil {
			t.Fatalf("不应报错: %v", err)
		}
		if config.Output.DataDir != "data" {
			t.Errorf("默认数据目录应为data, 得到%s", config.Output.DataDir)
		}
		if !config.Scrape.Headless {
			t.Error("默认应为无头模式")
		}
	})

	t.Run("自定义配置覆盖默认值", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
output:
  data_dir: custom_data
scrape:
  headless: false
  batch_delay: 5
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("写入配置失败: %v", err)
		}

		config, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("加载失败: %v", err)
		}
		if config.Output.DataDir != "custom_data" {
			t.Errorf("data_dir未覆盖: %s", config.Output.DataDir)
		}
		if config.Scrape.Headless {
			t.Error("headless未覆盖")
		}
		if config.Scrape.BatchDelay != 5 {
			t.Errorf("batch_delay未覆盖: %d", config.Scrape.BatchDelay)
		}
	})

	t.Run("非法头部配置报错", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := `
scrape:
  headers:
    Host: evil.example.com
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("写入配置失败: %v", err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Error("禁用头部应报错")
		}
	})
}
