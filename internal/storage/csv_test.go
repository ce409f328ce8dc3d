package storage

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/RecoveryAshes/shadowscraper/internal/models"
)

func sampleOutputs() []*models.ScraperOutput {
	return []*models.ScraperOutput{
		models.NewScraperOutput("https://example.com/1", map[string]any{
			"title":   "Apartamento",
			"pricing": "$1.800.000",
		}),
		models.NewScraperOutput("https://example.com/2", map[string]any{
			"title":   nil, // 缺失字段
			"pricing": "$2.100.000",
		}),
	}
}

// TestAppendIncremental 测试增量写入
func TestAppendIncremental(t *testing.T) {
	t.Run("首次写入创建文件与表头", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")
		outputs := sampleOutputs()

		if err := AppendIncremental(path, outputs[0]); err != nil {
			t.Fatalf("写入失败: %v", err)
		}

		rows, err := ReadRows(path)
		if err != nil {
			t.Fatalf("读取失败: %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("期望1行, 得到%d", len(rows))
		}
		if rows[0].URL != "https://example.com/1" {
			t.Errorf("URL不符: %s", rows[0].URL)
		}
	})

	t.Run("后续写入不重复表头", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")
		outputs := sampleOutputs()

		for _, output := range outputs {
			if err := AppendIncremental(path, output); err != nil {
				t.Fatalf("写入失败: %v", err)
			}
		}

		rows, err := ReadRows(path)
		if err != nil {
			t.Fatalf("读取失败: %v", err)
		}
		if len(rows) != 2 {
			t.Errorf("期望2行, 得到%d", len(rows))
		}
	})

	t.Run("自动创建输出目录", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "out.csv")
		if err := AppendIncremental(path, sampleOutputs()[0]); err != nil {
			t.Fatalf("应自动创建目录: %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("文件应存在: %v", err)
		}
	})
}

// TestIncrementalMatchesBatch 测试两种保存方式产出相同记录集
func TestIncrementalMatchesBatch(t *testing.T) {
	outputs := sampleOutputs()
	dir := t.TempDir()
	incPath := filepath.Join(dir, "inc.csv")
	batchPath := filepath.Join(dir, "batch.csv")

	for _, output := range outputs {
		if err := AppendIncremental(incPath, output); err != nil {
			t.Fatalf("增量写入失败: %v", err)
		}
	}
	if err := SaveBatch(batchPath, outputs); err != nil {
		t.Fatalf("批量写入失败: %v", err)
	}

	incRows, err := ReadRows(incPath)
	if err != nil {
		t.Fatalf("读取增量结果失败: %v", err)
	}
	batchRows, err := ReadRows(batchPath)
	if err != nil {
		t.Fatalf("读取批量结果失败: %v", err)
	}

	key := func(r Row) string { return r.ID + "|" + r.URL }
	sort.Slice(incRows, func(i, j int) bool { return key(incRows[i]) < key(incRows[j]) })
	sort.Slice(batchRows, func(i, j int) bool { return key(batchRows[i]) < key(batchRows[j]) })

	if !reflect.DeepEqual(incRows, batchRows) {
		t.Errorf("两种保存方式的记录集不一致\n增量: %v\n批量: %v", incRows, batchRows)
	}
}

// TestInformationRoundTrip 测试information列的序列化往返
func TestInformationRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	output := models.NewScraperOutput("https://example.com/1", map[string]any{
		"title": "Casa",
		"desc":  nil,
		"details": []map[string]any{
			{"Habitaciones": "3"},
			{"Baños": nil},
		},
	})

	if err := AppendIncremental(path, output); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	rows, err := ReadRows(path)
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}

	info := rows[0].Information
	if info["title"] != "Casa" {
		t.Errorf("title不符: %v", info["title"])
	}
	// 缺失标记经JSON往返后仍为nil,与空字符串可区分
	if v, exists := info["desc"]; !exists || v != nil {
		t.Errorf("缺失标记应保持为nil: %v", v)
	}
}

// TestReadDetailURLs 测试详情URL提取
func TestReadDetailURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.csv")
	output := models.NewScraperOutput("https://example.com/list", map[string]any{
		"urls": []map[string]any{
			{"url": "/detail/1"},
			{"url": "/detail/2"},
			{"url": nil}, // 提取失败的条目
		},
	})
	if err := AppendIncremental(path, output); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	urls, err := ReadDetailURLs(path)
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	want := []string{"/detail/1", "/detail/2"}
	if !reflect.DeepEqual(urls, want) {
		t.Errorf("期望%v, 得到%v", want, urls)
	}
}

// TestExtractDetailURLs 测试内存形态的URL提取
func TestExtractDetailURLs(t *testing.T) {
	info := map[string]any{
		"urls": []map[string]any{
			{"url": "https://a.com/1"},
			{"url": ""},
		},
	}
	got := ExtractDetailURLs(info)
	want := []string{"https://a.com/1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("期望%v, 得到%v", want, got)
	}

	if got := ExtractDetailURLs(map[string]any{}); got != nil {
		t.Errorf("无urls字段应返回nil, 得到%v", got)
	}
}
