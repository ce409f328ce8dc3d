package filter

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/shadowscraper/internal/models"
	"github.com/RecoveryAshes/shadowscraper/internal/storage"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func matchingListing() *Listing {
	return &Listing{
		URL:          "https://example.com/p/1?ref=a",
		CanonicalURL: "https://example.com/p/1",
		Title:        "Apartamento en Laureles",
		Price:        intPtr(1_800_000),
		Bedrooms:     intPtr(3),
		Bathrooms:    intPtr(2),
		AreaM2:       floatPtr(65),
		Estrato:      intPtr(3),
		PropertyType: "apartamento",
		Details:      map[string]string{"Balcón": "Sí"},
	}
}

// TestMeetsCriteria 测试筛选条件
func TestMeetsCriteria(t *testing.T) {
	t.Run("全部条件满足", func(t *testing.T) {
		if !meetsCriteria(matchingListing()) {
			t.Error("合规房源应命中")
		}
	})

	t.Run("价格越界", func(t *testing.T) {
		l := matchingListing()
		l.Price = intPtr(3_500_000)
		if meetsCriteria(l) {
			t.Error("超出价格上限不应命中")
		}
		l.Price = intPtr(1_200_000)
		if meetsCriteria(l) {
			t.Error("低于价格下限不应命中")
		}
	})

	t.Run("价格缺失", func(t *testing.T) {
		l := matchingListing()
		l.Price = nil
		if meetsCriteria(l) {
			t.Error("价格缺失不应命中")
		}
	})

	t.Run("estrato不在3或4", func(t *testing.T) {
		l := matchingListing()
		l.Estrato = intPtr(5)
		if meetsCriteria(l) {
			t.Error("estrato 5不应命中")
		}
		l.Estrato = intPtr(4)
		if !meetsCriteria(l) {
			t.Error("estrato 4应命中")
		}
	})

	t.Run("面积不足", func(t *testing.T) {
		l := matchingListing()
		l.AreaM2 = floatPtr(45)
		if meetsCriteria(l) {
			t.Error("面积不足50不应命中")
		}
	})

	t.Run("房型未知", func(t *testing.T) {
		l := matchingListing()
		l.PropertyType = ""
		if meetsCriteria(l) {
			t.Error("未知房型不应命中")
		}
	})

	t.Run("公寓无户外特征", func(t *testing.T) {
		l := matchingListing()
		l.Details = map[string]string{"Parqueadero": "1"}
		if meetsCriteria(l) {
			t.Error("无balcon/terraza的公寓不应命中")
		}
	})

	t.Run("房屋的patio算作特征", func(t *testing.T) {
		l := matchingListing()
		l.PropertyType = "casa"
		l.Details = map[string]string{"Patio": "Sí"}
		if !meetsCriteria(l) {
			t.Error("带patio的casa应命中")
		}
	})

	t.Run("公寓的patio不算特征", func(t *testing.T) {
		l := matchingListing()
		l.Details = map[string]string{"Patio": "Sí"}
		if meetsCriteria(l) {
			t.Error("patio不在公寓关键词表内")
		}
	})

	t.Run("特征带否定词跳过", func(t *testing.T) {
		l := matchingListing()
		l.Details = map[string]string{"Balcón": "Ninguno"}
		if meetsCriteria(l) {
			t.Error("值为否定词的特征不应命中")
		}
	})

	t.Run("描述中的否定上下文", func(t *testing.T) {
		l := matchingListing()
		l.Details = map[string]string{}
		l.Description = "apartamento sin balcón, cerca al metro"
		if meetsCriteria(l) {
			t.Error("'sin balcon'不应命中")
		}
		l.Description = "apartamento con balcón amplio"
		if !meetsCriteria(l) {
			t.Error("'con balcon'应命中")
		}
	})
}

// TestDeterminePropertyType 测试房型推断
func TestDeterminePropertyType(t *testing.T) {
	tests := []struct {
		name    string
		info    map[string]any
		details map[string]string
		want    string
	}{
		{"显式字段", map[string]any{"property_type": "Apartamento"}, nil, "apartamento"},
		{"details字段", map[string]any{}, map[string]string{"Tipo de Inmueble": "Casa"}, "casa"},
		{"标题回退", map[string]any{"title": "Hermoso apartaestudio en arriendo"}, nil, "apartamento"},
		{"无法推断", map[string]any{"title": "Local comercial"}, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := determinePropertyType(tt.info, tt.details); got != tt.want {
				t.Errorf("期望%q, 得到%q", tt.want, got)
			}
		})
	}
}

// TestListingFilterDedupe 测试按规范URL去重保留最新
func TestListingFilterDedupe(t *testing.T) {
	f := NewListingFilter()

	older := matchingListing()
	older.Title = "旧记录"
	older.ScrapedAt = "2026-08-01T10:00:00Z"

	newer := matchingListing()
	newer.URL = "https://example.com/p/1?ref=b" // 查询串不同,规范URL相同
	newer.CanonicalURL = "https://example.com/p/1"
	newer.Title = "新记录"
	newer.ScrapedAt = "2026-08-20T10:00:00Z"

	f.add(older)
	f.add(newer)

	filtered := f.Filtered()
	if len(filtered) != 1 {
		t.Fatalf("同规范URL应去重, 得到%d条", len(filtered))
	}
	if filtered[0].Title != "新记录" {
		t.Errorf("应保留最新记录, 得到%q", filtered[0].Title)
	}

	// 乱序添加结果一致
	f2 := NewListingFilter()
	f2.add(newer)
	f2.add(older)
	if got := f2.Filtered(); len(got) != 1 || got[0].Title != "新记录" {
		t.Error("添加顺序不应影响去重结果")
	}
}

// TestFlattenKeyValueList 测试键值对压平
func TestFlattenKeyValueList(t *testing.T) {
	raw := []any{
		map[string]any{"Habitaciones": "3"},
		map[string]any{"Habitaciones": "5"}, // 重复键,首个优先
		map[string]any{"Baños": "2"},
		map[string]any{"Vacío": nil},
	}
	got := flattenKeyValueList(raw)
	if got["Habitaciones"] != "3" {
		t.Errorf("重复键应保留首个值, 得到%q", got["Habitaciones"])
	}
	if got["Baños"] != "2" {
		t.Errorf("Baños不符: %q", got["Baños"])
	}
	if _, exists := got["Vacío"]; exists {
		t.Error("nil值条目应跳过")
	}
}

// TestProcessDirectory 测试从采集结果文件到筛选的端到端流程
func TestProcessDirectory(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(dataDir, "demo_details_20260829_100000.csv")

	good := models.NewScraperOutput("https://example.com/p/1?ref=x", map[string]any{
		"title":       "Apartamento en Laureles",
		"pricing":     "$ 1.800.000",
		"description": "hermoso apartamento con balcón",
		"details": []map[string]any{
			{"Habitaciones": "3"},
			{"Baños": "2"},
			{"Área Construida": "65 m²"},
			{"Estrato": "3"},
			{"Tipo de Inmueble": "Apartamento"},
		},
	})
	expensive := models.NewScraperOutput("https://example.com/p/2", map[string]any{
		"title":   "Apartamento de lujo",
		"pricing": "$ 5.000.000",
		"details": []map[string]any{
			{"Habitaciones": "3"},
			{"Baños": "2"},
			{"Área Construida": "120 m²"},
			{"Estrato": "6"},
			{"Tipo de Inmueble": "Apartamento"},
		},
	})

	for _, output := range []*models.ScraperOutput{good, expensive} {
		if err := storage.AppendIncremental(path, output); err != nil {
			t.Fatalf("写入测试数据失败: %v", err)
		}
	}

	// 不匹配命名模式的文件应被忽略
	other := filepath.Join(dataDir, "demo_pages_20260829_100000.csv")
	if err := storage.AppendIncremental(other, good); err != nil {
		t.Fatalf("写入测试数据失败: %v", err)
	}

	f := NewListingFilter()
	if err := f.ProcessDirectory(dataDir); err != nil {
		t.Fatalf("处理目录失败: %v", err)
	}

	filtered := f.Filtered()
	if len(filtered) != 1 {
		t.Fatalf("期望命中1条, 得到%d", len(filtered))
	}
	l := filtered[0]
	if l.CanonicalURL != "https://example.com/p/1" {
		t.Errorf("规范URL不符: %s", l.CanonicalURL)
	}
	if l.Price == nil || *l.Price != 1_800_000 {
		t.Errorf("价格解析不符: %v", l.Price)
	}
	if l.ScrapedAt == "" {
		t.Error("应保留抓取时间")
	}
}

// TestWriteFilteredAndReadPrevious 测试筛选结果写出与历史URL回读
func TestWriteFilteredAndReadPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis", "filtered_listings.csv")

	l := matchingListing()
	l.ScrapedAt = time.Now().UTC().Format(time.RFC3339)
	if err := WriteFiltered(path, []*Listing{l}); err != nil {
		t.Fatalf("写出失败: %v", err)
	}

	urls, err := ReadPreviousURLs(path)
	if err != nil {
		t.Fatalf("回读失败: %v", err)
	}
	if !urls["https://example.com/p/1"] {
		t.Errorf("应包含规范URL, 得到%v", urls)
	}
}

// TestReadPreviousURLs_Missing 测试首次运行(无历史文件)
func TestReadPreviousURLs_Missing(t *testing.T) {
	urls, err := ReadPreviousURLs(filepath.Join(t.TempDir(), "none.csv"))
	if err != nil {
		t.Fatalf("文件缺失不应报错: %v", err)
	}
	if len(urls) != 0 {
		t.Errorf("应返回空集合, 得到%v", urls)
	}
}
