// Package storage 采集结果的CSV持久化
//
// 列布局: id, url, information, date_time
// information列为JSON编码,字段缺失时序列化为JSON null,
// 读取时可与空字符串严格区分
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/shadowscraper/internal/models"
)

var csvHeader = []string{"id", "url", "information", "date_time"}

// AppendIncremental 追加单条记录到CSV文件
// 文件不存在时先创建并写入表头;目录不存在时自动创建
func AppendIncremental(path string, output *models.ScraperOutput) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("打开CSV文件失败: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("写入表头失败: %w", err)
		}
	}

	record, err := toRecord(output)
	if err != nil {
		return err
	}
	if err := w.Write(record); err != nil {
		return fmt.Errorf("写入记录失败: %w", err)
	}

	w.Flush()
	return w.Error()
}

// SaveBatch 一次性写出全部记录(覆盖已有文件)
func SaveBatch(path string, outputs []*models.ScraperOutput) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建CSV文件失败: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("写入表头失败: %w", err)
	}
	for _, output := range outputs {
		record, err := toRecord(output)
		if err != nil {
			return err
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("写入记录失败: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

func toRecord(output *models.ScraperOutput) ([]string, error) {
	info, err := json.Marshal(output.Information)
	if err != nil {
		return nil, fmt.Errorf("序列化information失败: %w", err)
	}
	return []string{
		output.ID,
		output.URL,
		string(info),
		output.DateTime.UTC().Format(time.RFC3339),
	}, nil
}

// Row CSV文件中的一行反序列化结果
type Row struct {
	ID          string
	URL         string
	Information map[string]any
	DateTime    string
}

// ReadRows 读取CSV文件全部数据行
func ReadRows(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开CSV文件失败: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("读取CSV失败: %w", err)
	}

	rows := make([]Row, 0, len(records))
	for i, record := range records {
		if i == 0 || len(record) < 4 {
			continue
		}
		var info map[string]any
		if record[2] != "" {
			if err := json.Unmarshal([]byte(record[2]), &info); err != nil {
				return nil, fmt.Errorf("解析information失败 (行%d): %w", i+1, err)
			}
		}
		rows = append(rows, Row{
			ID:          record[0],
			URL:         record[1],
			Information: info,
			DateTime:    record[3],
		})
	}
	return rows, nil
}

// ReadDetailURLs 从列表页结果文件中提取详情页URL
// 约定: information中的urls字段为 [{"url": "..."}, ...] 形态
func ReadDetailURLs(path string) ([]string, error) {
	rows, err := ReadRows(path)
	if err != nil {
		return nil, err
	}

	var urls []string
	for _, row := range rows {
		urls = append(urls, ExtractDetailURLs(row.Information)...)
	}
	return urls, nil
}

// ExtractDetailURLs 从单条information中提取urls字段里的全部URL
func ExtractDetailURLs(info map[string]any) []string {
	var urls []string
	appendURL := func(m map[string]any) {
		if u, ok := m["url"].(string); ok && u != "" {
			urls = append(urls, u)
		}
	}

	// JSON反序列化得到[]any,内存直传得到[]map[string]any
	switch entries := info["urls"].(type) {
	case []any:
		for _, entry := range entries {
			if m, ok := entry.(map[string]any); ok {
				appendURL(m)
			}
		}
	case []map[string]any:
		for _, m := range entries {
			appendURL(m)
		}
	}
	return urls
}
