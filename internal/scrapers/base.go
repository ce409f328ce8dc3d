package scrapers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/RecoveryAshes/shadowscraper/internal/models"
	"github.com/RecoveryAshes/shadowscraper/internal/storage"
	"github.com/RecoveryAshes/shadowscraper/internal/utils"
)

// ScalarJoinSeparator 标量字段多值合并分隔符
// 保留全部匹配数据,而非静默截断
const ScalarJoinSeparator = " | "

// Scraper 采集器接口,由静态(Colly)与浏览器(Rod)后端分别实现
type Scraper interface {
	// Scrape 执行采集
	// 增量保存模式下返回的切片为空(数据已落盘),这是预期行为
	Scrape(ctx context.Context) ([]*models.ScraperOutput, error)
}

// Page 单个已加载页面的抽象
// 字段提取引擎与分页控制器只面向该接口编写一次,
// 由各后端提供自己的解析/取值实现
type Page interface {
	// URL 当前页面URL
	URL() string

	// ExtractValues 边界感知地解析路径并提取字符串值列表
	ExtractValues(path string) ([]string, error)
}

// Options 采集运行选项
type Options struct {
	OutputFile      string                      // 非空: 每条记录立即增量写入该CSV
	OnRecord        func(*models.ScraperOutput) // 每条记录产出后的回调(进度上报)
	DelayBetweenURL time.Duration               // 起始URL之间的延迟
	ContinueOnError bool                        // 单个起始URL失败后是否继续
}

// base 两种后端共享的采集引擎
// 持有不可变配置、分页状态与输出策略
type base struct {
	input *models.ScraperInput
	opts  Options

	// pagesVisited 每个起始URL已访问的页面集合(防止重复处理)
	pagesVisited map[string]map[string]bool

	// collected 非增量模式下的内存缓冲
	collected []*models.ScraperOutput
}

func newBase(input *models.ScraperInput, opts Options) base {
	return base{
		input:        input,
		opts:         opts,
		pagesVisited: make(map[string]map[string]bool),
	}
}

// markVisited 标记页面已访问,返回是否为首次访问
func (b *base) markVisited(originURL, pageURL string) bool {
	set := b.pagesVisited[originURL]
	if set == nil {
		set = make(map[string]bool)
		b.pagesVisited[originURL] = set
	}
	if set[pageURL] {
		return false
	}
	set[pageURL] = true
	return true
}

// isPathLike 判断字符串是否为路径表达式
// 路径通常以 / 、./ 、.// 开头,或包含XPath语法特征
func isPathLike(s string) bool {
	if s == "" {
		return false
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "./") || strings.HasPrefix(s, ".//") {
		return true
	}
	if strings.Contains(s, "@") && (strings.Contains(s, "/") || strings.Contains(s, "[")) {
		return true
	}
	if strings.Contains(s, "::") {
		return true
	}
	return false
}

// shouldContinuePagination 分页继续判定
//
//   - number_of_pages = 0: 无限继续(直到无下一页)
//   - number_of_pages = 1: 仅采集首页(不分页)
//   - number_of_pages = N: 共采集N页
func (b *base) shouldContinuePagination(pageIndex int) bool {
	switch b.input.NumberOfPages {
	case 0:
		return true
	case 1:
		return false
	default:
		return pageIndex < b.input.NumberOfPages-1
	}
}

// primaryWaitPath 返回首个字段的主路径,供内容就绪等待使用
// 键值对字段优先取路径形态的xpath_names,其次xpath_values
func (b *base) primaryWaitPath() string {
	if len(b.input.Information) == 0 {
		return ""
	}
	first := b.input.Information[0]
	if !first.IsDynamic() {
		return first.XPath
	}
	if isPathLike(first.NamesXPath) {
		return first.NamesXPath
	}
	if isPathLike(first.ValuesXPath) {
		return first.ValuesXPath
	}
	return ""
}

// extractInformation 字段提取引擎: 按序应用全部字段配置
//
// 标量字段: 恰好一个值存为字符串; 多个值用" | "合并;
// 零个值存为显式缺失标记nil(绝不使用空字符串,
// 下游过滤逻辑依赖"无数据"与"空文本"的区分)
//
// 键值对字段: names/values各自按路径解析或按字面量处理,
// 取 n = max(len(names), len(values)),按 i mod len 循环配对
// (较短列表轮转匹配较长列表,而非截断或报错);
// 空名退化为合成键 key_{i},空值为缺失标记
func (b *base) extractInformation(p Page) map[string]any {
	data := make(map[string]any, len(b.input.Information))

	for _, field := range b.input.Information {
		if !field.IsDynamic() {
			values := b.extractList(p, field.XPath)
			switch len(values) {
			case 0:
				data[field.Name] = nil
			case 1:
				data[field.Name] = values[0]
			default:
				data[field.Name] = strings.Join(values, ScalarJoinSeparator)
			}
			continue
		}

		names := b.resolveListOrLiteral(p, field.NamesXPath)
		values := b.resolveListOrLiteral(p, field.ValuesXPath)

		n := len(names)
		if len(values) > n {
			n = len(values)
		}

		entries := make([]map[string]any, 0, n)
		for i := 0; i < n; i++ {
			name := ""
			if len(names) > 0 {
				name = names[i%len(names)]
			}
			if name == "" {
				name = fmt.Sprintf("key_%d", i)
			}

			var value any
			if len(values) > 0 {
				if v := values[i%len(values)]; v != "" {
					value = v
				}
			}
			entries = append(entries, map[string]any{name: value})
		}
		data[field.Name] = entries
	}

	return data
}

// extractList 提取路径匹配的全部值,失败只影响该字段
func (b *base) extractList(p Page, path string) []string {
	values, err := p.ExtractValues(path)
	if err != nil {
		utils.Warnf("字段提取失败 [%s]: %v", path, err)
		return nil
	}
	return values
}

// resolveListOrLiteral 路径形态的字符串走解析提取,否则按单元素字面量处理
func (b *base) resolveListOrLiteral(p Page, s string) []string {
	if isPathLike(s) {
		return b.extractList(p, s)
	}
	return []string{s}
}

// emit 产出一条记录: 增量写入或内存缓冲,二者互斥
// 持久化I/O失败作为致命错误传播(已落盘的增量数据保留,追加写不回滚)
func (b *base) emit(output *models.ScraperOutput) error {
	if b.opts.OutputFile != "" {
		if err := storage.AppendIncremental(b.opts.OutputFile, output); err != nil {
			return fmt.Errorf("增量写入失败 [%s]: %w", b.opts.OutputFile, err)
		}
		utils.Debugf("记录已增量写入: %s", b.opts.OutputFile)
	} else {
		b.collected = append(b.collected, output)
	}
	if b.opts.OnRecord != nil {
		b.opts.OnRecord(output)
	}
	return nil
}
