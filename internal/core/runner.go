package core

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/shadowscraper/internal/models"
	"github.com/RecoveryAshes/shadowscraper/internal/scrapers"
	"github.com/RecoveryAshes/shadowscraper/internal/storage"
	"github.com/RecoveryAshes/shadowscraper/internal/utils"
)

// Runner 采集编排器: 列表页先行,详情页随后
type Runner struct {
	config *Config
	pairs  []ScraperPair
}

// NewRunner 创建编排器并加载采集定义
func NewRunner(config *Config) (*Runner, error) {
	pairs, err := LoadScrapers(config.Scrape.ScrapersFile, config.Scrape.Headers)
	if err != nil {
		return nil, err
	}
	return &Runner{config: config, pairs: pairs}, nil
}

// Names 全部已定义的采集器名称
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.pairs))
	for _, pair := range r.pairs {
		names = append(names, pair.Name)
	}
	return names
}

// Run 执行指定名称的采集器;名称为空时依次执行全部
func (r *Runner) Run(ctx context.Context, name string) error {
	if name != "" {
		pair, err := r.findPair(name)
		if err != nil {
			return err
		}
		return r.runPair(ctx, pair)
	}

	for _, pair := range r.pairs {
		if err := r.runPair(ctx, pair); err != nil {
			utils.Errorf("采集器执行失败 [%s]: %v", pair.Name, err)
			if !r.config.Scrape.ContinueOnError {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) findPair(name string) (ScraperPair, error) {
	for _, pair := range r.pairs {
		if pair.Name == name {
			return pair, nil
		}
	}
	return ScraperPair{}, fmt.Errorf("未找到采集器: %s (可用: %v)", name, r.Names())
}

// runPair 执行一个站点的完整流程: 列表页采集 → 详情URL提取 → 详情页采集
func (r *Runner) runPair(ctx context.Context, pair ScraperPair) error {
	startTime := time.Now()
	timestamp := startTime.Format("20060102_150405")
	pagesFile := filepath.Join(r.config.Output.DataDir, fmt.Sprintf("%s_pages_%s.csv", pair.Name, timestamp))
	detailsFile := filepath.Join(r.config.Output.DataDir, fmt.Sprintf("%s_details_%s.csv", pair.Name, timestamp))

	slog := utils.WithScraper(pair.Name)
	slog.Info().Msg("🚀 采集器启动")

	// 列表页阶段
	pagesOutputs, err := r.scrape(ctx, pair.Pages, scrapers.Options{
		OutputFile:      r.incrementalFile(pagesFile),
		DelayBetweenURL: r.batchDelay(),
		ContinueOnError: r.config.Scrape.ContinueOnError,
	})
	if err != nil {
		return fmt.Errorf("列表页采集失败: %w", err)
	}
	if !r.config.Scrape.Incremental {
		if err := storage.SaveBatch(pagesFile, pagesOutputs); err != nil {
			return err
		}
	}

	// 详情URL提取
	detailURLs, err := r.collectDetailURLs(pair, pagesFile, pagesOutputs)
	if err != nil {
		return err
	}
	if len(detailURLs) == 0 {
		utils.Warnf("未提取到详情URL [%s],跳过详情页采集", pair.Name)
		return nil
	}
	slog.Info().Int("urls", len(detailURLs)).Msg("🔍 详情URL提取完成")

	// 详情页阶段
	details := *pair.Details
	details.URLs = detailURLs

	bar := utils.NewProgressBar(len(detailURLs), fmt.Sprintf("采集详情页 [%s]", pair.Name))
	detailsOutputs, err := r.scrape(ctx, &details, scrapers.Options{
		OutputFile:      r.incrementalFile(detailsFile),
		OnRecord:        func(*models.ScraperOutput) { bar.Add(1) },
		DelayBetweenURL: r.batchDelay(),
		ContinueOnError: r.config.Scrape.ContinueOnError,
	})
	if err != nil {
		return fmt.Errorf("详情页采集失败: %w", err)
	}
	if !r.config.Scrape.Incremental {
		if err := storage.SaveBatch(detailsFile, detailsOutputs); err != nil {
			return err
		}
	}

	duration := time.Since(startTime)
	slog.Info().Float64("seconds", duration.Seconds()).Msg("✨ 采集器完成")

	report := utils.RunReport{
		Scraper:     pair.Name,
		StartTime:   startTime,
		EndTime:     time.Now(),
		Duration:    duration.Seconds(),
		PagesFile:   pagesFile,
		DetailsFile: detailsFile,
		DetailURLs:  len(detailURLs),
		Records:     len(detailURLs),
	}
	if err := utils.SaveRunReport(r.config.Output.DataDir, report); err != nil {
		utils.Warnf("保存运行报告失败: %v", err)
	}
	return nil
}

// scrape 按引擎类型构建并执行采集器
func (r *Runner) scrape(ctx context.Context, input *models.ScraperInput, opts scrapers.Options) ([]*models.ScraperOutput, error) {
	var s scrapers.Scraper
	switch input.Engine {
	case models.EngineBrowser:
		s = scrapers.NewDynamicScraper(input, r.config.Scrape.Headless, opts)
	default:
		s = scrapers.NewStaticScraper(input, opts)
	}
	return s.Scrape(ctx)
}

// collectDetailURLs 从列表页结果中提取详情URL并解析相对路径
func (r *Runner) collectDetailURLs(pair ScraperPair, pagesFile string, outputs []*models.ScraperOutput) ([]string, error) {
	var raw []string
	if r.config.Scrape.Incremental {
		urls, err := storage.ReadDetailURLs(pagesFile)
		if err != nil {
			return nil, fmt.Errorf("读取列表页结果失败: %w", err)
		}
		raw = urls
	} else {
		for _, output := range outputs {
			raw = append(raw, storage.ExtractDetailURLs(output.Information)...)
		}
	}

	var base *url.URL
	if pair.Pages.BaseURL != "" {
		parsed, err := url.Parse(pair.Pages.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("base_url无效 [%s]: %w", pair.Pages.BaseURL, err)
		}
		base = parsed
	}

	seen := make(map[string]bool, len(raw))
	var resolved []string
	for _, u := range raw {
		full := u
		if base != nil {
			ref, err := url.Parse(u)
			if err != nil {
				utils.Warnf("详情URL无效,已跳过 [%s]: %v", u, err)
				continue
			}
			full = base.ResolveReference(ref).String()
		}
		if err := models.ValidateURL(full); err != nil {
			utils.Warnf("详情URL无效,已跳过 [%s]: %v", full, err)
			continue
		}
		if seen[full] {
			continue
		}
		seen[full] = true
		resolved = append(resolved, full)
	}
	return resolved, nil
}

// incrementalFile 增量模式下返回输出文件路径,批量模式下返回空
func (r *Runner) incrementalFile(path string) string {
	if r.config.Scrape.Incremental {
		return path
	}
	return ""
}

func (r *Runner) batchDelay() time.Duration {
	return time.Duration(r.config.Scrape.BatchDelay) * time.Second
}
