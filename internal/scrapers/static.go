package scrapers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"

	"github.com/RecoveryAshes/shadowscraper/internal/models"
	"github.com/RecoveryAshes/shadowscraper/internal/shadowdom"
	"github.com/RecoveryAshes/shadowscraper/internal/utils"
)

const staticUserAgent = "Mozilla/5.0 (compatible; ShadowScraper/1.0)"

// StaticScraper 静态采集器(使用Colly)
// 适合服务端渲染页面: 单次HTTP请求获取完整HTML,
// 分页通过提取下一页URL并重新请求实现
type StaticScraper struct {
	base
	collector *colly.Collector

	// fatalErr 首个持久化失败,回调中记录,由Scrape在Wait后检查并返回
	fatalErr error
}

// NewStaticScraper 创建静态采集器
func NewStaticScraper(input *models.ScraperInput, opts Options) *StaticScraper {
	// 禁用TLS证书验证,允许访问自签名或过期证书的站点
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		},
	}

	// 同步模式: 分页依赖顺序处理,页面间有状态传递
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
	)
	c.SetClient(httpClient)
	c.WithTransport(httpClient.Transport)
	c.SetRequestTimeout(30 * time.Second)

	ss := &StaticScraper{
		base:      newBase(input, opts),
		collector: c,
	}
	ss.setupCallbacks()
	return ss
}

// setupCallbacks 设置Colly回调
func (ss *StaticScraper) setupCallbacks() {
	ss.collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", staticUserAgent)
		for name, value := range ss.input.Headers {
			r.Headers.Set(name, value)
		}
		utils.Debugf("访问: %s", r.URL.String())
	})

	ss.collector.OnResponse(func(r *colly.Response) {
		if ss.fatalErr != nil {
			return
		}
		if err := ss.handleResponse(r); err != nil {
			// 持久化失败: 记录首个错误并终止本次采集
			// (记录在采集器本体上,分页后续请求使用新的colly.Context,
			// 不能依赖起始请求的上下文传递错误)
			ss.fatalErr = err
		}
	})

	ss.collector.OnError(func(r *colly.Response, err error) {
		// 单页请求失败视为该起始URL的分页终点,不影响其他起始URL
		utils.Errorf("请求失败 [%s]: %v", r.Request.URL, err)
	})
}

// handleResponse 处理单个页面响应: 解析、提取、产出、分页
func (ss *StaticScraper) handleResponse(r *colly.Response) error {
	pageURL := r.Request.URL.String()
	originURL := r.Ctx.Get("origin_url")
	if originURL == "" {
		originURL = pageURL
	}
	pageIndex, _ := strconv.Atoi(r.Ctx.Get("page_index"))

	body := r.Body
	if encoding := r.Headers.Get("Content-Encoding"); encoding != "" {
		decompressed, err := decompressBody(encoding, r.Body)
		if err != nil {
			utils.Warnf("解压响应失败 [%s] (编码=%s): %v", pageURL, encoding, err)
		} else {
			body = decompressed
		}
	}

	doc, err := newStaticDocument(body)
	if err != nil {
		utils.Errorf("解析HTML失败 [%s]: %v", pageURL, err)
		return nil
	}
	page := &staticPage{url: pageURL, doc: doc}

	info := ss.extractInformation(page)
	output := models.NewScraperOutput(pageURL, info)
	if err := ss.emit(output); err != nil {
		return err
	}
	pageLogger := utils.WithPage(ss.input.Name, pageIndex)
	pageLogger.Info().Str("url", pageURL).Msg("📥 页面已采集")

	ss.followNextPage(r, page, originURL, pageIndex)
	return nil
}

// followNextPage 分页跳转: 提取下一页URL,相对路径基于当前页面解析
func (ss *StaticScraper) followNextPage(r *colly.Response, page *staticPage, originURL string, pageIndex int) {
	if ss.input.NextXPath == "" || !ss.shouldContinuePagination(pageIndex) {
		return
	}

	values, err := page.ExtractValues(ss.input.NextXPath)
	if err != nil || len(values) == 0 {
		utils.Debugf("无下一页 [%s],分页结束", page.URL())
		return
	}

	nextURL, err := r.Request.URL.Parse(strings.TrimSpace(values[0]))
	if err != nil {
		utils.Warnf("下一页URL无效 [%s]: %v", values[0], err)
		return
	}
	next := nextURL.String()

	// 同一起始URL内去重,防止站点分页自环
	if !ss.markVisited(originURL, next) {
		utils.Debugf("页面已访问,分页结束: %s", next)
		return
	}

	ctx := colly.NewContext()
	ctx.Put("origin_url", originURL)
	ctx.Put("page_index", strconv.Itoa(pageIndex+1))
	if err := ss.collector.Request("GET", next, nil, ctx, nil); err != nil {
		utils.Warnf("请求下一页失败 [%s]: %v", next, err)
	}
}

// Scrape 依次处理全部起始URL及其分页序列
func (ss *StaticScraper) Scrape(ctx context.Context) ([]*models.ScraperOutput, error) {
	startLogger := utils.WithScraper(ss.input.Name)
	startLogger.Info().Int("urls", len(ss.input.URLs)).Msg("🔍 静态采集启动")

	for i, startURL := range ss.input.URLs {
		select {
		case <-ctx.Done():
			return ss.collected, ctx.Err()
		default:
		}

		if i > 0 && ss.opts.DelayBetweenURL > 0 {
			time.Sleep(ss.opts.DelayBetweenURL)
		}

		ss.markVisited(startURL, startURL)

		cctx := colly.NewContext()
		cctx.Put("origin_url", startURL)
		cctx.Put("page_index", "0")
		if err := ss.collector.Request("GET", startURL, nil, cctx, nil); err != nil {
			utils.Errorf("起始URL请求失败 [%s]: %v", startURL, err)
			if !ss.opts.ContinueOnError {
				return ss.collected, fmt.Errorf("起始URL请求失败 [%s]: %w", startURL, err)
			}
			continue
		}
		ss.collector.Wait()

		if ss.fatalErr != nil {
			return ss.collected, fmt.Errorf("持久化失败: %w", ss.fatalErr)
		}
	}

	doneLogger := utils.WithScraper(ss.input.Name)
	doneLogger.Info().Msg("✅ 静态采集完成")
	return ss.collected, nil
}

// staticPage Page接口的静态实现
type staticPage struct {
	url string
	doc *staticDocument
}

func (p *staticPage) URL() string { return p.url }

func (p *staticPage) ExtractValues(path string) ([]string, error) {
	return shadowdom.Extract(p.doc, path)
}

// decompressBody 根据Content-Encoding解压响应体
// 支持 gzip, deflate, br (Brotli)
func decompressBody(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip读取失败: %w", err)
		}
		return decompressed, nil

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	case "":
		return body, nil

	default:
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}
