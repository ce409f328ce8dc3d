package scrapers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/RecoveryAshes/shadowscraper/internal/models"
	"github.com/RecoveryAshes/shadowscraper/internal/shadowdom"
	"github.com/RecoveryAshes/shadowscraper/internal/utils"
)

const (
	navigationTimeout = 60 * time.Second // 页面导航超时
	contentTimeout    = 30 * time.Second // 内容就绪等待超时
	nextPageTimeout   = 10 * time.Second // 下一页元素等待超时
	pollInterval      = 100 * time.Millisecond

	scrollStep      = 500 // 每次滚动像素数
	scrollPause     = 500 * time.Millisecond
	scrollOvershoot = 10000 // 滚动安全界限(超出页面高度的容差)
	settleDelay     = 300 * time.Millisecond

	// 浏览器启动前的最低可用内存要求
	minAvailableMemory = 512 * 1024 * 1024
)

// DynamicScraper 动态采集器(使用Rod控制真实浏览器)
// 适合客户端渲染页面: 等待JS渲染完成后提取,
// 分页通过点击下一页元素实现
type DynamicScraper struct {
	base
	headless bool
	browser  *rod.Browser
}

// NewDynamicScraper 创建动态采集器
func NewDynamicScraper(input *models.ScraperInput, headless bool, opts Options) *DynamicScraper {
	return &DynamicScraper{
		base:     newBase(input, opts),
		headless: headless,
	}
}

// Scrape 启动浏览器并依次处理全部起始URL
func (ds *DynamicScraper) Scrape(ctx context.Context) ([]*models.ScraperOutput, error) {
	checkMemory()

	startLogger := utils.WithScraper(ds.input.Name)
	startLogger.Info().Int("urls", len(ds.input.URLs)).Msg("🌐 动态采集启动")

	if err := ds.launchBrowser(); err != nil {
		return nil, err
	}
	defer ds.closeBrowser()

	for i, startURL := range ds.input.URLs {
		select {
		case <-ctx.Done():
			return ds.collected, ctx.Err()
		default:
		}

		if i > 0 && ds.opts.DelayBetweenURL > 0 {
			time.Sleep(ds.opts.DelayBetweenURL)
		}

		if err := ds.scrapeOrigin(startURL); err != nil {
			utils.Errorf("起始URL采集失败 [%s]: %v", startURL, err)
			if !ds.opts.ContinueOnError {
				return ds.collected, err
			}
		}
	}

	doneLogger := utils.WithScraper(ds.input.Name)
	doneLogger.Info().Msg("✅ 动态采集完成")
	return ds.collected, nil
}

// scrapeOrigin 处理单个起始URL的完整分页序列
// 浏览器操作panic统一转换为error,不影响后续起始URL
func (ds *DynamicScraper) scrapeOrigin(startURL string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("浏览器操作panic: %v", r)
		}
	}()

	page, err := ds.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("创建标签页失败: %w", err)
	}
	defer page.Close()

	// 自定义头部作用于该标签页的全部请求(静态后端在OnRequest中逐请求注入)
	if len(ds.input.Headers) > 0 {
		if _, err := page.SetExtraHeaders(headerPairs(ds.input.Headers)); err != nil {
			utils.Warnf("设置自定义头部失败: %v", err)
		}
	}

	utils.Debugf("导航: %s", startURL)
	if err := page.Timeout(navigationTimeout).Navigate(startURL); err != nil {
		return fmt.Errorf("导航失败 [%s]: %w", startURL, err)
	}
	if err := page.Timeout(navigationTimeout).WaitLoad(); err != nil {
		return fmt.Errorf("等待加载失败 [%s]: %w", startURL, err)
	}

	ds.markVisited(startURL, startURL)

	for pageIndex := 0; ; pageIndex++ {
		ds.waitForContent(page)

		info, err := page.Info()
		currentURL := startURL
		if err == nil {
			currentURL = info.URL
		}

		doc := &rodDocument{page: page}
		p := &rodPage{url: currentURL, doc: doc}

		data := ds.extractInformation(p)
		output := models.NewScraperOutput(currentURL, data)
		if err := ds.emit(output); err != nil {
			return err
		}
		pageLogger := utils.WithPage(ds.input.Name, pageIndex)
		pageLogger.Info().Str("url", currentURL).Msg("📥 页面已采集")

		if ds.input.NextXPath == "" || !ds.shouldContinuePagination(pageIndex) {
			return nil
		}
		if !ds.clickNextPage(page, doc) {
			utils.Debugf("无下一页 [%s],分页结束", currentURL)
			return nil
		}
	}
}

// waitForContent 等待页面内容就绪
// 先轮询首个字段路径直到可解析出元素,再执行渐进滚动触发懒加载
func (ds *DynamicScraper) waitForContent(page *rod.Page) {
	waitPath := ds.primaryWaitPath()
	if waitPath != "" {
		doc := &rodDocument{page: page}
		clean, _ := shadowdom.Clean(waitPath)

		deadline := time.Now().Add(contentTimeout)
		for time.Now().Before(deadline) {
			elements, err := shadowdom.Resolve(doc, clean)
			if err == nil && len(elements) > 0 {
				break
			}
			time.Sleep(pollInterval)
		}
	}

	ds.scrollPage(page)
	time.Sleep(settleDelay)
}

// scrollPage 渐进滚动页面底部以触发懒加载内容
// 每次滚动后短暂停顿,位置超过页面高度加安全界限时终止,最后回到顶部
func (ds *DynamicScraper) scrollPage(page *rod.Page) {
	position := 0
	for {
		if _, err := page.Eval(`(y) => window.scrollTo(0, y)`, position+scrollStep); err != nil {
			utils.Debugf("滚动失败: %v", err)
			return
		}
		position += scrollStep
		time.Sleep(scrollPause)

		obj, err := page.Eval(`() => document.body.scrollHeight`)
		if err != nil {
			return
		}
		height := obj.Value.Int()

		if position > int(height)+scrollOvershoot {
			break
		}
		if position >= int(height) {
			break
		}
	}

	if _, err := page.Eval(`() => window.scrollTo(0, 0)`); err != nil {
		utils.Debugf("回到顶部失败: %v", err)
	}
}

// clickNextPage 等待并点击下一页元素,成功点击并加载后返回true
func (ds *DynamicScraper) clickNextPage(page *rod.Page, doc *rodDocument) bool {
	clean, _ := shadowdom.Clean(ds.input.NextXPath)

	var target *rodElement
	deadline := time.Now().Add(nextPageTimeout)
	for time.Now().Before(deadline) {
		elements, err := shadowdom.Resolve(doc, clean)
		if err == nil && len(elements) > 0 {
			if el, ok := elements[0].(*rodElement); ok {
				target = el
				break
			}
		}
		time.Sleep(pollInterval)
	}
	if target == nil {
		return false
	}

	if err := target.el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		utils.Warnf("点击下一页失败: %v", err)
		return false
	}
	if err := page.Timeout(contentTimeout).WaitLoad(); err != nil {
		utils.Warnf("下一页加载超时: %v", err)
	}
	return true
}

// launchBrowser 启动浏览器
func (ds *DynamicScraper) launchBrowser() error {
	l := launcher.New().Headless(ds.headless)

	// 允许访问自签名或过期证书的站点
	l = l.Set("ignore-certificate-errors")

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("启动浏览器失败: %w", err)
	}

	ds.browser = rod.New().ControlURL(controlURL)
	if err := ds.browser.Connect(); err != nil {
		return fmt.Errorf("连接浏览器失败: %w", err)
	}

	utils.Debugf("浏览器已启动: %s", controlURL)
	return nil
}

// closeBrowser 关闭浏览器
func (ds *DynamicScraper) closeBrowser() {
	if ds.browser != nil {
		ds.browser.MustClose()
		utils.Debugf("浏览器已关闭")
	}
}

// headerPairs 将头部映射平铺为SetExtraHeaders所需的键值交替列表
func headerPairs(headers map[string]string) []string {
	pairs := make([]string, 0, len(headers)*2)
	for name, value := range headers {
		pairs = append(pairs, name, value)
	}
	return pairs
}

// checkMemory 浏览器启动前的内存预检,不足时仅告警不阻断
func checkMemory() {
	v, err := mem.VirtualMemory()
	if err != nil {
		utils.Debugf("获取内存信息失败: %v", err)
		return
	}
	if v.Available < minAvailableMemory {
		utils.Warnf("可用内存偏低: %d MB,浏览器可能不稳定", v.Available/1024/1024)
	}
}

// rodPage Page接口的浏览器实现
type rodPage struct {
	url string
	doc *rodDocument
}

func (p *rodPage) URL() string { return p.url }

func (p *rodPage) ExtractValues(path string) ([]string, error) {
	return shadowdom.Extract(p.doc, path)
}
