// Package filter 对采集到的房源记录做条件筛选与新增通知
//
// 筛选条件针对哥伦比亚租房市场: 价格区间、社会阶层(estrato)、
// 房间数、面积下限、房型及户外空间特征
package filter

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/RecoveryAshes/shadowscraper/internal/storage"
	"github.com/RecoveryAshes/shadowscraper/internal/utils"
)

const (
	PriceMin          = 1_500_000
	PriceMax          = 3_000_000
	MinAreaM2         = 50.0
	RequiredBedrooms  = 3
	RequiredBathrooms = 2
)

var (
	apartmentFeatureKeywords = []string{"balcon", "terraza"}
	houseFeatureKeywords     = []string{"balcon", "patio", "terraza", "jardin"}
)

// Listing 解析后的单条房源
// 数值字段用指针表达"缺失",缺失与零值在筛选时语义不同
type Listing struct {
	URL          string
	CanonicalURL string
	Title        string
	Location     string
	Price        *int
	Bedrooms     *int
	Bathrooms    *int
	AreaM2       *float64
	Estrato      *int
	PropertyType string
	Description  string

	Details         map[string]string
	Characteristics map[string]string

	SourceFile string
	ScrapedAt  string
}

// combinedText 标题、位置、描述与全部键值对拼接成的检索文本
func (l *Listing) combinedText() string {
	parts := []string{l.Title, l.Location, l.Description}
	for key, value := range l.Details {
		parts = append(parts, key+" "+value)
	}
	for key, value := range l.Characteristics {
		parts = append(parts, key+" "+value)
	}

	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}

// ListingFilter 按规范URL去重的筛选器,同URL保留最新抓取记录
type ListingFilter struct {
	listingsByURL map[string]*Listing
}

func NewListingFilter() *ListingFilter {
	return &ListingFilter{listingsByURL: make(map[string]*Listing)}
}

// ProcessDirectory 处理数据目录下全部详情页结果文件
func (f *ListingFilter) ProcessDirectory(dataDir string) error {
	paths, err := filepath.Glob(filepath.Join(dataDir, "*_details_*.csv"))
	if err != nil {
		return fmt.Errorf("扫描数据目录失败 [%s]: %w", dataDir, err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := f.processFile(path); err != nil {
			return err
		}
	}
	return nil
}

func (f *ListingFilter) processFile(path string) error {
	utils.Infof("处理文件: %s", path)

	rows, err := storage.ReadRows(path)
	if err != nil {
		return err
	}
	for _, row := range rows {
		listing := parseRow(row, filepath.Base(path))
		if listing == nil {
			continue
		}
		if meetsCriteria(listing) {
			f.add(listing)
		}
	}
	return nil
}

// add 同一规范URL保留抓取时间较新的记录
// 抓取时间为RFC3339,字典序比较即时间序比较
func (f *ListingFilter) add(listing *Listing) {
	key := listing.CanonicalURL
	if key == "" {
		key = listing.URL
	}
	existing := f.listingsByURL[key]
	if existing == nil || listing.ScrapedAt > existing.ScrapedAt {
		f.listingsByURL[key] = listing
	}
}

// Filtered 按(价格, 规范URL)排序的全部命中房源
func (f *ListingFilter) Filtered() []*Listing {
	listings := make([]*Listing, 0, len(f.listingsByURL))
	for _, l := range f.listingsByURL {
		listings = append(listings, l)
	}
	sort.Slice(listings, func(i, j int) bool {
		pi, pj := 0, 0
		if listings[i].Price != nil {
			pi = *listings[i].Price
		}
		if listings[j].Price != nil {
			pj = *listings[j].Price
		}
		if pi != pj {
			return pi < pj
		}
		return sortKey(listings[i]) < sortKey(listings[j])
	})
	return listings
}

func sortKey(l *Listing) string {
	if l.CanonicalURL != "" {
		return l.CanonicalURL
	}
	return l.URL
}

// parseRow 将一行采集结果解析为房源,information不可解析时返回nil
func parseRow(row storage.Row, sourceFile string) *Listing {
	info := row.Information
	if info == nil {
		return nil
	}

	details := flattenKeyValueList(info["details"])
	characteristics := flattenKeyValueList(info["characteristics"])

	listing := &Listing{
		URL:             row.URL,
		CanonicalURL:    CanonicalizeURL(row.URL),
		Title:           stringValue(info["title"]),
		Location:        stringValue(info["location"]),
		Description:     stringValue(info["description"]),
		Details:         details,
		Characteristics: characteristics,
		SourceFile:      sourceFile,
		ScrapedAt:       row.DateTime,
	}

	listing.PropertyType = determinePropertyType(info, details)

	priceRaw := stringValue(info["pricing"])
	if priceRaw == "" {
		priceRaw = stringValue(info["price"])
	}
	if price, ok := ParsePrice(priceRaw); ok {
		listing.Price = &price
	}

	if bedrooms, ok := extractNumber(ParseBedrooms,
		stringValue(info["bedrooms"]), details["Habitaciones"], stringValue(info["main_specs"])); ok {
		listing.Bedrooms = &bedrooms
	}
	if bathrooms, ok := extractNumber(ParseBathrooms,
		stringValue(info["bathrooms"]), details["Baños"], stringValue(info["main_specs"])); ok {
		listing.Bathrooms = &bathrooms
	}

	areaRaw := stringValue(info["area"])
	if areaRaw == "" {
		areaRaw = details["Área Construida"]
	}
	if areaRaw == "" {
		areaRaw = details["Area construida"]
	}
	if area, ok := ParseArea(areaRaw); ok {
		listing.AreaM2 = &area
	}

	estratoRaw := stringValue(info["estrato"])
	if estratoRaw == "" {
		estratoRaw = details["Estrato"]
	}
	if estratoRaw == "" {
		estratoRaw = details["estrato"]
	}
	if estrato, ok := ParseEstrato(estratoRaw); ok {
		listing.Estrato = &estrato
	}

	return listing
}

// extractNumber 依次尝试多个候选文本,返回首个解析成功的数值
func extractNumber(parse func(string) (int, bool), candidates ...string) (int, bool) {
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if n, ok := parse(candidate); ok {
			return n, true
		}
	}
	return 0, false
}

// flattenKeyValueList 将键值对字段([{k:v},...])压平为map,首个值优先
func flattenKeyValueList(raw any) map[string]string {
	flattened := make(map[string]string)

	addEntry := func(m map[string]any) {
		for key, value := range m {
			keyStr := strings.TrimSpace(key)
			if keyStr == "" || value == nil {
				continue
			}
			if _, exists := flattened[keyStr]; exists {
				continue
			}
			flattened[keyStr] = strings.TrimSpace(stringValue(value))
		}
	}

	switch entries := raw.(type) {
	case []any:
		for _, entry := range entries {
			if m, ok := entry.(map[string]any); ok {
				addEntry(m)
			}
		}
	case []map[string]any:
		for _, m := range entries {
			addEntry(m)
		}
	}
	return flattened
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// determinePropertyType 按优先级从多个字段推断房型
func determinePropertyType(info map[string]any, details map[string]string) string {
	candidates := []string{
		stringValue(info["property_type"]),
		details["Tipo de Inmueble"],
		details["Tipo de inmueble"],
		stringValue(info["title"]),
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		lowered := NormalizeText(candidate)
		if strings.Contains(lowered, "apart") {
			return "apartamento"
		}
		if strings.Contains(lowered, "casa") {
			return "casa"
		}
	}
	return ""
}

// meetsCriteria 筛选条件,全部满足才命中
func meetsCriteria(l *Listing) bool {
	if l.URL == "" {
		return false
	}
	if l.Price == nil || *l.Price < PriceMin || *l.Price > PriceMax {
		return false
	}
	if l.Estrato == nil || (*l.Estrato != 3 && *l.Estrato != 4) {
		return false
	}
	if l.Bedrooms == nil || *l.Bedrooms != RequiredBedrooms {
		return false
	}
	if l.Bathrooms == nil || *l.Bathrooms != RequiredBathrooms {
		return false
	}
	if l.AreaM2 == nil || *l.AreaM2 < MinAreaM2 {
		return false
	}

	var keywords []string
	switch l.PropertyType {
	case "apartamento":
		keywords = apartmentFeatureKeywords
	case "casa":
		keywords = houseFeatureKeywords
	default:
		return false
	}
	return detectFeature(l, keywords)
}

// detectFeature 两段式特征检测:
// 先在键值对中精确查找(键或值含关键字且不含否定词),
// 再退化到全文检索并检查否定上下文
func detectFeature(l *Listing, keywords []string) bool {
	check := func(entries map[string]string) bool {
		for key, value := range entries {
			keyNorm := NormalizeText(key)
			valueNorm := NormalizeText(value)
			if containsNegative(keyNorm) || containsNegative(valueNorm) {
				continue
			}
			for _, keyword := range keywords {
				if strings.Contains(keyNorm, keyword) || strings.Contains(valueNorm, keyword) {
					return true
				}
			}
		}
		return false
	}
	if check(l.Details) || check(l.Characteristics) {
		return true
	}

	combined := NormalizeText(l.combinedText())
	for _, keyword := range keywords {
		if strings.Contains(combined, keyword) && !hasNegativeContext(combined, keyword) {
			return true
		}
	}
	return false
}

// WriteFiltered 写出筛选结果CSV(覆盖)
func WriteFiltered(path string, listings []*Listing) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建筛选结果文件失败: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"url", "canonical_url", "title", "location", "price_cop",
		"bedrooms", "bathrooms", "area_m2", "estrato", "property_type",
		"source_file", "scraped_at",
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, l := range listings {
		record := []string{
			l.URL, l.CanonicalURL, l.Title, l.Location,
			intField(l.Price), intField(l.Bedrooms), intField(l.Bathrooms),
			floatField(l.AreaM2), intField(l.Estrato), l.PropertyType,
			l.SourceFile, l.ScrapedAt,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func intField(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func floatField(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// ReadPreviousURLs 读取上次筛选结果中的规范URL集合
// 文件不存在视为首次运行,返回空集合
func ReadPreviousURLs(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]bool), nil
		}
		return nil, fmt.Errorf("打开历史筛选结果失败: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("读取历史筛选结果失败: %w", err)
	}

	urls := make(map[string]bool)
	for i, record := range records {
		if i == 0 || len(record) < 2 {
			continue
		}
		u := record[1] // canonical_url
		if u == "" {
			u = record[0]
		}
		if u != "" {
			urls[CanonicalizeURL(u)] = true
		}
	}
	return urls, nil
}

// Run 完整的筛选与通知流程
// 先写出全部命中结果,再仅对相比上次新增的URL发送通知
func Run(dataDir, outputPath string, email EmailSettings) error {
	f := NewListingFilter()
	if err := f.ProcessDirectory(dataDir); err != nil {
		return err
	}

	previousURLs, err := ReadPreviousURLs(outputPath)
	if err != nil {
		return err
	}

	filtered := f.Filtered()
	var newListings []*Listing
	for _, l := range filtered {
		key := l.CanonicalURL
		if key == "" {
			key = l.URL
		}
		if !previousURLs[key] {
			newListings = append(newListings, l)
		}
	}

	if err := WriteFiltered(outputPath, filtered); err != nil {
		return err
	}
	utils.Infof("✅ 筛选完成: 命中%d条, 新增%d条, 结果已写入 %s", len(filtered), len(newListings), outputPath)

	if err := SendNotification(email, newListings); err != nil {
		// 通知失败不影响已写出的筛选结果
		utils.Errorf("发送邮件通知失败: %v", err)
	}
	return nil
}
