package config

import (
	"strings"

	"github.com/sweetpotato0/queryweave/evidence"
)

// RoutingPolicy is the explicit, versioned keyword table the planner consults
// when normalizing LLM-produced plans. Keeping the policy in one table (rather
// than scattered conditionals) makes routing behaviour testable and
// overridable per deployment.
type RoutingPolicy struct {
	// Version identifies the policy revision in logs and cache keys.
	Version string

	// DomainKeywords force-route a sub-query to a domain adapter when its text
	// matches and that adapter is available. Checked in evidence.Known order.
	DomainKeywords map[evidence.SourceKind][]string

	// WebContextTerms mark queries that need open-web context in addition to
	// domain data: safety or qualitative judgments, comparisons, current
	// events. A match adds a parallel web sub-query; domain data and web
	// context are complementary, not substitutable.
	WebContextTerms []string
}

// DefaultRoutingPolicy returns the shipped bilingual routing table.
func DefaultRoutingPolicy() RoutingPolicy {
	return RoutingPolicy{
		Version: "2026-06",
		DomainKeywords: map[evidence.SourceKind][]string{
			evidence.SourceWeather: {
				"weather", "forecast", "temperature", "rain", "snow", "wind",
				"humidity", "uv", "aqi", "air quality", "typhoon", "sunrise", "sunset",
				"天氣", "天气", "氣溫", "气温", "下雨", "濕度", "湿度", "預報", "预报",
				"颱風", "台风", "空氣質量", "空气质量", "紫外線", "紫外线",
			},
			evidence.SourceFinance: {
				"stock", "stock price", "share price", "ticker", "exchange rate",
				"forex", "market cap", "index level", "nasdaq", "hang seng",
				"股票", "股價", "股价", "匯率", "汇率", "恒生指數", "恒生指数",
			},
			evidence.SourceTransport: {
				"route", "directions", "travel time", "commute", "transit",
				"driving", "how do i get", "how to get to", "bus from", "train from",
				"路線", "路线", "交通", "行車時間", "行车时间", "怎麼去", "怎么去",
			},
			evidence.SourceTime: {
				"current time", "time in", "what time", "timezone", "time zone",
				"現在時間", "现在时间", "幾點", "几点", "時區", "时区",
			},
		},
		WebContextTerms: []string{
			"safe", "safety", "safe to", "advisable", "should i", "recommended",
			"compared to", "compare", "versus", " vs ", "last week", "last month",
			"last year", "news", "latest", "recent events", "reviews", "rating",
			"安全", "是否適合", "是否适合", "建議", "建议", "比較", "比较",
			"上週", "上周", "新聞", "新闻", "評價", "评价", "評分", "评分",
		},
	}
}

// MatchDomain reports the first domain adapter whose keyword set matches the
// query text, in evidence.Known order for determinism.
func (p RoutingPolicy) MatchDomain(text string) (evidence.SourceKind, bool) {
	lower := strings.ToLower(text)
	for _, kind := range evidence.Known() {
		keywords, ok := p.DomainKeywords[kind]
		if !ok {
			continue
		}
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return kind, true
			}
		}
	}
	return "", false
}

// NeedsWebContext reports whether the query also requires open-web context
// that a domain adapter cannot supply.
func (p RoutingPolicy) NeedsWebContext(text string) bool {
	lower := strings.ToLower(text)
	for _, term := range p.WebContextTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
