package pipeline

import (
	"regexp"
	"strings"
)

// FastPathClassifier spots queries that need no retrieval at all: arithmetic,
// stable trivia, translations, greetings, one-sentence creative prompts, and
// punctuation-only noise. It is deliberately conservative and purely lexical
// so a stale pattern can never route a real-time query away from its source;
// the exclusion list wins over every other rule.
type FastPathClassifier struct {
	trivia     []*regexp.Regexp
	exclusions []*regexp.Regexp
}

var fastPathTrivia = []string{
	`\bwho wrote\b`, `\bwho invented\b`, `\bwho is\b`, `\bwho was\b`,
	`\bcapital of\b`, `\bformula for\b`, `\bchemical formula\b`,
	`\bknown as the\b`, `\bplanet\b.*\bred planet\b`,
	`\bhow many days in\b`, `\bhow many\b.*\bleap year\b`,
	`\bwhat are the.*colors\b`, `\bwhat is the.*formula\b`,
	`\bhow do you say\b.*\bin (cantonese|mandarin|chinese)\b`,
	`\bwhat does.*mean in\b`, `\bwhat is.*in (cantonese|mandarin)\b`,
	`\bemergency (phone )?number\b`, `\bphone number for\b`,
	`\bhow many (hours|days|weeks|months|years)\b`,
	`\bwhat year (was|did)\b`, `\bwhen was.*built\b`, `\bwhen was.*opened\b`,

	`誰寫`, `誰發明`, `誰是`, `什麼是`,
	`首都`, `公式`, `化學式`,
	`被稱為`, `行星`, `紅色行星`,
	`多少天`, `閏年`, `幾天`, `幾個小時`,
	`怎麼說`, `廣東話`, `粵語`, `什麼意思`,
	`電話號碼`, `緊急電話`, `報警電話`,
	`幾個`, `多少個`, `哪幾部`, `哪幾個`,
	`什麼時候.*建成`, `什麼時候.*開通`,
}

var fastPathExclusions = []string{
	`\b(stock|price|share|market|trading)\b`,
	`\b(now|today|tonight|tomorrow|yesterday|this (week|month|year))\b`,
	`\b(current|latest|recent|upcoming)\b`,
	`\b(weather|forecast|temperature|rain|snow|wind|humidity)\b`,
	`\b(UV|AQI|air quality|pollution)\b`,
	`\b(sunrise|sunset|typhoon|hurricane|storm)\b`,
	`\b(public holiday|holiday.*this year)\b`,
	`\b(route|driving|distance|directions|travel time)\b`,
	`\bwill it (rain|snow)\b`, `\bis it (raining|snowing)\b`,
	`\bcompare.*stock\b`, `\bperformance.*stock\b`,

	`股票|股價|市場|交易`,
	`現在|今天|今晚|明天|昨天|今年|本年`,
	`當前|最新|即時|實時|目前`,
	`天氣|氣溫|下雨|颳風|濕度|預報`,
	`紫外線|空氣質量|污染`,
	`日出|日落|颱風|熱帶氣旋|警告信號`,
	`公眾假期|假期.*今年`,
	`路線|駕駛|距離|行車時間`,
	`會.*下雨`, `會.*下雪`,
	`比較.*股票`, `表現.*股票`,
}

var (
	arithmeticWords   = regexp.MustCompile(`(?i)\d+\s*(multiplied by|times|divided by|plus|minus|subtract|add)\s*\d+`)
	arithmeticSymbols = regexp.MustCompile(`[+\-*/^%×÷]`)
	arithmeticNoise   = regexp.MustCompile(`[\d\s+\-*/^%×÷().,]`)
	hasDigit          = regexp.MustCompile(`\d`)
	whatIsEN          = regexp.MustCompile(`\bwhat is\b`)

	greetingEN = regexp.MustCompile(`(?i)^(hi|hiya|hello|hey|yo|good (morning|afternoon|evening|night)|how are you|how's it going|thanks|thank you|thanks a lot|bye|goodbye|see you)[\s!.,?~]*$`)
	greetingZH = regexp.MustCompile(`^(你好|妳好|您好|哈囉|早晨|早安|午安|晚安|多謝|謝謝|唔該|再見|拜拜)[\s!！.。,，?？~]*$`)
	creativeEN = regexp.MustCompile(`(?i)^(please\s+)?(write|compose|make up|tell)( me)?( us)? (a|an|some) (haiku|poem|poems|story|stories|joke|jokes|limerick|song|lyrics|riddle|rhyme|pun|tagline|slogan)\b`)
	creativeZH = regexp.MustCompile(`^(請|幫我|同我)?(寫|作|講|編)一?(首|個|段)?(詩|歌|笑話|故事|謎語|對聯)`)

	// noisePattern matches degenerate input: punctuation, symbols, and
	// whitespace with no letters or digits anywhere.
	noisePattern       = regexp.MustCompile(`^[\p{P}\p{S}\s]+$`)
	sentenceTerminator = regexp.MustCompile(`[.!?。！？]`)
)

// NewFastPathClassifier compiles the built-in pattern tables.
func NewFastPathClassifier() *FastPathClassifier {
	c := &FastPathClassifier{}
	for _, p := range fastPathTrivia {
		c.trivia = append(c.trivia, regexp.MustCompile(`(?i)`+p))
	}
	for _, p := range fastPathExclusions {
		c.exclusions = append(c.exclusions, regexp.MustCompile(`(?i)`+p))
	}
	return c
}

// Classify reports whether text can bypass planning and retrieval entirely.
// Any exclusion match (real-time, priced, or location-current topics) forces
// the full pipeline regardless of what the other rules say.
func (c *FastPathClassifier) Classify(text string) bool {
	query := strings.TrimSpace(text)
	if query == "" {
		return false
	}

	for _, pattern := range c.exclusions {
		if pattern.MatchString(query) {
			return false
		}
	}

	if noisePattern.MatchString(query) {
		return true
	}
	if greetingEN.MatchString(query) || greetingZH.MatchString(query) {
		return true
	}

	if isArithmetic(query) {
		return true
	}

	for _, pattern := range c.trivia {
		if pattern.MatchString(query) {
			return true
		}
	}

	if isCreativePrompt(query) {
		return true
	}

	lower := strings.ToLower(query)
	if whatIsEN.MatchString(lower) || strings.Contains(query, "什麼是") {
		for _, term := range []string{"price", "cost", "weather", "temperature", "forecast"} {
			if strings.Contains(lower, term) {
				return false
			}
		}
		return true
	}

	return false
}

// isCreativePrompt accepts single-sentence writing requests. Multi-sentence
// prompts fall through to planning: they tend to carry factual constraints
// that deserve evidence.
func isCreativePrompt(query string) bool {
	if !creativeEN.MatchString(query) && !creativeZH.MatchString(query) {
		return false
	}
	switch len(sentenceTerminator.FindAllString(query, -1)) {
	case 0:
		return true
	case 1:
		return sentenceTerminator.MatchString(lastRune(query))
	default:
		return false
	}
}

func lastRune(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return ""
	}
	return string(runes[len(runes)-1])
}

func isArithmetic(query string) bool {
	for _, op := range []string{"加", "減", "乘", "除", "等於"} {
		if strings.Contains(query, op) && hasDigit.MatchString(query) {
			return true
		}
	}

	if arithmeticWords.MatchString(query) {
		return true
	}

	if hasDigit.MatchString(query) && arithmeticSymbols.MatchString(query) {
		leftover := arithmeticNoise.ReplaceAllString(query, "")
		if len(leftover) < 5 {
			return true
		}
	}

	return false
}
