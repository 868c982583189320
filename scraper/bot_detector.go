package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// BotDetector recognises anti-bot walls and CAPTCHA pages, so a missing price
// can be reported as "blocked" instead of "layout changed".
type BotDetector struct {
	botPatterns     []*regexp.Regexp
	captchaPatterns []*regexp.Regexp
	blockPatterns   []*regexp.Regexp
}

func NewBotDetector() *BotDetector {
	return &BotDetector{
		botPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)access denied`),
			regexp.MustCompile(`(?i)bot detected`),
			regexp.MustCompile(`(?i)security check`),
			regexp.MustCompile(`(?i)checking your browser`),
			regexp.MustCompile(`(?i)too many requests`),
			regexp.MustCompile(`(?i)ddos protection`),
			regexp.MustCompile(`(?i)acesso negado`),
			regexp.MustCompile(`(?i)verifica(?:ç|c)ão de segurança`),
		},
		captchaPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)captcha`),
			regexp.MustCompile(`(?i)verify you are human`),
			regexp.MustCompile(`(?i)not a robot`),
			regexp.MustCompile(`(?i)não sou um robô`),
		},
		blockPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)403 forbidden`),
			regexp.MustCompile(`(?i)429 too many requests`),
			regexp.MustCompile(`(?i)503 service unavailable`),
		},
	}
}

// Inspect scores the visible text and title of a page. It returns whether
// the page looks like a bot wall and the patterns that matched.
func (bd *BotDetector) Inspect(content string) (bool, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return false, ""
	}
	title := doc.Find("title").First().Text()
	body := doc.Find("body").Text()
	text := strings.ToLower(strings.Join(strings.Fields(title+" "+body), " "))
	if text == "" {
		return false, ""
	}

	score := 0.0
	var reasons []string

	for _, p := range bd.botPatterns {
		if p.MatchString(text) {
			score += 0.3
			reasons = append(reasons, p.String())
		}
	}
	for _, p := range bd.captchaPatterns {
		if p.MatchString(text) {
			score += 0.5
			reasons = append(reasons, "captcha: "+p.String())
		}
	}
	for _, p := range bd.blockPatterns {
		if p.MatchString(text) {
			score += 0.4
			reasons = append(reasons, "http error: "+p.String())
		}
	}

	// Walls are short pages.
	if len(text) < 1000 && score > 0 {
		score += 0.2
	}

	return score > 0.3, strings.Join(reasons, "; ")
}
