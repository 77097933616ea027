package scraper

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"

	"github.com/playwright-community/playwright-go"

	"cardpulse_scraper/config"
	"cardpulse_scraper/models"
)

// BrowserSource renders the search page in a headless browser. Used as the
// fallback stage when the plain HTTP source is blocked by anti-bot
// protection on the result pages.
type BrowserSource struct {
	market *config.MarketConfig

	mu          sync.Mutex
	pw          *playwright.Playwright
	browser     playwright.Browser
	initialized bool
}

func NewBrowserSource(market *config.MarketConfig) *BrowserSource {
	return &BrowserSource{market: market}
}

func (s *BrowserSource) Fetch(ctx context.Context, query string, mode models.Mode) (string, error) {
	if err := s.ensureBrowser(); err != nil {
		return "", err
	}

	target, err := searchURL(s.market, query, mode)
	if err != nil {
		return "", err
	}

	page, err := s.browser.NewPage(playwright.BrowserNewPageOptions{
		UserAgent: playwright.String(defaultUserAgents[rand.Intn(len(defaultUserAgents))]),
	})
	if err != nil {
		return "", fmt.Errorf("browser page: %w", err)
	}
	defer page.Close()

	log.Printf("Browser: navigating to %s", target)
	if _, err := page.Goto(target, playwright.PageGotoOptions{
		Timeout:   playwright.Float(30000),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return "", fmt.Errorf("browser goto: %w", err)
	}

	// Let lazy-loaded cards settle before snapshotting the DOM.
	page.WaitForTimeout(float64(1000 + rand.Intn(1500)))
	s.simulateScroll(page)

	content, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("browser content: %w", err)
	}
	return content, nil
}

func (s *BrowserSource) simulateScroll(page playwright.Page) {
	scrollAmount := 200 + rand.Intn(400)
	page.Evaluate(fmt.Sprintf(`window.scrollBy(0, %d)`, scrollAmount))
	page.WaitForTimeout(float64(200 + rand.Intn(300)))
}

func (s *BrowserSource) ensureBrowser() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	var err error
	s.pw, err = playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	s.browser, err = s.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		s.pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	s.initialized = true
	return nil
}

func (s *BrowserSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		s.browser.Close()
		s.browser = nil
	}
	if s.pw != nil {
		s.pw.Stop()
		s.pw = nil
	}
	s.initialized = false
}
