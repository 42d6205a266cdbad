package yad2

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"yad2-pipeline/config"
	"yad2-pipeline/models"
	"yad2-pipeline/utils"
)

// Scraper walks the yad2 "for sale" result pages and collects raw cards.
type Scraper struct {
	cfg     *config.Config
	logger  *utils.Logger
	seenURL *utils.URLSet
	retry   *utils.RetryConfig

	mu    sync.Mutex
	pages map[int][]models.RawRecord
}

// New creates a ready-to-use yad2 Scraper.
func New(cfg *config.Config, logger *utils.Logger) *Scraper {
	return &Scraper{
		cfg:     cfg,
		logger:  logger,
		seenURL: utils.NewURLSet(),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		pages: make(map[int][]models.RawRecord),
	}
}

// PageURL returns the URL of result page n (1-based).
func PageURL(base string, n int) string {
	if n <= 1 {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spage=%d", base, sep, n)
}

// Scrape fetches every configured page and returns the cards in page order.
// A failed page is logged and skipped; an empty overall result is an error.
func (s *Scraper) Scrape(ctx context.Context) ([]models.RawRecord, error) {
	s.logger.Info("[yad2] Starting scrape — %d pages from %s", s.cfg.PagesToScrape, s.cfg.BaseURL)

	chromeBin := s.cfg.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	s.logger.Info("[yad2] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "he-IL"),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	// Start the browser once so page tabs share it.
	if err := chromedp.Run(browserCtx); err != nil {
		return nil, fmt.Errorf("yad2: start browser: %w", err)
	}

	pool := utils.NewWorkerPool(browserCtx, s.cfg.MaxConcurrency, s.cfg.RateLimitMs)
	for page := 1; page <= s.cfg.PagesToScrape; page++ {
		n := page
		pool.Submit(func(ctx context.Context) error {
			records, err := s.scrapePage(ctx, n)
			if err != nil {
				return fmt.Errorf("page %d: %w", n, err)
			}
			s.mu.Lock()
			s.pages[n] = records
			s.mu.Unlock()
			s.logger.Info("[yad2] Page %d — %d cards", n, len(records))
			return nil
		})
	}
	pageErr := pool.Wait()
	if pageErr != nil {
		s.logger.Error("[yad2] Some pages failed and were skipped: %v", pageErr)
	}

	var all []models.RawRecord
	for page := 1; page <= s.cfg.PagesToScrape; page++ {
		for _, rec := range s.pages[page] {
			if u := rec[models.ColURL]; u != "" && !s.seenURL.Add(u) {
				s.logger.Debug("[yad2] Card repeated on page %d: %s", page, u)
				continue
			}
			all = append(all, rec)
		}
	}

	if len(all) == 0 {
		if pageErr != nil {
			return nil, fmt.Errorf("yad2: no cards found on %d pages: %w", s.cfg.PagesToScrape, pageErr)
		}
		return nil, fmt.Errorf("yad2: no cards found on %d pages", s.cfg.PagesToScrape)
	}
	s.logger.Info("[yad2] Scrape complete — total raw cards: %d (%d distinct links)", len(all), s.seenURL.Size())
	return all, nil
}

func (s *Scraper) scrapePage(browserCtx context.Context, page int) ([]models.RawRecord, error) {
	pageURL := PageURL(s.cfg.BaseURL, page)
	var records []models.RawRecord

	err := s.retry.Do(browserCtx, fmt.Sprintf("scrape-page-%d", page), func() error {
		ctx, cancel := chromedp.NewContext(browserCtx)
		defer cancel()

		ctx, cancelTimeout := context.WithTimeout(ctx, time.Duration(s.cfg.PageTimeoutSecs)*time.Second)
		defer cancelTimeout()

		var html string
		err := chromedp.Run(ctx,
			chromedp.Navigate(pageURL),
			chromedp.WaitReady(cardSel, chromedp.ByQuery),
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(time.Second),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
		if err != nil {
			return fmt.Errorf("chromedp: %w", err)
		}

		records, err = ParseCards(strings.NewReader(html), pageURL)
		return err
	})
	return records, err
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
