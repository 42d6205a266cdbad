package yad2

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"yad2-pipeline/models"
)

// Feed card selectors. yad2 hashes its class names per build, so these are
// the first thing to update when a scrape suddenly returns zero cards.
const (
	cardSel      = ".item-layout_itemContent__qT_A8"
	priceSel     = `[data-testid="price"]`
	titleSel     = ".item-data-content_heading__tphH4"
	infoLineSel  = ".item-data-content_itemInfoLine__AeoPP"
	firstInfoSel = ".item-data-content_itemInfoLine__AeoPP.item-data-content_first__oi7xM"
	tagSel       = ".item-tags_itemTagsBox__Uz23E span"
	imageSel     = `[data-testid="image"]`
)

// ParseCards extracts one raw record per feed card. Missing parts of a card
// are left blank; the cleaning stage deals with them.
func ParseCards(r io.Reader, pageURL string) ([]models.RawRecord, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("yad2: parse html: %w", err)
	}

	base, _ := url.Parse(pageURL)

	var records []models.RawRecord
	doc.Find(cardSel).Each(func(_ int, card *goquery.Selection) {
		rec := models.RawRecord{
			models.ColTitle:    text(card.Find(titleSel).First()),
			models.ColPrice:    text(card.Find(priceSel).First()),
			models.ColLocation: text(card.Find(firstInfoSel).First()),
		}

		// The second info line holds "4 חדרים • קומה 3 • 95 מ״ר".
		if lines := card.Find(infoLineSel); lines.Length() > 1 {
			rec[models.ColDetails] = text(lines.Eq(1))
		}

		var tags []string
		card.Find(tagSel).Each(func(_ int, t *goquery.Selection) {
			if s := text(t); s != "" {
				tags = append(tags, s)
			}
		})
		rec[models.ColTags] = strings.Join(tags, ", ")

		rec[models.ColImageURL], _ = card.Find(imageSel).First().Attr("src")
		rec[models.ColURL] = cardLink(card, base)

		records = append(records, rec)
	})
	return records, nil
}

// cardLink finds the card's anchor, inside it or as an ancestor, and
// resolves it against the page URL.
func cardLink(card *goquery.Selection, base *url.URL) string {
	href, ok := card.Find("a[href]").First().Attr("href")
	if !ok {
		href, ok = card.Closest("a[href]").Attr("href")
	}
	if !ok || href == "" {
		return ""
	}
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
