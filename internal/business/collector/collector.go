package collector

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/weiwei-tsao/grocery-price-compare/internal/platform/markets"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/util"
)

const (
	availableText   = "Disponível"
	unavailableText = "Indisponível"
)

// CollectionContext is stamped on every record read from a page.
type CollectionContext struct {
	SearchQuery string
	CEP         string
	CollectedAt time.Time
}

// Page is the result of reading one saved search results page.
type Page struct {
	Records []model.RawRecord
	Skipped int
}

// ParseProductCards extracts raw records from a search results page using the market's selectors.
// Cards without a title or price are skipped and counted.
func ParseProductCards(r io.Reader, market markets.Market, cc CollectionContext) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}
	if cc.CollectedAt.IsZero() {
		cc.CollectedAt = time.Now().UTC()
	}

	var page Page
	sel := market.Selectors
	doc.Find(sel.ProductContainer).Each(func(_ int, card *goquery.Selection) {
		rec := model.RawRecord{
			MarketID:        market.ID,
			Title:           cardTitle(card, sel),
			PriceRaw:        cardPrice(card, sel),
			UnitPriceRaw:    cardUnitPrice(card, sel),
			URL:             resolveURL(market.BaseURL, cardHref(card, sel)),
			ImageURL:        resolveURL(market.BaseURL, cardImage(card, sel)),
			AvailabilityRaw: cardAvailability(card, sel),
			SearchQuery:     cc.SearchQuery,
			CEP:             cc.CEP,
			CollectedAt:     cc.CollectedAt,
		}
		if err := rec.Clean().Validate(); err != nil {
			page.Skipped++
			return
		}
		page.Records = append(page.Records, rec.Clean())
	})
	return page, nil
}

func text(s *goquery.Selection) string {
	return util.CleanText(s.Text())
}

func cardTitle(card *goquery.Selection, sel markets.Selectors) string {
	if sel.Title != "" {
		if t := text(card.Find(sel.Title).First()); t != "" {
			return t
		}
	}
	alt, _ := card.Find("img").First().Attr("alt")
	return util.CleanText(alt)
}

// cardPrice reads the price element. Sites that render cents in a separate element are joined
// back as "<integer>,<cents>".
func cardPrice(card *goquery.Selection, sel markets.Selectors) string {
	if sel.Price != "" {
		price := text(card.Find(sel.Price).First())
		if price != "" && sel.PriceCents != "" {
			cents := strings.Trim(text(card.Find(sel.PriceCents).First()), ", ")
			if cents != "" {
				price = strings.TrimRight(price, ", ") + "," + cents
			}
		}
		if price != "" {
			return price
		}
	}

	var found string
	card.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := text(s)
		if strings.Contains(t, "R$") && strings.ContainsAny(t, "0123456789") {
			found = t
			return false
		}
		return true
	})
	return found
}

func cardUnitPrice(card *goquery.Selection, sel markets.Selectors) string {
	if sel.UnitPrice == "" {
		return ""
	}
	t := text(card.Find(sel.UnitPrice).First())
	if strings.Contains(t, "/") || strings.Contains(strings.ToLower(t), "por") {
		return t
	}
	return ""
}

func cardHref(card *goquery.Selection, sel markets.Selectors) string {
	if sel.Link == "" {
		href, _ := card.Attr("href")
		return strings.TrimSpace(href)
	}
	href, _ := card.Find(sel.Link).First().Attr("href")
	return strings.TrimSpace(href)
}

func cardImage(card *goquery.Selection, sel markets.Selectors) string {
	if sel.Image == "" {
		return ""
	}
	img := card.Find(sel.Image).First()
	if src, ok := img.Attr("src"); ok && !strings.HasPrefix(src, "data:") {
		return strings.TrimSpace(src)
	}
	src, _ := img.Attr("data-src")
	return strings.TrimSpace(src)
}

// cardAvailability treats a listed card as available unless the market has a buy button
// selector and the button is missing or disabled.
func cardAvailability(card *goquery.Selection, sel markets.Selectors) string {
	if sel.Availability == "" {
		return availableText
	}
	btn := card.Find(sel.Availability).First()
	if btn.Length() == 0 {
		return unavailableText
	}
	if _, disabled := btn.Attr("disabled"); disabled {
		return unavailableText
	}
	if t := text(btn); t != "" {
		return t
	}
	return availableText
}

func resolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if u.IsAbs() {
		return u.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return b.ResolveReference(u).String()
}

// maxLineSize bounds a single JSON Lines record.
const maxLineSize = 4 * 1024 * 1024

// LoadJSONL reads raw records from JSON Lines. Blank lines are ignored.
func LoadJSONL(r io.Reader) ([]model.RawRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var out []model.RawRecord
	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(strings.TrimSpace(string(b))) == 0 {
			continue
		}
		var rec model.RawRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read jsonl: %w", err)
	}
	return out, nil
}
