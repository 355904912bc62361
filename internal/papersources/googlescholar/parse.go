package googlescholar

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/helixir/research-finder/internal/domain"
)

// Result is one hit scraped from a results page.
type Result struct {
	ClusterID string
	Title     string
	URL       string
	Authors   []string
	Venue     string
	Year      int
	Snippet   string
	CitedBy   *int
}

// Page is a parsed results page.
type Page struct {
	Results []Result
}

var (
	errBlocked      = errors.New("google scholar blocked the request")
	errUnrecognized = errors.New("unrecognized results page")

	citedByRegex = regexp.MustCompile(`Cited by (\d+)`)
	doiRegex     = regexp.MustCompile(`(?i)doi\.org/(10\.\d{4,9}/[^\s?#&]+)`)

	// blockMarkers appear on the CAPTCHA and "unusual traffic" interstitials.
	blockMarkers = []string{
		"gs_captcha_ccl",
		"id=\"recaptcha\"",
		"g-recaptcha",
		"unusual traffic from your computer network",
		"detected unusual traffic",
		"/sorry/index",
	}

	// Result containers; the first is current markup, the rest are older layouts.
	resultsContainers = "#gs_res_ccl_mid, #gs_res_ccl, #gs_ccl_results"
)

// ParsePage extracts results from a Scholar results page. A CAPTCHA page
// reports domain.ErrRateLimited; a page without the results container is
// unrecognized and reported as such.
func ParsePage(body []byte) (*Page, error) {
	lower := bytes.ToLower(body)
	for _, marker := range blockMarkers {
		if bytes.Contains(lower, []byte(strings.ToLower(marker))) {
			return nil, fmt.Errorf("%w: %w", errBlocked, domain.ErrRateLimited)
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	container := doc.Find(resultsContainers).First()
	if container.Length() == 0 {
		return nil, errUnrecognized
	}

	page := &Page{}
	container.Find("div.gs_r").Each(func(_ int, s *goquery.Selection) {
		ri := s.Find("div.gs_ri")
		if ri.Length() == 0 {
			return
		}
		if r, ok := parseResult(s, ri); ok {
			page.Results = append(page.Results, r)
		}
	})
	return page, nil
}

func parseResult(s, ri *goquery.Selection) (Result, bool) {
	heading := ri.Find("h3.gs_rt").First()
	// [PDF], [HTML], [CITATION] and [BOOK] badges precede the title.
	heading.Find("span.gs_ctc, span.gs_ctu, span.gs_ctg2").Remove()
	title := strings.TrimSpace(heading.Text())
	if title == "" {
		return Result{}, false
	}

	r := Result{Title: title}
	r.ClusterID, _ = s.Attr("data-cid")
	if href, ok := heading.Find("a").First().Attr("href"); ok {
		r.URL = href
	}

	r.Authors, r.Venue, r.Year = parseByline(ri.Find("div.gs_a").First().Text())
	r.Snippet = strings.TrimSpace(ri.Find("div.gs_rs").First().Text())

	ri.Find("div.gs_fl a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		m := citedByRegex.FindStringSubmatch(a.Text())
		if m == nil {
			return true
		}
		if n, err := strconv.Atoi(m[1]); err == nil {
			r.CitedBy = &n
		}
		return false
	})
	return r, true
}

// parseByline splits "A Author, B Author - Venue, 2019 - publisher.com".
// Author lists and venues are truncated by Scholar with an ellipsis.
func parseByline(line string) (authors []string, venue string, year int) {
	line = strings.ReplaceAll(line, "\u00a0", " ")
	parts := strings.Split(line, " - ")
	if len(parts) == 0 {
		return nil, "", 0
	}

	for _, a := range strings.Split(parts[0], ",") {
		a = strings.TrimSpace(strings.Trim(strings.TrimSpace(a), "…"))
		if a != "" {
			authors = append(authors, a)
		}
	}

	if len(parts) < 2 {
		return authors, "", 0
	}
	middle := strings.TrimSpace(parts[1])
	year = domain.NormalizeYear(middle)
	if year != 0 {
		y := strconv.Itoa(year)
		if i := strings.LastIndex(middle, y); i >= 0 {
			middle = middle[:i]
		}
	}
	venue = strings.TrimSpace(strings.Trim(strings.TrimSpace(middle), ",…"))
	// A bare host name in the venue slot means Scholar had no venue.
	if venue != "" && !strings.Contains(venue, " ") && strings.Contains(venue, ".") {
		venue = ""
	}
	return authors, venue, year
}

// doiFromURL extracts a DOI from a doi.org link.
func doiFromURL(u string) string {
	m := doiRegex.FindStringSubmatch(u)
	if m == nil {
		return ""
	}
	return m[1]
}
