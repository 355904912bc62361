package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/helixir/research-finder/internal/domain"
)

// columns is the fixed column order of the CSV and XLSX exports.
var columns = []string{
	"Title", "Authors", "Year", "Venue", "Sources", "Citation Count",
	"DOI", "License", "URL", "Abstract", "APA 7 Reference",
}

// Entry is the serialized form of a record in JSON and YAML exports.
type Entry struct {
	Title         string            `json:"title" yaml:"title"`
	Authors       []string          `json:"authors,omitempty" yaml:"authors,omitempty"`
	Year          int               `json:"year,omitempty" yaml:"year,omitempty"`
	Venue         string            `json:"venue,omitempty" yaml:"venue,omitempty"`
	Abstract      string            `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	CitationCount *int              `json:"citation_count,omitempty" yaml:"citation_count,omitempty"`
	DOI           string            `json:"doi,omitempty" yaml:"doi,omitempty"`
	URL           string            `json:"url,omitempty" yaml:"url,omitempty"`
	License       string            `json:"license,omitempty" yaml:"license,omitempty"`
	Sources       []string          `json:"sources" yaml:"sources"`
	RawIDs        map[string]string `json:"raw_ids,omitempty" yaml:"raw_ids,omitempty"`
	Reference     string            `json:"apa7_reference" yaml:"apa7_reference"`
}

// NewEntry converts a record.
func NewEntry(r domain.ArticleRecord) Entry {
	e := Entry{
		Title:         r.Title,
		Authors:       r.Authors,
		Year:          r.Year,
		Venue:         r.Venue,
		Abstract:      r.Abstract,
		CitationCount: r.CitationCount,
		DOI:           r.DOI,
		URL:           r.URL,
		License:       r.License,
		Sources:       sourceNames(r.Sources),
		Reference:     APA7(r),
	}
	if len(r.RawIDs) > 0 {
		e.RawIDs = make(map[string]string, len(r.RawIDs))
		for s, id := range r.RawIDs {
			e.RawIDs[string(s)] = id
		}
	}
	return e
}

func entries(records []domain.ArticleRecord) []Entry {
	out := make([]Entry, len(records))
	for i, r := range records {
		out[i] = NewEntry(r)
	}
	return out
}

func sourceNames(sources []domain.SourceType) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.DisplayName()
	}
	return out
}

// row renders a record in column order.
func row(r domain.ArticleRecord) []string {
	var year, cites string
	if r.Year != 0 {
		year = strconv.Itoa(r.Year)
	}
	if r.CitationCount != nil {
		cites = strconv.Itoa(*r.CitationCount)
	}
	return []string{
		r.Title,
		strings.Join(r.Authors, ", "),
		year,
		r.Venue,
		strings.Join(sourceNames(r.Sources), ", "),
		cites,
		r.DOI,
		r.License,
		r.URL,
		r.Abstract,
		APA7(r),
	}
}

func writeCSV(w io.Writer, records []domain.ArticleRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, records []domain.ArticleRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Results")
	if err != nil {
		return err
	}

	header := sheet.AddRow()
	for _, c := range columns {
		header.AddCell().SetString(c)
	}
	for _, r := range records {
		xr := sheet.AddRow()
		for i, v := range row(r) {
			cell := xr.AddCell()
			switch {
			case i == 2 && r.Year != 0:
				cell.SetInt(r.Year)
			case i == 5 && r.CitationCount != nil:
				cell.SetInt(*r.CitationCount)
			default:
				cell.SetString(v)
			}
		}
	}
	return f.Write(w)
}

func writeJSON(w io.Writer, records []domain.ArticleRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(entries(records))
}

func writeYAML(w io.Writer, records []domain.ArticleRecord) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(entries(records)); err != nil {
		return err
	}
	return enc.Close()
}
