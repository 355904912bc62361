// Package crossref provides a client for the CrossRef REST API.
//
// CrossRef is the DOI registration agency for most scholarly publishers, so
// its metadata is the reference for DOIs, venues and license links.
//
// API Documentation: https://api.crossref.org/swagger-ui/index.html
package crossref

// WorksResponse is the envelope returned by /works.
type WorksResponse struct {
	Status      string       `json:"status"`
	MessageType string       `json:"message-type"`
	Message     WorksMessage `json:"message"`
}

// WorksMessage holds one page of works.
type WorksMessage struct {
	TotalResults int    `json:"total-results"`
	Items        []Item `json:"items"`
}

// Item is a single CrossRef work.
type Item struct {
	DOI                 string    `json:"DOI"`
	URL                 string    `json:"URL"`
	Title               []string  `json:"title"`
	ContainerTitle      []string  `json:"container-title"`
	Author              []Author  `json:"author"`
	Abstract            string    `json:"abstract"` // JATS markup
	IsReferencedByCount *int      `json:"is-referenced-by-count"`
	Published           *DateInfo `json:"published"`
	Issued              *DateInfo `json:"issued"`
	Created             *DateInfo `json:"created"`
	License             []License `json:"license"`
}

// Author is a contributor on a work.
type Author struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"` // organizations
}

// DateInfo is CrossRef's partial-date representation.
type DateInfo struct {
	DateParts [][]int `json:"date-parts"` // [[2020, 5, 1]]; null parts decode as 0
	DateTime  string  `json:"date-time"`
}

// License links a work to its license terms.
type License struct {
	URL            string `json:"URL"`
	ContentVersion string `json:"content-version"`
}
