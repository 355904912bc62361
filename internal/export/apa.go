package export

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/helixir/research-finder/internal/domain"
)

// maxListedAuthors is the APA limit before the list is elided.
const maxListedAuthors = 20

var (
	venuePagesRegex  = regexp.MustCompile(`\b(e?\d+\s*[-–]\s*\d+)\b`)
	venueIssueRegex  = regexp.MustCompile(`\((\d+)\)`)
	venueVolumeRegex = regexp.MustCompile(`\b(\d+)\b`)
)

// APA7 formats a record as an APA 7th edition journal reference. Italics
// are marked with asterisks.
func APA7(r domain.ArticleRecord) string {
	parts := []string{apaAuthors(r.Authors)}

	if r.Year != 0 {
		parts = append(parts, "("+strconv.Itoa(r.Year)+").")
	} else {
		parts = append(parts, "(n.d.).")
	}

	title := sentenceCase(r.Title)
	if title != "" && !strings.HasSuffix(title, ".") && !strings.HasSuffix(title, "?") && !strings.HasSuffix(title, "!") {
		title += "."
	}
	if title != "" {
		parts = append(parts, title)
	}

	if src := apaSource(r.Venue); src != "" {
		parts = append(parts, src)
	}
	if doi := r.NormalizedDOI(); doi != "" {
		parts = append(parts, "https://doi.org/"+doi)
	} else if r.URL != "" {
		parts = append(parts, r.URL)
	}
	return strings.Join(parts, " ")
}

func apaAuthors(authors []string) string {
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		if n := apaName(a); n != "" {
			names = append(names, n)
		}
	}
	switch {
	case len(names) == 0:
		return "n.a."
	case len(names) == 1:
		return names[0]
	case len(names) <= maxListedAuthors:
		return strings.Join(names[:len(names)-1], ", ") + ", & " + names[len(names)-1]
	default:
		return strings.Join(names[:maxListedAuthors-1], ", ") + ", ... " + names[len(names)-1]
	}
}

// apaName turns "Jane Q. Doe" or "Doe, Jane Q." into "Doe, J. Q.".
func apaName(name string) string {
	name = strings.TrimSpace(name)
	var last string
	var given []string
	if i := strings.Index(name, ","); i >= 0 {
		last = strings.TrimSpace(name[:i])
		given = strings.Fields(name[i+1:])
	} else {
		fields := strings.Fields(name)
		if len(fields) == 0 {
			return ""
		}
		last = fields[len(fields)-1]
		given = fields[:len(fields)-1]
	}
	if last == "" {
		return ""
	}
	if len(given) == 0 {
		return last
	}

	initials := make([]string, 0, len(given))
	for _, g := range given {
		for _, piece := range strings.Split(g, "-") {
			r, _ := utf8.DecodeRuneInString(strings.TrimLeft(piece, "."))
			if r != utf8.RuneError && unicode.IsLetter(r) {
				initials = append(initials, string(unicode.ToUpper(r))+".")
			}
		}
	}
	if len(initials) == 0 {
		return last
	}
	return last + ", " + strings.Join(initials, " ")
}

// sentenceCase capitalizes the first letter of the title and of each
// subtitle. Other letters are left alone so acronyms survive.
func sentenceCase(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}
	runes := []rune(title)
	capitalize := true
	for i, r := range runes {
		switch {
		case r == ':' || r == '?' || r == '!':
			capitalize = true
		case capitalize && unicode.IsLetter(r):
			runes[i] = unicode.ToUpper(r)
			capitalize = false
		case capitalize && unicode.IsDigit(r):
			capitalize = false
		}
	}
	return string(runes)
}

// apaSource renders "Journal, 15(2), 123-145" as "*Journal*, *15*(2), 123-145."
func apaSource(venue string) string {
	v := strings.TrimSpace(venue)
	if v == "" {
		return ""
	}

	var volume, issue, pages string
	if m := venuePagesRegex.FindStringSubmatchIndex(v); m != nil {
		pages = strings.Join(strings.Fields(v[m[2]:m[3]]), "")
		v = v[:m[0]] + v[m[1]:]
	}
	if m := venueIssueRegex.FindStringSubmatchIndex(v); m != nil {
		issue = v[m[2]:m[3]]
		v = v[:m[0]] + v[m[1]:]
	}
	if m := venueVolumeRegex.FindStringSubmatchIndex(v); m != nil && (issue != "" || pages != "") {
		volume = v[m[2]:m[3]]
		v = v[:m[0]] + v[m[1]:]
	}
	journal := strings.Trim(strings.Join(strings.Fields(v), " "), " ,:;")

	var out []string
	if journal != "" {
		out = append(out, "*"+journal+"*")
	}
	if volume != "" {
		vol := "*" + volume + "*"
		if issue != "" {
			vol += "(" + issue + ")"
		}
		out = append(out, vol)
	} else if issue != "" {
		out = append(out, "("+issue+")")
	}
	if pages != "" {
		out = append(out, pages)
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, ", ") + "."
}
