package arxiv

import "encoding/xml"

// Feed is the Atom feed returned by the arXiv export API.
type Feed struct {
	XMLName xml.Name `xml:"feed"`
	Entries []Entry  `xml:"entry"`
}

// Entry is one arXiv article in the feed.
type Entry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	DOI       string `xml:"doi"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []Link `xml:"link"`
	JournalRef string `xml:"journal_ref"`
}

// Link is one alternate or related link on an entry.
type Link struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}
