package semanticscholar

// SearchResponse is the Graph API paper search response.
type SearchResponse struct {
	Total int     `json:"total"`
	Data  []Paper `json:"data"`
}

// Paper is one Semantic Scholar paper record.
type Paper struct {
	PaperID       string `json:"paperId"`
	Title         string `json:"title"`
	Abstract      string `json:"abstract"`
	Year          int    `json:"year"`
	Venue         string `json:"venue"`
	CitationCount int    `json:"citationCount"`
	ExternalIDs   struct {
		DOI      string `json:"DOI"`
		PubMed   string `json:"PubMed"`
		PMCID    string `json:"PubMedCentral"`
		ArXiv    string `json:"ArXiv"`
	} `json:"externalIds"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	OpenAccessPdf *struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
	PublicationDate string `json:"publicationDate"`
}
