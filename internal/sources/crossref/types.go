package crossref

// WorkResponse is the Crossref /works/{doi} response.
type WorkResponse struct {
	Status  string `json:"status"`
	Message Work   `json:"message"`
}

// SearchResponse is the Crossref /works list response.
type SearchResponse struct {
	Status  string `json:"status"`
	Message struct {
		Items []Work `json:"items"`
	} `json:"message"`
}

// Work is one Crossref work record.
type Work struct {
	DOI   string   `json:"DOI"`
	Title []string `json:"title"`
	// Abstract is JATS-flavored XML when present.
	Abstract       string `json:"abstract"`
	ContainerTitle []string `json:"container-title"`
	IsReferencedBy int      `json:"is-referenced-by-count"`
	Author         []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
		ORCID  string `json:"ORCID"`
	} `json:"author"`
	Issued struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"issued"`
	Link []struct {
		URL         string `json:"URL"`
		ContentType string `json:"content-type"`
	} `json:"link"`
	URL string `json:"URL"`
}
