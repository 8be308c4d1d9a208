package openalex

// SearchResponse is the OpenAlex /works list response.
type SearchResponse struct {
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
	Results []Work `json:"results"`
}

// Work is one OpenAlex work record.
type Work struct {
	ID              string `json:"id"`
	DOI             string `json:"doi"`
	Title           string `json:"title"`
	DisplayName     string `json:"display_name"`
	PublicationDate string `json:"publication_date"`
	PublicationYear int    `json:"publication_year"`
	Type            string `json:"type"`
	CitedByCount    int    `json:"cited_by_count"`

	IDs struct {
		DOI      string `json:"doi"`
		PMID     string `json:"pmid"`
		PMCID    string `json:"pmcid"`
		OpenAlex string `json:"openalex"`
	} `json:"ids"`

	Authorships []struct {
		Author struct {
			DisplayName string `json:"display_name"`
			Orcid       string `json:"orcid"`
		} `json:"author"`
		Institutions []struct {
			DisplayName string `json:"display_name"`
		} `json:"institutions"`
	} `json:"authorships"`

	PrimaryLocation *WorkLocation  `json:"primary_location"`
	Locations       []WorkLocation `json:"locations"`

	OpenAccess *struct {
		IsOA  bool   `json:"is_oa"`
		OAURL string `json:"oa_url"`
	} `json:"open_access"`

	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

// WorkLocation is one hosted version of a work.
type WorkLocation struct {
	PDFURL      string `json:"pdf_url"`
	LandingPage string `json:"landing_page_url"`
	License     string `json:"license"`
	Version     string `json:"version"`
	Source      *struct {
		DisplayName string `json:"display_name"`
	} `json:"source"`
}
