package europepmc

// SearchResponse is the Europe PMC REST search response.
type SearchResponse struct {
	HitCount   int `json:"hitCount"`
	ResultList struct {
		Result []Result `json:"result"`
	} `json:"resultList"`
}

// Result is one Europe PMC record.
type Result struct {
	ID                  string `json:"id"`
	Source              string `json:"source"`
	PMID                string `json:"pmid"`
	PMCID               string `json:"pmcid"`
	DOI                 string `json:"doi"`
	Title               string `json:"title"`
	AuthorString        string `json:"authorString"`
	JournalTitle        string `json:"journalTitle"`
	PubYear             string `json:"pubYear"`
	AbstractText        string `json:"abstractText"`
	CitedByCount        int    `json:"citedByCount"`
	InEPMC              string `json:"inEPMC"`
	IsOpenAccess        string `json:"isOpenAccess"`
	FirstPublicationDate string `json:"firstPublicationDate"`
	FullTextURLList     struct {
		FullTextURL []FullTextURL `json:"fullTextUrl"`
	} `json:"fullTextUrlList"`
}

// FullTextURL is one declared full-text location.
type FullTextURL struct {
	Availability  string `json:"availability"`
	DocumentStyle string `json:"documentStyle"`
	Site          string `json:"site"`
	URL           string `json:"url"`
}
