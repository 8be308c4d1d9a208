package unpaywall

// Response is the Unpaywall /v2/{doi} response.
type Response struct {
	DOI          string      `json:"doi"`
	Title        string      `json:"title"`
	Year         int         `json:"year"`
	JournalName  string      `json:"journal_name"`
	IsOA         bool        `json:"is_oa"`
	BestOALocation *OALocation `json:"best_oa_location"`
	OALocations  []OALocation `json:"oa_locations"`
	ZAuthors     []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
	} `json:"z_authors"`
}

// OALocation is one open-access copy of a work.
type OALocation struct {
	URL            string `json:"url"`
	URLForPDF      string `json:"url_for_pdf"`
	URLForLanding  string `json:"url_for_landing_page"`
	HostType       string `json:"host_type"`
	Version        string `json:"version"`
	License        string `json:"license"`
}
