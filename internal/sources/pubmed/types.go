// Package pubmed provides a client for the NCBI PubMed E-utilities API.
//
// The E-utilities API documentation is available at:
// https://www.ncbi.nlm.nih.gov/books/NBK25499/
package pubmed

import "encoding/xml"

// ESearchResult represents the response from the esearch.fcgi endpoint,
// which returns the PMIDs matching a search query.
type ESearchResult struct {
	XMLName xml.Name `xml:"eSearchResult"`
	Count   int      `xml:"Count"`
	IDList  struct {
		IDs []string `xml:"Id"`
	} `xml:"IdList"`
}

// PubmedArticleSet represents the response from the efetch.fcgi endpoint,
// which returns full article metadata for a list of PMIDs.
type PubmedArticleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []PubmedArticle `xml:"PubmedArticle"`
}

// PubmedArticle is a single article in the PubMed database.
type PubmedArticle struct {
	MedlineCitation struct {
		PMID    string  `xml:"PMID"`
		Article Article `xml:"Article"`
		KeywordList struct {
			Keywords []string `xml:"Keyword"`
		} `xml:"KeywordList"`
	} `xml:"MedlineCitation"`
	PubmedData struct {
		ArticleIDs []ArticleID `xml:"ArticleIdList>ArticleId"`
	} `xml:"PubmedData"`
}

// Article contains the core bibliographic information.
type Article struct {
	Title    string `xml:"ArticleTitle"`
	Abstract struct {
		Texts []string `xml:"AbstractText"`
	} `xml:"Abstract"`
	Journal struct {
		Title        string `xml:"Title"`
		JournalIssue struct {
			PubDate struct {
				Year  string `xml:"Year"`
				Month string `xml:"Month"`
				Day   string `xml:"Day"`
			} `xml:"PubDate"`
		} `xml:"JournalIssue"`
	} `xml:"Journal"`
	AuthorList struct {
		Authors []struct {
			LastName string `xml:"LastName"`
			ForeName string `xml:"ForeName"`
			Initials string `xml:"Initials"`
			Affiliations []struct {
				Affiliation string `xml:"Affiliation"`
			} `xml:"AffiliationInfo"`
		} `xml:"Author"`
	} `xml:"AuthorList"`
}

// ArticleID is one cross-reference identifier (doi, pmc, pubmed, ...).
type ArticleID struct {
	IDType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}
