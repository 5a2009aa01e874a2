package models

import "encoding/json"

// SourceName identifies an external record source
type SourceName string

const (
	SourceCRM       SourceName = "crm"
	SourceMarketing SourceName = "marketing"
)

// RecordType returns the persistence job type fed by this source
func (s SourceName) RecordType() RecordType {
	if s == SourceMarketing {
		return RecordTypeCampaign
	}
	return RecordTypeCustomer
}

// RecordsKey returns the JSON key holding the record array in the source payload
func (s SourceName) RecordsKey() string {
	if s == SourceMarketing {
		return "campaigns"
	}
	return "customers"
}

// PageRequest describes one page to fetch from an external source
type PageRequest struct {
	Offset int
	Limit  int
	APIKey string
}

// FetchPage is one decoded page from an external source.
// Raw holds the untouched record payloads in source order; exactly one of
// Customers or Campaigns is populated, depending on Source.
type FetchPage struct {
	Source    SourceName
	Offset    int
	Limit     int
	Total     int
	Raw       []json.RawMessage
	Customers []*Customer
	Campaigns []*Campaign
}

// Len returns the number of records on the page
func (p *FetchPage) Len() int {
	return len(p.Raw)
}
