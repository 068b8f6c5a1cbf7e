// Package directory maps telephony lines to client business records.
package directory

import "strings"

// FAQEntry is a single question/answer pair scraped from a client's website.
type FAQEntry struct {
	Question string `dynamodbav:"question" json:"question"`
	Answer   string `dynamodbav:"answer" json:"answer"`
}

// ScrapedData holds enrichment fields merged in by the FAQ scraper.
// Merges never clobber fields that already have a value.
type ScrapedData struct {
	Services    []string   `dynamodbav:"services,omitempty" json:"services,omitempty"`
	Hours       string     `dynamodbav:"hours,omitempty" json:"hours,omitempty"`
	Address     string     `dynamodbav:"address,omitempty" json:"address,omitempty"`
	FAQ         []FAQEntry `dynamodbav:"faq,omitempty" json:"faq,omitempty"`
	LastScraped string     `dynamodbav:"lastScraped,omitempty" json:"last_scraped,omitempty"`
}

// ClientRecord is a client business registered with the platform.
// PhoneLine is unique per client and is the lookup key for every webhook.
type ClientRecord struct {
	ClientID             string       `dynamodbav:"clientId" json:"client_id"`
	Name                 string       `dynamodbav:"name" json:"name"`
	PhoneLine            string       `dynamodbav:"phoneLine" json:"phone_line"`
	NotifyEmail          string       `dynamodbav:"notifyEmail,omitempty" json:"notify_email,omitempty"`
	BookingURL           string       `dynamodbav:"bookingUrl,omitempty" json:"booking_url,omitempty"`
	WebsiteURL           string       `dynamodbav:"websiteUrl,omitempty" json:"website_url,omitempty"`
	FollowUpDelayMinutes int          `dynamodbav:"followUpDelayMinutes" json:"follow_up_delay_minutes"`
	ScrapedData          *ScrapedData `dynamodbav:"scrapedData,omitempty" json:"scraped_data,omitempty"`
	CreatedAt            string       `dynamodbav:"createdAt" json:"created_at"`
	UpdatedAt            string       `dynamodbav:"updatedAt" json:"updated_at"`
}

// ServicesText flattens the scraped services list for prompt context.
func (c *ClientRecord) ServicesText() string {
	if c == nil || c.ScrapedData == nil {
		return ""
	}
	return strings.Join(c.ScrapedData.Services, ", ")
}

// MergeScraped folds freshly scraped fields into the record without
// overwriting values that already exist. The FAQ list and the last-scraped
// timestamp are always replaced; they belong to the scraper.
func (c *ClientRecord) MergeScraped(data ScrapedData) {
	if c.ScrapedData == nil {
		c.ScrapedData = &ScrapedData{}
	}
	if len(data.Services) > 0 && len(c.ScrapedData.Services) == 0 {
		c.ScrapedData.Services = data.Services
	}
	if data.Hours != "" && c.ScrapedData.Hours == "" {
		c.ScrapedData.Hours = data.Hours
	}
	if data.Address != "" && c.ScrapedData.Address == "" {
		c.ScrapedData.Address = data.Address
	}
	if len(data.FAQ) > 0 {
		c.ScrapedData.FAQ = data.FAQ
	}
	if data.LastScraped != "" {
		c.ScrapedData.LastScraped = data.LastScraped
	}
}
