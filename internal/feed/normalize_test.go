package feed

import (
	"strings"
	"testing"
)

const feedURL = "https://jobs.example.com/feed"

func TestNormalizeItemDialect(t *testing.T) {
	payload := []byte(`<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Example Jobs</title>
    <item>
      <title> Software Engineer </title>
      <guid>job-1</guid>
      <link>https://example.com/job/1</link>
      <author>Tech Co</author>
      <description>Build things.</description>
      <location>Remote</location>
      <category>Engineering</category>
      <job_type>full-time</job_type>
    </item>
  </channel>
</rss>`)

	records, err := Normalize(nil, feedURL, payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	record := records[0]
	if got := record.Identity(); got != feedURL+"::job-1" {
		t.Errorf("identity = %q, want %q", got, feedURL+"::job-1")
	}
	if record.Title != "Software Engineer" {
		t.Errorf("title = %q", record.Title)
	}
	if record.Company != "Tech Co" {
		t.Errorf("company = %q", record.Company)
	}
	if record.URL != "https://example.com/job/1" {
		t.Errorf("url = %q", record.URL)
	}
	if record.Description != "Build things." {
		t.Errorf("description = %q", record.Description)
	}
	if record.Location != "Remote" {
		t.Errorf("location = %q", record.Location)
	}
	if record.Category != "Engineering" {
		t.Errorf("category = %q", record.Category)
	}
	if record.JobType != "full-time" {
		t.Errorf("job type = %q", record.JobType)
	}
	if record.RawData == "" {
		t.Error("raw data not captured")
	}
}

func TestNormalizeEntryDialect(t *testing.T) {
	payload := []byte(`<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Example Jobs</title>
  <entry>
    <title>Data Analyst</title>
    <id>urn:job:42</id>
    <link href="https://example.com/job/42"/>
    <summary>Analyze data.</summary>
    <author><name>Data Corp</name></author>
  </entry>
</feed>`)

	records, err := Normalize(nil, feedURL, payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	record := records[0]
	if record.ExternalID != "urn:job:42" {
		t.Errorf("external id = %q", record.ExternalID)
	}
	if record.URL != "https://example.com/job/42" {
		t.Errorf("url = %q", record.URL)
	}
	if record.Description != "Analyze data." {
		t.Errorf("description = %q", record.Description)
	}
	if record.Company != "Data Corp" {
		t.Errorf("company = %q", record.Company)
	}
}

func TestNormalizeDropsEmptyTitle(t *testing.T) {
	payload := []byte(`<rss><channel>
    <item><title></title><guid>no-title</guid></item>
    <item><title>Kept</title><guid>kept</guid></item>
  </channel></rss>`)

	records, err := Normalize(nil, feedURL, payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].ExternalID != "kept" {
		t.Errorf("external id = %q", records[0].ExternalID)
	}
}

func TestNormalizeIdentityFallsBackToURL(t *testing.T) {
	payload := []byte(`<rss><channel>
    <item><title>No GUID</title><link>https://example.com/job/9</link></item>
  </channel></rss>`)

	records, err := Normalize(nil, feedURL, payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].ExternalID != "https://example.com/job/9" {
		t.Errorf("external id = %q", records[0].ExternalID)
	}
}

func TestNormalizeJoinsCategories(t *testing.T) {
	payload := []byte(`<rss><channel>
    <item>
      <title>Multi</title>
      <guid>multi</guid>
      <category>Engineering</category>
      <category>Remote</category>
    </item>
  </channel></rss>`)

	records, err := Normalize(nil, feedURL, payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if records[0].Category != "Engineering, Remote" {
		t.Errorf("category = %q", records[0].Category)
	}
}

func TestNormalizeFallbackChains(t *testing.T) {
	payload := []byte(`<rss xmlns:dc="http://purl.org/dc/elements/1.1/"><channel>
    <item>
      <title>Fallbacks</title>
      <guid>fb</guid>
      <summary>From summary</summary>
      <dc:creator>Creator Co</dc:creator>
      <type>contract</type>
    </item>
  </channel></rss>`)

	records, err := Normalize(nil, feedURL, payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	record := records[0]
	if record.Description != "From summary" {
		t.Errorf("description = %q", record.Description)
	}
	if record.Company != "Creator Co" {
		t.Errorf("company = %q", record.Company)
	}
	if record.JobType != "contract" {
		t.Errorf("job type = %q", record.JobType)
	}
}

func TestNormalizeRejectsUnknownDocument(t *testing.T) {
	_, err := Normalize(nil, feedURL, []byte(`<html><body>not a feed</body></html>`))
	if err == nil {
		t.Fatal("expected error for non-feed document")
	}
	if !strings.Contains(err.Error(), "no channel or feed element") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNormalizeEmptyFeed(t *testing.T) {
	records, err := Normalize(nil, feedURL, []byte(`<rss><channel><title>Empty</title></channel></rss>`))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}
