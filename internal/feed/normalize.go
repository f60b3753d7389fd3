package feed

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"feedmill/internal/jobs"
)

// extractor resolves one candidate value for a field from an item node.
// Extractors run in priority order; the first non-empty result wins.
type extractor func(item *node) string

// childText returns an extractor that reads the trimmed text of the first
// child with the given name.
func childText(name string) extractor {
	return func(item *node) string {
		return item.child(name).trimmedText()
	}
}

// linkHref reads the href attribute of the first link carrying one, the
// entry-dialect shape for links.
func linkHref(item *node) string {
	for _, link := range item.childrenNamed("link") {
		if href := link.attr("href"); href != "" {
			return href
		}
	}
	return ""
}

// authorName reads the nested name element inside author, the entry-dialect
// shape for authors.
func authorName(item *node) string {
	return item.child("author").child("name").trimmedText()
}

// joinedCategories collects every category element's text and joins them.
func joinedCategories(item *node) string {
	var parts []string
	for _, cat := range item.childrenNamed("category") {
		text := cat.trimmedText()
		if text == "" {
			text = cat.attr("term")
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, ", ")
}

var (
	descriptionChain = []extractor{childText("description"), childText("summary"), childText("content"), childText("content:encoded")}
	urlChain         = []extractor{childText("link"), linkHref}
	idChain          = []extractor{childText("guid"), childText("id")}
	companyChain     = []extractor{childText("company"), childText("author"), authorName, childText("dc:creator")}
	locationChain    = []extractor{childText("location"), childText("geo:lat")}
	categoryChain    = []extractor{joinedCategories, childText("job_category")}
	jobTypeChain     = []extractor{childText("job_type"), childText("type")}
)

func resolve(item *node, chain []extractor) string {
	for _, extract := range chain {
		if value := extract(item); value != "" {
			return value
		}
	}
	return ""
}

// Normalize parses a raw feed payload into canonical records. Both the
// item-based and entry-based dialects are handled by the same walk. Items
// with an empty resolved title are dropped without being counted as
// failures, and a malformed item never fails the whole payload.
func Normalize(logger *slog.Logger, feedURL string, payload []byte) ([]jobs.Record, error) {
	root, err := parseDocument(payload)
	if err != nil {
		return nil, err
	}

	items := collectItems(root)
	if items == nil {
		return nil, errors.New("invalid feed format: no channel or feed element found")
	}

	records := make([]jobs.Record, 0, len(items))
	for _, item := range items {
		record, ok := normalizeItem(feedURL, item)
		if !ok {
			if logger != nil {
				logger.Debug("skipped feed item without title", "feed_url", feedURL)
			}
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// collectItems locates the item container for either dialect: rss > channel
// holding item elements, or a top-level feed holding entry elements. Returns
// nil when the document matches neither shape; an empty non-nil slice means
// a valid but empty feed.
func collectItems(root *node) []*node {
	container := root
	if root.name == "rss" {
		container = root.child("channel")
		if container == nil {
			return nil
		}
	} else if root.name != "feed" {
		return nil
	}

	items := container.childrenNamed("item")
	if len(items) == 0 {
		items = container.childrenNamed("entry")
	}
	if items == nil {
		items = []*node{}
	}
	return items
}

func normalizeItem(feedURL string, item *node) (jobs.Record, bool) {
	title := item.child("title").trimmedText()
	if title == "" {
		return jobs.Record{}, false
	}

	url := resolve(item, urlChain)
	externalID := resolve(item, idChain)
	if externalID == "" {
		externalID = url
	}
	if externalID == "" {
		return jobs.Record{}, false
	}

	return jobs.Record{
		FeedURL:     feedURL,
		ExternalID:  externalID,
		Title:       title,
		Description: resolve(item, descriptionChain),
		Company:     resolve(item, companyChain),
		Location:    resolve(item, locationChain),
		Category:    resolve(item, categoryChain),
		JobType:     resolve(item, jobTypeChain),
		URL:         url,
		RawData:     rawItemJSON(item),
	}, true
}

// rawItemJSON flattens an item's immediate fields into a JSON object so the
// source payload survives in the stored record for audit.
func rawItemJSON(item *node) string {
	fields := make(map[string]string, len(item.children))
	for _, child := range item.children {
		if text := child.trimmedText(); text != "" {
			fields[child.name] = text
		} else if href := child.attr("href"); href != "" {
			fields[child.name] = href
		}
	}
	encoded, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	return string(encoded)
}
