package view

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/chronicle-network/ledger-go/internal/store"
)

// FeedItem is one accession entry resolved to the record data the RSS view
// needs.
type FeedItem struct {
	Number    uint64
	Title     string
	Digest    string
	CreatedAt time.Time
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	GUID    string `xml:"guid"`
	PubDate string `xml:"pubDate"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

// AccessionsRSS renders accession entries as an RSS 2.0 feed, newest first
// per feed convention. The caller resolves each entry's record title.
func (r *Renderer) AccessionsRSS(items []FeedItem) ([]byte, error) {
	feed := rssFeed{
		Version: "2.0",
		Channel: rssChannel{
			Title:       "Accessions",
			Link:        r.base + "accessions",
			Description: "Records in accession order",
		},
	}
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		location := r.PublicationLocation(item.Digest)
		feed.Channel.Items = append(feed.Channel.Items, rssItem{
			Title:   item.Title,
			Link:    location,
			GUID:    location,
			PubDate: item.CreatedAt.Format(time.RFC1123Z),
		})
	}

	out, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("view: accessions rss: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}

// FeedItems resolves accession entries to feed items using the record
// lookup function. Records that fail to load are skipped rather than
// failing the whole feed.
func FeedItems(entries []store.Entry, lookup func(store.Entry) (*store.Publication, error)) []FeedItem {
	items := make([]FeedItem, 0, len(entries))
	for _, entry := range entries {
		p, err := lookup(entry)
		if err != nil {
			continue
		}
		fields, err := p.Fields()
		if err != nil {
			continue
		}
		title, _ := fields["title"].(string)
		items = append(items, FeedItem{
			Number:    entry.Number,
			Title:     title,
			Digest:    entry.Digest.String(),
			CreatedAt: p.CreatedAt,
		})
	}
	return items
}
