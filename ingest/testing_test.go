package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/e-dreyer/discussbot/fetch"
	"github.com/e-dreyer/discussbot/mastodon"
)

const testIndexURL = "https://discuss.example.org/latest"

// fakeFeed serves an index page linking to the given topic paths, and topic
// pages registered with addTopic.
type fakeFeed struct {
	lk     sync.Mutex
	links  []string
	pages  map[string]string
	status map[string]int
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		pages:  make(map[string]string),
		status: make(map[string]int),
	}
}

func (f *fakeFeed) addTopic(path, title, category string) {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.links = append(f.links, path)
	f.pages["https://discuss.example.org"+path] = fmt.Sprintf(`<html><body>
<div id="topic-title"><h1><a href="%s">%s</a></h1>
<div class="topic-category"><a href="/c/x/1"><span class="category-name">%s</span></a></div></div>
</body></html>`, path, title, category)
}

func (f *fakeFeed) setLinks(paths ...string) {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.links = paths
}

func (f *fakeFeed) index() string {
	var sb strings.Builder
	sb.WriteString(`<html><body><table class="topic-list"><tbody>`)
	for _, l := range f.links {
		fmt.Fprintf(&sb, `<tr class="topic-list-item"><td class="main-link"><a href="%s" class="title raw-link raw-topic-link">t</a></td></tr>`, l)
	}
	sb.WriteString(`</tbody></table></body></html>`)
	return sb.String()
}

func (f *fakeFeed) Fetch(ctx context.Context, url string) (*fetch.Document, error) {
	f.lk.Lock()
	defer f.lk.Unlock()
	if code, ok := f.status[url]; ok {
		return nil, &fetch.Error{URL: url, StatusCode: code}
	}
	if url == testIndexURL {
		return &fetch.Document{URL: url, StatusCode: 200, Body: []byte(f.index())}, nil
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, &fetch.Error{URL: url, StatusCode: 404}
	}
	return &fetch.Document{URL: url, StatusCode: 200, Body: []byte(body)}, nil
}

// fakeMastodon records published statuses and deletions. errs are returned,
// in order, by the next PostStatus calls.
type fakeMastodon struct {
	lk      sync.Mutex
	posted  []*mastodon.StatusInput
	deleted []string
	errs    []error
	delErr  error
}

func (m *fakeMastodon) PostStatus(ctx context.Context, in *mastodon.StatusInput) (*mastodon.Status, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	m.posted = append(m.posted, in)
	id := fmt.Sprintf("%d", 1000+len(m.posted))
	return &mastodon.Status{
		ID:  id,
		URL: "https://bot.example/@discuss/" + id,
		URI: "https://bot.example/users/discuss/statuses/" + id,
	}, nil
}

func (m *fakeMastodon) DeleteStatus(ctx context.Context, statusID string) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	if m.delErr != nil {
		return m.delErr
	}
	m.deleted = append(m.deleted, statusID)
	return nil
}

func (m *fakeMastodon) publishCount() int {
	m.lk.Lock()
	defer m.lk.Unlock()
	return len(m.posted)
}
