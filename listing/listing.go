package listing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jumppad-labs/modeltypes/errors"
	"golang.org/x/net/html"
)

// Lister returns the plugin categories a repository offers
type Lister interface {
	Categories(ctx context.Context, repoURL string) ([]string, error)
}

var categoryPattern = regexp.MustCompile(`^modeshape-sequencer-([A-Za-z0-9._-]+)/$`)

// TransportWithCredentials adds a bearer token to every request
type TransportWithCredentials struct {
	token string
	T     http.RoundTripper
}

func (t *TransportWithCredentials) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return t.T.RoundTrip(req)
}

// Client reads repository listing pages, http and https repositories are
// fetched, file repositories are read from disk
type Client struct {
	client http.Client
}

// New creates a Client, token is optional
func New(token string, timeout time.Duration) *Client {
	return &Client{
		client: http.Client{
			Timeout: timeout,
			Transport: &TransportWithCredentials{
				token: token,
				T:     http.DefaultTransport,
			},
		},
	}
}

// Categories returns the sorted category names found in the listing of
// repoURL
func (c *Client) Categories(ctx context.Context, repoURL string) ([]string, error) {
	op := "list categories"

	u, err := url.Parse(repoURL)
	if err != nil {
		return nil, errors.InvalidArgument(op, "invalid repository url %q: %s", repoURL, err)
	}

	var names []string

	switch u.Scheme {
	case "http", "https":
		names, err = c.links(ctx, repoURL)
	case "file":
		names, err = directories(u.Path)
	default:
		return nil, errors.InvalidArgument(op, "unsupported repository url %q", repoURL)
	}

	if err != nil {
		return nil, errors.TransientIO(op, err, "unable to read listing of %s", repoURL)
	}

	return categories(names), nil
}

func (c *Client) links(ctx context.Context, repoURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, repoURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	hrefs := []string{}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key == "href" {
					hrefs = append(hrefs, a.Val)
				}
			}
		}

		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)

	return hrefs, nil
}

func directories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name()+"/")
		}
	}

	return names, nil
}

// categories extracts category names from hrefs, links can be absolute or
// relative to the listing page
func categories(hrefs []string) []string {
	seen := map[string]bool{}
	found := []string{}

	for _, h := range hrefs {
		if u, err := url.Parse(h); err == nil {
			h = u.Path
		}

		dir := strings.HasSuffix(h, "/")
		name := path.Base(strings.TrimSuffix(h, "/"))
		if dir {
			name += "/"
		}

		m := categoryPattern.FindStringSubmatch(name)
		if m == nil || seen[m[1]] {
			continue
		}

		seen[m[1]] = true
		found = append(found, m[1])
	}

	sort.Strings(found)

	return found
}
