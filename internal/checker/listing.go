package checker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// yearFilePattern matches the per-year detail files in the NOAA directory
// listing, capturing the data year and the publication date.
var yearFilePattern = regexp.MustCompile(`^StormEvents_details-ftp_v1\.0_d(\d{4})_c(\d{8})\.csv\.gz$`)

// yearFile is one per-year CSV source file found in the listing.
type yearFile struct {
	Year         int
	LastModified time.Time
	Filename     string
}

// fetchListing retrieves the NOAA directory listing and returns the link
// targets found in it. The listing host is slow and occasionally
// unreachable; a timeout or fetch error degrades to an empty list so the
// run continues with nothing to do.
func (c *Checker) fetchListing(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, c.listingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		c.logger.Error("build listing request", slog.Any("error", err))
		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("fetch listing", slog.String("url", c.baseURL), slog.Any("error", err))
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("fetch listing", slog.String("url", c.baseURL),
			slog.Int("status", resp.StatusCode))
		return nil
	}

	links, err := extractLinks(resp.Body)
	if err != nil {
		c.logger.Error("parse listing", slog.Any("error", err))
		return nil
	}
	c.logger.Info("fetched listing", slog.Int("links", len(links)))
	return links
}

// extractLinks pulls every anchor href out of an HTML document.
func extractLinks(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && attr.Val != "" {
					links = append(links, attr.Val)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return links, nil
}

// filterYearFiles keeps one detail file per year from startYear through the
// current year. A malformed publication date skips the link with a warning.
func (c *Checker) filterYearFiles(links []string) map[int]yearFile {
	currentYear := c.now().Year()
	files := make(map[int]yearFile)
	for _, link := range links {
		name := link[strings.LastIndex(link, "/")+1:]
		m := yearFilePattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}

		year, _ := strconv.Atoi(m[1])
		if year < c.startYear || year > currentYear {
			continue
		}

		modified, err := time.ParseInLocation("20060102", m[2], time.UTC)
		if err != nil {
			c.logger.Warn("skipping year file with bad publication date",
				slog.String("file", name), slog.Any("error", err))
			continue
		}

		files[year] = yearFile{Year: year, LastModified: modified, Filename: name}
	}
	return files
}
