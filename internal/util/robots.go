package util

import (
	"fmt"
	"strings"

	"github.com/temoto/robotstxt"
)

// RobotsPolicy is the crawler policy the site publishes at /robots.txt.
// The same rules decide which pages the sitemap may advertise.
type RobotsPolicy struct {
	body string
	data *robotstxt.RobotsData
}

// NewRobotsPolicy renders a policy for all user agents. sitemapURL is
// appended as the Sitemap directive when non-empty.
func NewRobotsPolicy(allow, disallow []string, sitemapURL string) (*RobotsPolicy, error) {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	for _, path := range allow {
		fmt.Fprintf(&b, "Allow: %s\n", path)
	}
	for _, path := range disallow {
		fmt.Fprintf(&b, "Disallow: %s\n", path)
	}
	if sitemapURL != "" {
		fmt.Fprintf(&b, "\nSitemap: %s\n", sitemapURL)
	}

	data, err := robotstxt.FromString(b.String())
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	return &RobotsPolicy{body: b.String(), data: data}, nil
}

// String returns the robots.txt body
func (p *RobotsPolicy) String() string {
	return p.body
}

// Allowed reports whether a generic crawler may fetch path
func (p *RobotsPolicy) Allowed(path string) bool {
	return p.data.TestAgent(path, "*")
}
