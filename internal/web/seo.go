package web

import (
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/ppiankov/islamcheck/internal/util"
)

const (
	sitemapNS         = "http://www.sitemaps.org/schemas/sitemap/0.9"
	sitemapClaimLimit = 1000
)

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

// baseURL is the public origin used in robots and sitemap output
func (s *Server) baseURL(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimSuffix(s.cfg.PublicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func (s *Server) robotsPolicy(r *http.Request) (*util.RobotsPolicy, error) {
	return util.NewRobotsPolicy(
		[]string{"/", "/history", "/claim/*/view"},
		nil,
		s.baseURL(r)+"/sitemap.xml",
	)
}

func (s *Server) handleRobots(w http.ResponseWriter, r *http.Request) {
	policy, err := s.robotsPolicy(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(policy.String()))
}

func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	policy, err := s.robotsPolicy(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recent, err := s.svc.Recent(r.Context(), sitemapClaimLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	base := s.baseURL(r)
	set := urlSet{XMLNS: sitemapNS}
	add := func(path, lastmod, freq, priority string) {
		if !policy.Allowed(path) {
			return
		}
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        base + path,
			LastMod:    lastmod,
			ChangeFreq: freq,
			Priority:   priority,
		})
	}

	add("/", "", "daily", "1.0")
	add("/history", "", "hourly", "0.8")
	for _, c := range recent {
		add("/claim/"+c.ID+"/view", c.Timestamp.UTC().Format("2006-01-02"), "weekly", "0.6")
	}

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}
