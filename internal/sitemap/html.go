package sitemap

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// extractSitemapLinks returns the href of every <link rel="sitemap"> element
// in an HTML document, resolved against baseURL.
func extractSitemapLinks(body io.Reader, baseURL *url.URL) []string {
	var links []string
	tokenizer := html.NewTokenizer(body)

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return links

		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if token.Data == "body" {
				return links
			}
			if token.Data != "link" {
				continue
			}

			var rel, href string
			for _, attr := range token.Attr {
				switch attr.Key {
				case "rel":
					rel = attr.Val
				case "href":
					href = attr.Val
				}
			}
			if !hasRel(rel, "sitemap") || href == "" {
				continue
			}
			if ref := resolve(baseURL, href); ref != "" {
				links = append(links, ref)
			}
		}
	}
}

func hasRel(rel, want string) bool {
	for _, r := range strings.Fields(rel) {
		if strings.EqualFold(r, want) {
			return true
		}
	}
	return false
}
