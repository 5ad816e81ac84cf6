// Package render turns a URL into the normalized text a reader would see
// on the page. Rod drives a real Chrome so client-rendered pricing tables
// are captured; HTTP is a single GET for static pages; Auto tries HTTP
// first and escalates to Rod when the response looks like an SPA shell.
package render

import (
	"context"
	"fmt"

	"github.com/hazyhaar/pricewatch/extract"
)

// Page is one rendered observation of a URL.
type Page struct {
	URL      string
	HTML     string // full serialized document
	MainHTML string // serialized primary content region
	Text     string // normalized text, the fingerprint input
	Region   extract.Region
}

// Renderer produces a Page for a URL. Implementations are safe for
// concurrent use and scope any browser session to the call.
type Renderer interface {
	Render(ctx context.Context, url string) (*Page, error)
}

// FetchError reports that a page could not be rendered: network failure,
// timeout, engine failure or an unusable response.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("render: fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func fetchErr(url string, err error) error {
	return &FetchError{URL: url, Err: err}
}

// pageFromHTML normalizes raw document HTML into a Page.
func pageFromHTML(url, html string) (*Page, error) {
	res, err := extract.Normalize(html)
	if err != nil {
		return nil, fetchErr(url, err)
	}
	return &Page{
		URL:      url,
		HTML:     html,
		MainHTML: res.MainHTML,
		Text:     res.Text,
		Region:   res.Region,
	}, nil
}
