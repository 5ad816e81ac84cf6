package render

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/pricewatch/extract"
	"github.com/hazyhaar/pricewatch/safeurl"
)

const pricingHTML = `<!DOCTYPE html><html><head><title>Pricing</title>
<script>window.x = 1</script></head>
<body><nav>Home</nav><main><h1>Plans</h1>
<p>Starter  $9/month</p><p>Pro $29/month</p></main></body></html>`

func TestHTTP_Render(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(pricingHTML))
	}))
	defer srv.Close()

	page, err := NewHTTP(WithUserAgent("pricewatch-test")).Render(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if ua != "pricewatch-test" {
		t.Errorf("User-Agent = %q", ua)
	}
	if page.Text != "Plans Starter $9/month Pro $29/month" {
		t.Fatalf("Text = %q", page.Text)
	}
	if page.Region != extract.RegionMain {
		t.Errorf("Region = %q", page.Region)
	}
	if page.URL != srv.URL || !strings.Contains(page.HTML, "<script>") {
		t.Errorf("page URL/HTML not carried through")
	}
}

// WHAT: non-2xx responses become FetchError.
// WHY: an error page must never be fingerprinted as the new baseline.
func TestHTTP_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTP().Render(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.URL != srv.URL || !strings.Contains(fe.Error(), "404") {
		t.Fatalf("FetchError = %v", fe)
	}
}

func TestHTTP_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTP().Render(context.Background(), url)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
}

func TestHTTP_RedirectIntoPrivateNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/pricing" {
			http.Redirect(w, r, "/internal", http.StatusFound)
			return
		}
		w.Write([]byte("<main>secret</main>"))
	}))
	defer srv.Close()

	_, err := NewHTTP().Render(context.Background(), srv.URL+"/pricing")
	if !errors.Is(err, safeurl.ErrSSRF) {
		t.Fatalf("err = %v, want ErrSSRF", err)
	}
}

func TestHTTP_BodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunk := []byte(strings.Repeat("a", 1<<20))
		for range 11 {
			w.Write(chunk)
		}
	}))
	defer srv.Close()

	_, err := NewHTTP().Render(context.Background(), srv.URL)
	if !errors.Is(err, safeurl.ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestHTTP_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHTTP().Render(ctx, srv.URL)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
