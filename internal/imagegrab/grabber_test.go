package imagegrab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"folio/internal/card"
	"folio/internal/filter"
)

func TestFindScanImage(t *testing.T) {
	base, _ := url.Parse("http://magiccards.info/query?q=shock")
	tests := []struct {
		name string
		page string
		want string
	}{
		{
			name: "relative scan",
			page: `<html><body><img src="/images/logo.png"><img src="/scans/en/m10/146.jpg" alt="Shock"></body></html>`,
			want: "http://magiccards.info/scans/en/m10/146.jpg",
		},
		{
			name: "absolute scan",
			page: `<img src="http://cdn.example.test/scans/a.jpg"/>`,
			want: "http://cdn.example.test/scans/a.jpg",
		},
		{
			name: "first scan wins",
			page: `<img src="scans/one.jpg"><img src="scans/two.jpg">`,
			want: "http://magiccards.info/scans/one.jpg",
		},
		{
			name: "scan outside img ignored",
			page: `<a href="/scans/x.jpg">x</a><img alt="none">`,
			want: "",
		},
		{
			name: "empty page",
			page: ``,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindScanImage(strings.NewReader(tt.page), base)
			if err != nil {
				t.Fatalf("FindScanImage: %v", err)
			}
			if got != tt.want {
				t.Fatalf("FindScanImage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveSendsQueryAndResolvesAgainstPage(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `<html><img src="/scans/en/m10/146.jpg"></html>`)
	}))
	defer srv.Close()

	g := New(Options{SearchURL: srv.URL + "/query", Timeout: time.Second})
	got, err := g.Resolve(context.Background(), "Shock+c!r")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := srv.URL + "/scans/en/m10/146.jpg"; got != want {
		t.Fatalf("Resolve = %q, want %q", got, want)
	}
	if gotQuery != "q=Shock+c%21r" {
		t.Fatalf("raw query = %q", gotQuery)
	}
}

func TestResolveNon2xxIsLookupError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(Options{SearchURL: srv.URL, Timeout: time.Second}).Resolve(context.Background(), "Shock")
	if !errors.Is(err, ErrLookup) {
		t.Fatalf("Resolve = %v, want ErrLookup", err)
	}
}

func TestGrabRendersFilterAndDropsWhileBusy(t *testing.T) {
	release := make(chan struct{})
	queries := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Query().Get("q")
		<-release
		fmt.Fprint(w, `<img src="/scans/shock.jpg">`)
	}))
	defer srv.Close()

	g := New(Options{SearchURL: srv.URL, Timeout: 5 * time.Second})
	f := &filter.Filter{Name: "Shock", Colors: card.Red}

	results := make(chan Result, 2)
	if !g.Grab(context.Background(), f, func(res Result) { results <- res }) {
		t.Fatal("first grab was dropped")
	}
	if g.Grab(context.Background(), f, func(res Result) { results <- res }) {
		t.Fatal("second grab should be dropped while the first runs")
	}
	close(release)

	select {
	case res := <-results:
		if res.Err != nil {
			t.Fatalf("grab error: %v", res.Err)
		}
		if res.Query != "Shock+c!r" {
			t.Fatalf("query = %q", res.Query)
		}
		if res.URL != srv.URL+"/scans/shock.jpg" {
			t.Fatalf("url = %q", res.URL)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for grab")
	}
	g.Wait()
	if q := <-queries; q != "Shock c!r" {
		t.Fatalf("server saw q = %q", q)
	}
}

func TestGrabCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	g := New(Options{SearchURL: srv.URL, Timeout: 5 * time.Second})
	results := make(chan Result, 1)
	if !g.Grab(context.Background(), &filter.Filter{Name: "Shock"}, func(res Result) { results <- res }) {
		t.Fatal("grab was dropped")
	}
	g.Cancel()

	select {
	case res := <-results:
		if !res.Cancelled {
			t.Fatalf("result = %+v, want cancelled", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cancelled grab")
	}
	g.Wait()
}

func TestResolveRemembersResults(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `<img src="/scans/shock.jpg">`)
	}))
	defer srv.Close()

	g := New(Options{SearchURL: srv.URL, Timeout: time.Second, CacheTTL: time.Minute})
	for range 3 {
		got, err := g.Resolve(context.Background(), "Shock")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got != srv.URL+"/scans/shock.jpg" {
			t.Fatalf("Resolve = %q", got)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("search page requested %d times, want 1", n)
	}

	if _, err := g.Resolve(context.Background(), "Forest"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("search page requested %d times, want 2", n)
	}
}

func TestResolveWithoutCacheRefetches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `<p>no images</p>`)
	}))
	defer srv.Close()

	g := New(Options{SearchURL: srv.URL, Timeout: time.Second})
	for range 2 {
		got, err := g.Resolve(context.Background(), "Nothing")
		if err != nil || got != "" {
			t.Fatalf("Resolve = %q, %v", got, err)
		}
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("search page requested %d times, want 2", n)
	}
}

// waitForWaiters blocks until n callers share the lookup for query.
func waitForWaiters(t *testing.T, g *Grabber, query string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		lookup := g.shared[query]
		got := 0
		if lookup != nil {
			got = lookup.waiters
		}
		g.mu.Unlock()
		if got == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d callers on %q", n, query)
}

type resolved struct {
	url string
	err error
}

func TestConcurrentResolveSharesOneRequest(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		fmt.Fprint(w, `<img src="/scans/shock.jpg">`)
	}))
	defer srv.Close()

	g := New(Options{SearchURL: srv.URL, Timeout: 5 * time.Second})
	const callers = 5
	results := make(chan resolved, callers)
	for range callers {
		go func() {
			src, err := g.Resolve(context.Background(), "Shock")
			results <- resolved{src, err}
		}()
	}
	waitForWaiters(t, g, "Shock", callers)
	close(release)

	for range callers {
		select {
		case res := <-results:
			if res.err != nil {
				t.Fatalf("Resolve: %v", res.err)
			}
			if res.url != srv.URL+"/scans/shock.jpg" {
				t.Fatalf("Resolve = %q", res.url)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for Resolve")
		}
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("search page requested %d times, want 1", n)
	}
}

func TestResolveCancelOnlyAffectsThatCaller(t *testing.T) {
	arrived := make(chan struct{}, 2)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		select {
		case <-release:
			fmt.Fprint(w, `<img src="/scans/shock.jpg">`)
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	g := New(Options{SearchURL: srv.URL, Timeout: 5 * time.Second})

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	first := make(chan resolved, 1)
	go func() {
		src, err := g.Resolve(ctxA, "Shock")
		first <- resolved{src, err}
	}()
	<-arrived

	second := make(chan resolved, 1)
	go func() {
		src, err := g.Resolve(context.Background(), "Shock")
		second <- resolved{src, err}
	}()
	waitForWaiters(t, g, "Shock", 2)

	cancelA()
	select {
	case res := <-first:
		if !errors.Is(res.err, context.Canceled) {
			t.Fatalf("cancelled caller got %q, %v; want context.Canceled", res.url, res.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(release)
	select {
	case res := <-second:
		if res.err != nil {
			t.Fatalf("remaining caller failed: %v", res.err)
		}
		if res.url != srv.URL+"/scans/shock.jpg" {
			t.Fatalf("remaining caller got %q", res.url)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("remaining caller did not return")
	}

	g.mu.Lock()
	left := len(g.shared)
	g.mu.Unlock()
	if left != 0 {
		t.Fatalf("expected no shared lookups left, got %d", left)
	}
}
