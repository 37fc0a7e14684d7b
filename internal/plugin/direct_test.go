package plugin_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dlq/internal/plugin"
)

func TestDirectCheckURLUsesContentDisposition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		if got := r.Header.Get("User-Agent"); got != "dlq-test" {
			t.Errorf("unexpected user agent %q", got)
		}
		w.Header().Set("Content-Disposition", `attachment; filename="report final.pdf"`)
		w.Header().Set("Content-Length", "2048")
	}))
	defer srv.Close()

	direct := plugin.NewDirect(time.Second, plugin.WithUserAgent("dlq-test"))
	results, err := direct.CheckURL(context.Background(), srv.URL+"/download?id=7", nil)
	if err != nil {
		t.Fatalf("CheckURL failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if results[0].FileName != "report final.pdf" || results[0].Size != 2048 || results[0].PluginID != plugin.DirectID {
		t.Fatalf("unexpected result: %+v", results[0])
	}
}

func TestDirectCheckURLFallsBackToPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	direct := plugin.NewDirect(time.Second)
	results, err := direct.CheckURL(context.Background(), srv.URL+"/files/archive.tar.gz", nil)
	if err != nil {
		t.Fatalf("CheckURL failed: %v", err)
	}
	if results[0].FileName != "archive.tar.gz" {
		t.Fatalf("unexpected file name %q", results[0].FileName)
	}
}

func TestDirectCheckURLReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	direct := plugin.NewDirect(time.Second)
	if _, err := direct.CheckURL(context.Background(), srv.URL+"/missing.bin", nil); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestDirectDownloadRequest(t *testing.T) {
	direct := plugin.NewDirect(0)
	res, err := direct.GetDownloadRequest(context.Background(), "https://example.com/a.bin", nil)
	if err != nil {
		t.Fatalf("GetDownloadRequest failed: %v", err)
	}
	req, ok := res.(plugin.DownloadRequest)
	if !ok || req.URL != "https://example.com/a.bin" || req.Method != http.MethodGet {
		t.Fatalf("unexpected result %#v", res)
	}
	if _, err := direct.GetDownloadRequest(context.Background(), "ftp://example.com/a", nil); !errors.Is(err, plugin.ErrNoPlugin) {
		t.Fatalf("expected ErrNoPlugin, got %v", err)
	}
	if _, err := direct.SubmitCaptchaResponse(context.Background(), "cb", "x"); !errors.Is(err, plugin.ErrUnknownCallback) {
		t.Fatalf("expected ErrUnknownCallback, got %v", err)
	}
}

type stubService struct {
	id     string
	prefix string
}

func (s stubService) ID() string { return s.id }
func (s stubService) Matches(u string) bool {
	return len(u) >= len(s.prefix) && u[:len(s.prefix)] == s.prefix
}
func (s stubService) CheckURL(context.Context, string, plugin.Settings) ([]plugin.URLResult, error) {
	return nil, nil
}
func (s stubService) GetDownloadRequest(context.Context, string, plugin.Settings) (plugin.Result, error) {
	return plugin.WaitRequest{Delay: time.Second}, nil
}
func (s stubService) SubmitCaptchaResponse(context.Context, string, string) (plugin.Result, error) {
	return nil, nil
}
func (s stubService) SubmitSettingsResponse(context.Context, string, map[string]any) (plugin.Result, error) {
	return nil, nil
}

func TestRegistryPrecedence(t *testing.T) {
	reg, err := plugin.NewRegistry(stubService{id: "host", prefix: "https://files.example.com/"}, plugin.NewDirect(0))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	svc, ok := reg.Lookup("https://files.example.com/x")
	if !ok || svc.ID() != "host" {
		t.Fatalf("expected host plugin, got %v", svc)
	}
	svc, ok = reg.Lookup("https://other.example.com/x")
	if !ok || svc.ID() != plugin.DirectID {
		t.Fatalf("expected direct fallback, got %v", svc)
	}
	if _, ok := reg.Lookup("magnet:?xt=1"); ok {
		t.Fatal("expected no plugin for magnet link")
	}
	if err := reg.Register(plugin.NewDirect(0)); !errors.Is(err, plugin.ErrDuplicatePlugin) {
		t.Fatalf("expected ErrDuplicatePlugin, got %v", err)
	}
}
