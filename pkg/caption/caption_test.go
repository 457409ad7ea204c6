package caption

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/caption" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"caption":"two people on a beach"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	text, err := c.Generate(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "two people on a beach" {
		t.Fatalf("caption = %q", text)
	}
}

func TestGenerate_SidecarDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	if _, err := c.Generate(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestReport(t *testing.T) {
	var gotPath string
	var gotBody reportReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rep := NewReporter(srv.URL, srv.Client())
	if err := rep.Report(context.Background(), "img-1", "a dog"); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if gotPath != "/caption/img-1" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody.ImageID != "img-1" || gotBody.Caption != "a dog" {
		t.Fatalf("body = %+v", gotBody)
	}
}

func TestReport_SinkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rep := NewReporter(srv.URL, srv.Client())
	if err := rep.Report(context.Background(), "img-1", "x"); err == nil {
		t.Fatal("expected error for 500")
	}
}
