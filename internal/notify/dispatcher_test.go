package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PaulBichl/roxy/internal/config"
)

func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "motion.jpg")
	if err := os.WriteFile(path, []byte("\xff\xd8\xff\xe0 fake jpeg"), 0o644); err != nil {
		t.Fatalf("failed to write test image: %v", err)
	}
	return path
}

func newTestDispatcher(url string) *Dispatcher {
	return NewDispatcher(config.NotifyConfig{
		Enabled:    true,
		WebhookURL: url,
		TimeoutS:   2,
	})
}

func TestDispatcherDelivers(t *testing.T) {
	var gotContent string
	var gotFilename string
	var gotFileBytes int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotContent = r.FormValue("content")

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file field: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFilename = header.Filename
		buf := make([]byte, 64)
		n, _ := file.Read(buf)
		gotFileBytes = n

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDispatcher(srv.URL)
	imagePath := writeTestImage(t)

	result := d.Send(context.Background(), imagePath, "Motion detected at 12:00")
	if !result.Delivered {
		t.Fatalf("Send() not delivered, reason = %q", result.Reason)
	}
	if gotContent != "Motion detected at 12:00" {
		t.Errorf("content field = %q, want %q", gotContent, "Motion detected at 12:00")
	}
	if gotFilename != "motion.jpg" {
		t.Errorf("file field name = %q, want motion.jpg", gotFilename)
	}
	if gotFileBytes == 0 {
		t.Error("file field carried no bytes")
	}
}

func TestDispatcherSinkRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := newTestDispatcher(srv.URL)
	result := d.Send(context.Background(), writeTestImage(t), "msg")

	if result.Delivered {
		t.Error("Send() reported delivery on a 500 response")
	}
	if !strings.Contains(result.Reason, "500") {
		t.Errorf("Reason = %q, want the sink status code", result.Reason)
	}
}

func TestDispatcherTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	d := newTestDispatcher(srv.URL)
	result := d.Send(context.Background(), writeTestImage(t), "msg")

	if result.Delivered {
		t.Error("Send() reported delivery with no listener")
	}
	if result.Reason == "" {
		t.Error("transport failure should carry a reason")
	}
}

func TestDispatcherMissingImage(t *testing.T) {
	d := newTestDispatcher("http://127.0.0.1:0")
	result := d.Send(context.Background(), "/nonexistent/motion.jpg", "msg")

	if result.Delivered {
		t.Error("Send() reported delivery for a missing image")
	}
}

func TestDispatcherDisabled(t *testing.T) {
	d := NewDispatcher(config.NotifyConfig{Enabled: false, TimeoutS: 2})

	// No sink configured: a disabled dispatcher is a silent success
	result := d.Send(context.Background(), "/nonexistent/motion.jpg", "msg")
	if !result.Delivered {
		t.Errorf("disabled dispatcher should no-op successfully, reason = %q", result.Reason)
	}
}
