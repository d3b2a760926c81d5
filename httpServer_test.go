package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/photonicat/photo_album_display/warp"
)

func multipartUpload(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadHandler(t *testing.T) {
	truncated := testJPEG(t, 64, 64, PCAT_BLUE)
	truncated = truncated[:len(truncated)/2]

	tests := []struct {
		name       string
		field      string
		data       []byte
		wantStatus int
		wantEvent  bool
	}{
		{"jpeg", "file", nil, http.StatusOK, true},
		{"not a jpeg", "file", []byte("hello"), http.StatusBadRequest, false},
		{"truncated jpeg", "file", truncated, http.StatusBadRequest, false},
		{"wrong field", "photo", nil, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAlbum(t, fixedProbe(1<<30), time.Now())
			app := newHTTPServer(a)
			data := tt.data
			if data == nil {
				data = testJPEG(t, 32, 32, PCAT_BLUE)
			}

			resp, err := app.Test(multipartUpload(t, tt.field, "photo.jpg", data), -1)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				body, _ := io.ReadAll(resp.Body)
				t.Fatalf("status = %d (%s), want %d", resp.StatusCode, body, tt.wantStatus)
			}
			if got := len(a.events) == 1; got != tt.wantEvent {
				t.Errorf("event queued = %v, want %v", got, tt.wantEvent)
			}
			if tt.wantEvent {
				if _, err := uuid.Parse(resp.Header.Get("X-Upload-Id")); err != nil {
					t.Errorf("X-Upload-Id %q: %v", resp.Header.Get("X-Upload-Id"), err)
				}
				if !a.store.HasPhoto() {
					t.Error("photo not stored")
				}
			}
		})
	}
}

func TestUploadConflict(t *testing.T) {
	a := newTestAlbum(t, fixedProbe(1<<30), time.Now())
	app := newHTTPServer(a)
	a.store.uploading.Store(true)

	resp, err := app.Test(multipartUpload(t, "file", "photo.jpg", testJPEG(t, 16, 16, PCAT_RED)), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestSwitchModeHandler(t *testing.T) {
	tests := []struct {
		query      string
		wantStatus int
		wantMode   warp.DisplayMode
	}{
		{"?mode=clear", http.StatusOK, warp.ModeClear},
		{"?mode=dynamic", http.StatusOK, warp.ModeDynamic},
		{"?mode=sepia", http.StatusBadRequest, warp.ModeDynamic},
		{"", http.StatusBadRequest, warp.ModeDynamic},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			a := newTestAlbum(t, fixedProbe(1<<30), time.Now())
			app := newHTTPServer(a)
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/switch-mode"+tt.query, nil), -1)
			if err != nil {
				t.Fatal(err)
			}
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d (%s), want %d", resp.StatusCode, body, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && string(body) != "success" {
				t.Errorf("body = %q", body)
			}
			if a.mode.DisplayMode() != tt.wantMode {
				t.Errorf("mode = %s, want %s", a.mode.DisplayMode(), tt.wantMode)
			}
		})
	}
}

func TestStatusHandler(t *testing.T) {
	a := newTestAlbum(t, fixedProbe(64<<20), time.Now())
	app := newHTTPServer(a)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/status", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var st statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Mode != "dynamic" || st.HasPhoto || st.Uploading {
		t.Errorf("status = %+v", st)
	}
	if st.FreeBytes != 64<<20 || st.FreeHuman != "67 MB" {
		t.Errorf("free = %d (%s)", st.FreeBytes, st.FreeHuman)
	}
	if len(st.Decisions) != int(warp.Warped)+1 {
		t.Errorf("decisions = %v", st.Decisions)
	}
}

func TestStatusUnknownMemory(t *testing.T) {
	a := newTestAlbum(t, fixedProbe(^uint64(0)), time.Now())
	app := newHTTPServer(a)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/status", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var st statusResponse
	json.NewDecoder(resp.Body).Decode(&st)
	if !st.UnknownFree || st.FreeHuman != "unknown" || st.FreeBytes != 0 {
		t.Errorf("status = %+v", st)
	}
}

func TestImageHandlers(t *testing.T) {
	a := newTestAlbum(t, fixedProbe(1<<30), time.Now())
	a.history.record(time.Now().Add(-time.Minute), 40<<20)
	a.history.record(time.Now(), 30<<20)
	app := newHTTPServer(a)

	for _, path := range []string{"/frame", "/memory.png"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("%s content type = %q", path, ct)
		}
		img, err := png.Decode(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if path == "/frame" && (img.Bounds().Dx() != SCREEN_WIDTH || img.Bounds().Dy() != SCREEN_HEIGHT) {
			t.Errorf("frame bounds = %v", img.Bounds())
		}
	}
}

func TestIndexHandler(t *testing.T) {
	a := newTestAlbum(t, fixedProbe(1<<30), time.Now())
	app := newHTTPServer(a)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "<title>Photo Album</title>") {
		t.Error("index page missing")
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Errorf("content type = %q", resp.Header.Get("Content-Type"))
	}
}
