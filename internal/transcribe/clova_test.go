package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.m4a")
	if err := os.WriteFile(path, []byte("m4a-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestClovaTranscribe(t *testing.T) {
	t.Run("sends_media_and_params", func(t *testing.T) {
		var gotPath, gotKey, gotMedia string
		var gotParams clovaParams
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotKey = r.Header.Get("X-CLOVASPEECH-API-KEY")
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("ParseMultipartForm: %v", err)
				return
			}
			f, _, err := r.FormFile("media")
			if err != nil {
				t.Errorf("FormFile: %v", err)
				return
			}
			b, _ := io.ReadAll(f)
			gotMedia = string(b)
			json.Unmarshal([]byte(r.FormValue("params")), &gotParams)
			io.WriteString(w, `{"result":"COMPLETED","segments":[]}`)
		}))
		defer srv.Close()

		c := NewClovaClient(srv.URL+"/external/v1/1/", "secret", "ko-KR", 5*time.Second)
		body, err := c.Transcribe(context.Background(), writeAudio(t))
		if err != nil {
			t.Fatalf("Transcribe: %v", err)
		}
		if !strings.Contains(string(body), "segments") {
			t.Errorf("body = %s", body)
		}
		if gotPath != "/external/v1/1/recognizer/upload" {
			t.Errorf("path = %q", gotPath)
		}
		if gotKey != "secret" {
			t.Errorf("api key header = %q", gotKey)
		}
		if gotMedia != "m4a-bytes" {
			t.Errorf("media = %q", gotMedia)
		}
		if gotParams.Language != "ko-KR" || gotParams.Completion != "sync" || !gotParams.Diarization.Enable {
			t.Errorf("params = %+v", gotParams)
		}
	})

	t.Run("http_error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := NewClovaClient(srv.URL, "bad", "ko-KR", 5*time.Second)
		_, err := c.Transcribe(context.Background(), writeAudio(t))
		if err == nil || !strings.Contains(err.Error(), "401") {
			t.Errorf("err = %v, want status 401", err)
		}
	})

	t.Run("failed_result", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"result":"FAILED","message":"unsupported media"}`)
		}))
		defer srv.Close()

		c := NewClovaClient(srv.URL, "k", "ko-KR", 5*time.Second)
		_, err := c.Transcribe(context.Background(), writeAudio(t))
		if !errors.Is(err, ErrRecognitionFailed) {
			t.Errorf("err = %v, want ErrRecognitionFailed", err)
		}
	})

	t.Run("missing_file", func(t *testing.T) {
		c := NewClovaClient("http://127.0.0.1:1", "k", "ko-KR", time.Second)
		if _, err := c.Transcribe(context.Background(), "/no/such/file.m4a"); err == nil {
			t.Error("expected error for missing audio file")
		}
	})
}
