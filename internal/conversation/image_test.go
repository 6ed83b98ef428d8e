package conversation

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestLooksLikeImage(t *testing.T) {
	cases := []struct {
		name string
		in   Attachment
		want bool
	}{
		{"content type", Attachment{ContentType: "image/jpeg", Filename: "blob"}, true},
		{"extension", Attachment{Filename: "Shot.PNG"}, true},
		{"image host", Attachment{URL: "https://i.imgur.com/abc"}, true},
		{"text file", Attachment{Filename: "notes.txt", ContentType: "text/plain", URL: "https://cdn.example.com/notes.txt"}, false},
	}
	for _, tc := range cases {
		if got := LooksLikeImage(tc.in); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDefaultImageEvidence(t *testing.T) {
	ev, ok := DefaultImageEvidence(Message{Content: "here: https://gyazo.com/abcdef."})
	if !ok || ev.Ref != "https://gyazo.com/abcdef" || ev.Attachment {
		t.Fatalf("expected gyazo link, got %+v ok=%v", ev, ok)
	}

	ev, ok = DefaultImageEvidence(Message{
		Content:     "https://example.com/a.jpg",
		Attachments: []Attachment{{URL: "https://cdn.discordapp.com/x.png", Filename: "x.png"}},
	})
	if !ok || ev.Ref != "https://cdn.discordapp.com/x.png" || !ev.Attachment {
		t.Fatalf("attachment should win, got %+v", ev)
	}

	if _, ok := DefaultImageEvidence(Message{Content: "no proof yet https://example.com/page"}); ok {
		t.Fatalf("plain page link is not a screenshot")
	}
}

func TestProbeImage(t *testing.T) {
	info, err := ProbeImage(bytes.NewReader(encodePNG(t, 12, 7)))
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if info.Format != "png" || info.Width != 12 || info.Height != 7 {
		t.Fatalf("unexpected info: %+v", info)
	}

	if _, err := ProbeImage(strings.NewReader("<html></html>")); !errors.Is(err, ErrNotAnImage) {
		t.Fatalf("expected ErrNotAnImage, got %v", err)
	}
}

func TestHTTPVerifier(t *testing.T) {
	payload := encodePNG(t, 3, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			_, _ = w.Write(payload)
		case "/fake.png":
			_, _ = w.Write([]byte("not really"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	v := HTTPVerifier{Client: srv.Client(), AllowedHosts: []string{"127.0.0.1"}}
	if _, err := v.Verify(context.Background(), srv.URL+"/ok.png"); err != nil {
		t.Fatalf("verify ok: %v", err)
	}
	if _, err := v.Verify(context.Background(), srv.URL+"/fake.png"); !errors.Is(err, ErrNotAnImage) {
		t.Fatalf("expected ErrNotAnImage, got %v", err)
	}
	if _, err := v.Verify(context.Background(), srv.URL+"/missing.png"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestHTTPVerifierRefusesOtherHosts(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	v := HTTPVerifier{Client: srv.Client()}
	for _, ref := range []string{srv.URL + "/shot.png", "http://169.254.169.254/latest/meta-data", "file:///etc/passwd"} {
		if _, err := v.Verify(context.Background(), ref); !errors.Is(err, ErrHostNotAllowed) {
			t.Fatalf("%s: expected ErrHostNotAllowed, got %v", ref, err)
		}
	}
	if hits != 0 {
		t.Fatalf("refused refs must not be fetched, got %d requests", hits)
	}
}
