package conversation

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"eventpoints-bot/internal/utils"

	_ "golang.org/x/image/webp"
)

var (
	imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}
	imageHosts      = []string{"imgur.com", "gyazo.com", "prnt.sc", "prntscr.com", "media.discordapp.net", "cdn.discordapp.com"}
	discordCDNHosts = []string{"cdn.discordapp.com", "media.discordapp.net"}
)

var ErrHostNotAllowed = errors.New("screenshot host not allowed")

type Attachment struct {
	URL         string
	Filename    string
	ContentType string
}

// Evidence is a screenshot reference found in a message. Only uploaded
// attachments are fetched for verification; text links are taken as posted.
type Evidence struct {
	Ref        string
	Attachment bool
}

func LooksLikeImage(a Attachment) bool {
	if strings.HasPrefix(strings.ToLower(a.ContentType), "image/") {
		return true
	}
	if hasImageExtension(a.Filename) {
		return true
	}
	return a.URL != "" && LooksLikeImageURL(a.URL)
}

// LooksLikeImageURL accepts links with an image extension or hosted on a known image host.
func LooksLikeImageURL(raw string) bool {
	parsed, err := utils.ParseURL(raw)
	if err != nil {
		return false
	}
	for _, ext := range imageExtensions {
		if utils.Extension(parsed) == ext {
			return true
		}
	}
	return utils.HostMatches(parsed.Hostname(), imageHosts)
}

func hasImageExtension(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, candidate := range imageExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

// DefaultImageEvidence prefers attachments, then links in the message text.
func DefaultImageEvidence(msg Message) (Evidence, bool) {
	for _, a := range msg.Attachments {
		if LooksLikeImage(a) {
			return Evidence{Ref: a.URL, Attachment: true}, true
		}
	}
	for _, link := range utils.ExtractURLs(msg.Content) {
		if LooksLikeImageURL(link) {
			return Evidence{Ref: link}, true
		}
	}
	return Evidence{}, false
}

type ImageInfo struct {
	Format string
	Width  int
	Height int
}

var ErrNotAnImage = errors.New("not an image")

// ProbeImage decodes only the image header from r.
func ProbeImage(r io.Reader) (ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}
	return ImageInfo{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// ScreenshotVerifier confirms that a reference points to real image data.
type ScreenshotVerifier interface {
	Verify(ctx context.Context, ref string) (ImageInfo, error)
}

// HTTPVerifier fetches the image header. AllowedHosts defaults to the Discord CDN.
type HTTPVerifier struct {
	Client       *http.Client
	MaxBytes     int64
	AllowedHosts []string
}

func (v HTTPVerifier) Verify(ctx context.Context, ref string) (ImageInfo, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ImageInfo{}, err
	}
	hosts := v.AllowedHosts
	if len(hosts) == 0 {
		hosts = discordCDNHosts
	}
	if (parsed.Scheme != "https" && parsed.Scheme != "http") || !utils.HostMatches(parsed.Hostname(), hosts) {
		return ImageInfo{}, fmt.Errorf("%w: %s", ErrHostNotAllowed, parsed.Hostname())
	}
	client := v.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return ImageInfo{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return ImageInfo{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ImageInfo{}, fmt.Errorf("fetch screenshot: status %d", resp.StatusCode)
	}
	limit := v.MaxBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	return ProbeImage(io.LimitReader(resp.Body, limit))
}
