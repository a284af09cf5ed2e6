package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bielarusajed/anibel-dl/internal/domain"
)

const defaultUserAgent = "anibel-dl"

// Fetcher regroupe le client HTTP partagé par les composants du pipeline.
// Les timeouts sont ceux du client: aucune deadline propre n'est imposée.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
}

func NewFetcher(client *http.Client, userAgent string) Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = defaultUserAgent
	}
	return Fetcher{Client: client, UserAgent: userAgent}
}

// Get renvoie le corps complet; transport, statut >= 400 et corps vide sont des ErrFetch.
func (f Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := f.open(ctx, rawURL, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrFetch, rawURL, err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty body from %s", domain.ErrFetch, rawURL)
	}
	return b, nil
}

// GetRange lit length octets à partir de offset; length <= 0 revient à Get.
// Un serveur qui ignore Range répond 200 avec le fichier entier: la sous-plage est alors découpée ici.
// Une sous-plage incomplète est une ErrFetch.
func (f Fetcher) GetRange(ctx context.Context, rawURL string, offset, length int64) ([]byte, error) {
	if length <= 0 {
		return f.Get(ctx, rawURL)
	}
	resp, err := f.open(ctx, rawURL, fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
			return nil, fmt.Errorf("%w: range %d@%d outside %s", domain.ErrFetch, length, offset, rawURL)
		}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, length))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrFetch, rawURL, err)
	}
	if int64(len(b)) != length {
		return nil, fmt.Errorf("%w: short range from %s: got %d of %d bytes", domain.ErrFetch, rawURL, len(b), length)
	}
	return b, nil
}

func (f Fetcher) open(ctx context.Context, rawURL, byteRange string) (*http.Response, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	ua := f.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s: http %s", domain.ErrFetch, rawURL, resp.Status)
	}
	return resp, nil
}

// resolveRef résout ref par rapport à base (comme un navigateur).
func resolveRef(base, ref string) (string, error) {
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("%w: invalid base url %q", domain.ErrFetch, base)
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("%w: invalid reference %q", domain.ErrParse, ref)
	}
	return b.ResolveReference(r).String(), nil
}
