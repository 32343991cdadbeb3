// Package fetch downloads the published contribution archives into a run directory.
package fetch

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

// maxMemberSize caps one extracted XML file.
const maxMemberSize = 2 << 30

// Failure names an archive that could not be downloaded or extracted.
type Failure struct {
	Archive string
	Err     error
}

// Result lists what a fetch produced.
type Result struct {
	Archives []string
	XMLFiles []string
	Failures []Failure
}

// Fetcher downloads archives over HTTP.
type Fetcher struct {
	client *http.Client
	logger zerolog.Logger
}

// NewFetcher creates a fetcher whose every request is bounded by timeout.
func NewFetcher(timeout time.Duration, logger zerolog.Logger) *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: timeout}, logger: logger}
}

// Fetch discovers the zip links on pageURL, downloads each into dir and extracts
// its XML members next to it. A failing archive is recorded and skipped.
func (f *Fetcher) Fetch(ctx context.Context, pageURL, dir string) (Result, error) {
	var result Result

	base, err := url.Parse(pageURL)
	if err != nil {
		return result, fmt.Errorf("invalid source url %q: %w", pageURL, err)
	}

	page, err := f.get(ctx, pageURL)
	if err != nil {
		return result, err
	}
	links, err := ZipLinks(base, page)
	page.Close()
	if err != nil {
		return result, err
	}
	f.logger.Info().Int("archives", len(links)).Str("url", pageURL).Msg("discovered archives")

	for _, link := range links {
		name := path.Base(link)
		zipPath := filepath.Join(dir, name)

		if err := f.download(ctx, link, zipPath); err != nil {
			f.logger.Error().Err(err).Str("archive", name).Msg("failed to download archive")
			result.Failures = append(result.Failures, Failure{Archive: name, Err: err})
			continue
		}
		result.Archives = append(result.Archives, zipPath)
		f.logger.Info().Str("archive", name).Msg("downloaded archive")

		files, err := Unzip(zipPath, dir)
		if err != nil {
			f.logger.Error().Err(err).Str("archive", name).Msg("failed to unzip archive")
			result.Failures = append(result.Failures, Failure{Archive: name, Err: err})
			continue
		}
		result.XMLFiles = append(result.XMLFiles, files...)
	}

	return result, nil
}

func (f *Fetcher) get(ctx context.Context, target string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", target, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch %s: status %s", target, resp.Status)
	}
	return resp.Body, nil
}

func (f *Fetcher) download(ctx context.Context, target, dst string) error {
	body, err := f.get(ctx, target)
	if err != nil {
		return err
	}
	defer body.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return out.Close()
}

// ZipLinks returns the absolute URLs of every anchor whose href ends in .zip,
// in page order and without duplicates.
func ZipLinks(base *url.URL, page io.Reader) ([]string, error) {
	tokenizer := html.NewTokenizer(page)
	seen := map[string]bool{}
	var links []string

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if err := tokenizer.Err(); err != io.EOF {
				return nil, fmt.Errorf("failed to parse download page: %w", err)
			}
			return links, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if token.Data != "a" {
				continue
			}
			for _, attr := range token.Attr {
				if attr.Key != "href" {
					continue
				}
				ref, err := url.Parse(strings.TrimSpace(attr.Val))
				if err != nil || !strings.EqualFold(path.Ext(ref.Path), ".zip") {
					continue
				}
				resolved := base.ResolveReference(ref).String()
				if !seen[resolved] {
					seen[resolved] = true
					links = append(links, resolved)
				}
			}
		}
	}
}

// Unzip extracts the .xml members of zipPath into dir, flattening any folder
// structure inside the archive. It returns the extracted paths.
func Unzip(zipPath, dir string) ([]string, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", zipPath, err)
	}
	defer reader.Close()

	var extracted []string
	for _, member := range reader.File {
		if member.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(filepath.FromSlash(member.Name))
		if !strings.EqualFold(filepath.Ext(name), ".xml") {
			continue
		}
		dst := filepath.Join(dir, name)
		if err := extractMember(member, dst); err != nil {
			return extracted, err
		}
		extracted = append(extracted, dst)
	}
	return extracted, nil
}

func extractMember(member *zip.File, dst string) error {
	src, err := member.Open()
	if err != nil {
		return fmt.Errorf("failed to open member %s: %w", member.Name, err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	written, err := io.Copy(out, io.LimitReader(src, maxMemberSize+1))
	if err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", member.Name, err)
	}
	if written > maxMemberSize {
		out.Close()
		return fmt.Errorf("member %s exceeds %d bytes", member.Name, int64(maxMemberSize))
	}
	return out.Close()
}
