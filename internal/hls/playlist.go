package hls

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Segment is one media-sequence entry of a parsed playlist: its absolute
// source URL, the deterministic local filename it downloads to, and the
// encryption binding (if any) in effect when it was emitted. Index is the
// segment's 0-based position in playlist order (#EXT-X-MEDIA-SEQUENCE is not
// read), and is the value used for IV derivation when Encryption has no
// explicit IV (spec.md §4.4).
type Segment struct {
	Index      int             `json:"index"`
	URL        string          `json:"url"`
	LocalPath  string          `json:"local_path"`
	Encryption *EncryptionInfo `json:"encryption,omitempty"`
}

// acceptableContentTypes are the substrings spec.md §4.3 allows in a
// playlist response's Content-Type header (checked case-insensitively).
var acceptableContentTypes = []string{
	"mpegurl", "m3u8", "plain", "text", "application/octet-stream",
}

// FetchAndParsePlaylist retrieves playlistURL and parses it into an ordered
// segment list rooted at tempDir, per spec.md §4.3. The response is
// validated before parsing: 2xx status, an acceptable Content-Type when
// present, and a body beginning with #EXTM3U after leading whitespace.
func FetchAndParsePlaylist(client *http.Client, playlistURL, tempDir string, headers map[string]string) ([]Segment, error) {
	req, err := http.NewRequest(http.MethodGet, playlistURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaylistFetch, err)
	}
	ApplyHeaders(req, headers)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaylistFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{
			URL:        playlistURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: status %d", ErrPlaylistFetch, resp.StatusCode),
		}
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !hasAcceptableContentType(ct) {
		return nil, fmt.Errorf("%w: %q", ErrContentType, ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaylistFetch, err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(body), []byte("#EXTM3U")) {
		return nil, ErrNotM3U8
	}

	return parsePlaylistBody(client, playlistURL, tempDir, body, headers)
}

func hasAcceptableContentType(ct string) bool {
	lower := strings.ToLower(ct)
	for _, want := range acceptableContentTypes {
		if strings.Contains(lower, want) {
			return true
		}
	}
	return false
}

// parsePlaylistBody performs the line-wise scan of spec.md §4.3: it
// maintains a rolling encryption binding and a monotonic segment index,
// resolving .ts lines into Segment descriptors and fetching keys as
// #EXT-X-KEY tags are encountered.
func parsePlaylistBody(client *http.Client, playlistURL, tempDir string, body []byte, headers map[string]string) ([]Segment, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var segments []Segment
	var currentEncryption *EncryptionInfo
	index := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#EXT-X-KEY:") {
			attrs := parseExtXKey(line)
			enc, err := resolveEncryption(client, playlistURL, attrs, headers)
			if err != nil {
				return nil, err
			}
			currentEncryption = enc
			continue
		}

		if strings.HasSuffix(line, ".ts") {
			segURL := ResolveURL(playlistURL, line)
			segments = append(segments, Segment{
				Index:      index,
				URL:        segURL,
				LocalPath:  segmentFilename(tempDir, index),
				Encryption: currentEncryption,
			})
			index++
			continue
		}

		// Other #-prefixed tags and any remaining non-blank lines are ignored.
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaylistFetch, err)
	}

	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	return segments, nil
}

func segmentFilename(tempDir string, index int) string {
	return fmt.Sprintf("%s/part_%d.ts", tempDir, index)
}
