package hls

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchAndParsePlaylistMultiSegmentAndKeyBinding(t *testing.T) {
	keyBytes := []byte("0123456789abcdef")

	mux := http.NewServeMux()
	mux.HandleFunc("/key.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Write(keyBytes)
	})
	mux.HandleFunc("/playlist.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		w.Write([]byte("#EXTM3U\n" +
			"#EXT-X-TARGETDURATION:10\n" +
			"seg0.ts\n" +
			"#EXT-X-KEY:METHOD=AES-128,URI=\"key.bin\"\n" +
			"seg1.ts\n" +
			"seg2.ts\n" +
			"#EXT-X-KEY:METHOD=NONE\n" +
			"seg3.ts\n" +
			"#EXT-X-ENDLIST\n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	segments, err := FetchAndParsePlaylist(srv.Client(), srv.URL+"/playlist.m3u8", "/tmp/task1", nil)
	if err != nil {
		t.Fatalf("FetchAndParsePlaylist returned error: %v", err)
	}
	if len(segments) != 4 {
		t.Fatalf("got %d segments, want 4", len(segments))
	}

	if segments[0].Encryption != nil {
		t.Errorf("segment 0 should be unencrypted before the first #EXT-X-KEY")
	}
	if segments[1].Encryption == nil || segments[2].Encryption == nil {
		t.Fatalf("segments 1 and 2 should share the AES-128 binding")
	}
	if segments[1].Encryption != segments[2].Encryption {
		t.Errorf("segments 1 and 2 should share the same *EncryptionInfo pointer")
	}
	if string(segments[1].Encryption.Key) != string(keyBytes) {
		t.Errorf("segment 1 key = %q, want %q", segments[1].Encryption.Key, keyBytes)
	}
	if segments[3].Encryption != nil {
		t.Errorf("segment 3 should be unencrypted after METHOD=NONE")
	}

	for i, seg := range segments {
		if seg.Index != i {
			t.Errorf("segment %d has Index %d", i, seg.Index)
		}
		wantURL := srv.URL + "/seg" + string(rune('0'+i)) + ".ts"
		if seg.URL != wantURL {
			t.Errorf("segment %d URL = %q, want %q", i, seg.URL, wantURL)
		}
		wantLocal := "/tmp/task1/part_" + string(rune('0'+i)) + ".ts"
		if seg.LocalPath != wantLocal {
			t.Errorf("segment %d LocalPath = %q, want %q", i, seg.LocalPath, wantLocal)
		}
	}
}

func TestFetchAndParsePlaylistRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := FetchAndParsePlaylist(srv.Client(), srv.URL+"/missing.m3u8", "/tmp/task", nil)
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *HTTPStatusError, got %v (%T)", err, err)
	}
	if statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", statusErr.StatusCode)
	}
}

func TestFetchAndParsePlaylistRejectsBadContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("#EXTM3U\nseg0.ts\n"))
	}))
	defer srv.Close()

	_, err := FetchAndParsePlaylist(srv.Client(), srv.URL+"/playlist.m3u8", "/tmp/task", nil)
	if !errors.Is(err, ErrContentType) {
		t.Fatalf("expected ErrContentType, got %v", err)
	}
}

func TestFetchAndParsePlaylistRejectsNonM3U8Body(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not a playlist</html>"))
	}))
	defer srv.Close()

	_, err := FetchAndParsePlaylist(srv.Client(), srv.URL+"/playlist.m3u8", "/tmp/task", nil)
	if !errors.Is(err, ErrNotM3U8) {
		t.Fatalf("expected ErrNotM3U8, got %v", err)
	}
}

func TestFetchAndParsePlaylistRejectsEmptySegmentList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n#EXT-X-ENDLIST\n"))
	}))
	defer srv.Close()

	_, err := FetchAndParsePlaylist(srv.Client(), srv.URL+"/playlist.m3u8", "/tmp/task", nil)
	if !errors.Is(err, ErrNoSegments) {
		t.Fatalf("expected ErrNoSegments, got %v", err)
	}
}

func TestFetchAndParsePlaylistRootRelativeSegments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n/media/seg0.ts\n"))
	}))
	defer srv.Close()

	segments, err := FetchAndParsePlaylist(srv.Client(), srv.URL+"/a/b/playlist.m3u8", "/tmp/task", nil)
	if err != nil {
		t.Fatalf("FetchAndParsePlaylist returned error: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(segments))
	}
	want := srv.URL + "/media/seg0.ts"
	if segments[0].URL != want {
		t.Errorf("segment 0 URL = %q, want %q", segments[0].URL, want)
	}
}
