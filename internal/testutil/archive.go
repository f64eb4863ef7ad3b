package testutil

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// TarEntry is one decoded archive member.
type TarEntry struct {
	Type     byte
	Mode     int64
	Linkname string
	Content  string
	PAX      map[string]string
}

// ReadTar decodes an uncompressed tar file keyed by entry name.
func ReadTar(t *testing.T, path string) map[string]TarEntry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()
	return readEntries(t, f)
}

// ReadArtifact decodes a gzip, zstd or xz compressed tar file keyed by entry name.
func ReadArtifact(t *testing.T, path string) map[string]TarEntry {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}

	var r io.Reader
	switch {
	case bytes.HasPrefix(data, []byte{0x1f, 0x8b}):
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("gzip reader: %v", err)
		}
		defer zr.Close()
		r = zr
	case bytes.HasPrefix(data, []byte{0x28, 0xb5, 0x2f, 0xfd}):
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("zstd reader: %v", err)
		}
		defer zr.Close()
		r = zr
	case bytes.HasPrefix(data, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}):
		zr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("xz reader: %v", err)
		}
		r = zr
	default:
		t.Fatalf("%s is not gzip, zstd or xz compressed", path)
	}
	return readEntries(t, r)
}

func readEntries(t *testing.T, r io.Reader) map[string]TarEntry {
	t.Helper()
	entries := make(map[string]TarEntry)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading tar entry: %v", err)
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("reading %s: %v", hdr.Name, err)
		}
		entries[hdr.Name] = TarEntry{
			Type:     hdr.Typeflag,
			Mode:     hdr.Mode,
			Linkname: hdr.Linkname,
			Content:  string(content),
			PAX:      hdr.PAXRecords,
		}
	}
	return entries
}
