package manifest

import (
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zip"
)

const manifestEntryName = "AndroidManifest.xml"

// ErrNotAPK is returned when the given file is not a zip archive at all.
var ErrNotAPK = errors.New("file is not an apk")

// ErrNoManifestEntry is returned when the archive lacks AndroidManifest.xml.
var ErrNoManifestEntry = errors.New("apk contains no AndroidManifest.xml")

// FromAPK extracts and normalizes the binary manifest from a local apk
// file. The file's content type is sniffed first so a mislabeled file
// fails here rather than after a pointless push to the device.
func FromAPK(path string) (Manifest, error) {
	kind, err := mimetype.DetectFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read apk %s: %w", path, err)
	}
	if !kind.Is("application/zip") && !kind.Is("application/jar") &&
		!kind.Is("application/vnd.android.package-archive") {
		return Manifest{}, fmt.Errorf("%w: %s has content type %s", ErrNotAPK, path, kind.String())
	}

	archive, err := zip.OpenReader(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to open apk %s: %w", path, err)
	}
	defer archive.Close()

	for _, entry := range archive.File {
		if entry.Name != manifestEntryName {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return Manifest{}, fmt.Errorf("failed to open manifest in %s: %w", path, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return Manifest{}, fmt.Errorf("failed to read manifest in %s: %w", path, err)
		}
		return decodeAXML(data)
	}
	return Manifest{}, fmt.Errorf("%w: %s", ErrNoManifestEntry, path)
}
