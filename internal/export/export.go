// Package export bundles mockup images into a ZIP download.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"

	"github.com/fpang/aop-fashion-mockup/internal/dataurl"
	"github.com/fpang/aop-fashion-mockup/internal/studio"
)

// FlatFilename is the download name of a result's flat product shot.
func FlatFilename(id string, img *dataurl.Image) string {
	return "garment-" + id + img.Extension()
}

// WornFilename is the download name of a result's worn editorial shot.
func WornFilename(id string, img *dataurl.Image) string {
	return "editorial-" + id + img.Extension()
}

// WriteZip writes one ZIP archive holding the flat and worn image of every
// result. Entries are stored uncompressed: the images are already compressed.
func WriteZip(w io.Writer, results []studio.MockupResult) error {
	zw := zip.NewWriter(w)

	var count, total int
	for _, r := range results {
		modTime := r.CreatedAt
		if modTime.IsZero() {
			modTime = time.Now()
		}
		files := []struct {
			name string
			img  *dataurl.Image
		}{
			{FlatFilename(r.ID, r.Flat), r.Flat},
			{WornFilename(r.ID, r.Worn), r.Worn},
		}
		for _, f := range files {
			if f.img == nil {
				continue
			}
			header := &zip.FileHeader{
				Name:   f.name,
				Method: zip.Store,
			}
			header.SetModTime(modTime)

			entry, err := zw.CreateHeader(header)
			if err != nil {
				return fmt.Errorf("create ZIP entry for %s: %w", f.name, err)
			}
			if _, err := entry.Write(f.img.Data); err != nil {
				return fmt.Errorf("write ZIP entry for %s: %w", f.name, err)
			}
			count++
			total += len(f.img.Data)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize ZIP: %w", err)
	}

	log.Debug().Int("files", count).Int("bytes", total).Msg("Export ZIP written")
	return nil
}
