package imageutil

import (
	"bytes"
	"strings"

	"github.com/evanoberholster/imagemeta"
)

// Metadata is the subset of EXIF worth logging for an upload.
type Metadata struct {
	HasEXIF     bool
	CameraMake  string
	CameraModel string
	HasGPS      bool
}

// Inspect reads EXIF from data. Images without EXIF (most PNGs) report
// HasEXIF false; that is not an error.
func Inspect(data []byte) Metadata {
	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		return Metadata{}
	}

	md := Metadata{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
		HasGPS:      exifData.GPS.Latitude() != 0 || exifData.GPS.Longitude() != 0,
	}
	md.HasEXIF = md.HasGPS || md.CameraMake != "" || md.CameraModel != "" || !exifData.DateTimeOriginal().IsZero()
	return md
}
