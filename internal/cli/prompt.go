package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

// ImagePatterns are the file dialog filters for image inputs.
var ImagePatterns = []string{"*.png", "*.jpg", "*.jpeg", "*.webp", "*.gif"}

// PromptForFile asks the user for an image file, first with a native file
// dialog and, if no dialog can be shown, on stdin. It returns "" when the
// user cancels or enters nothing.
func PromptForFile(title string) string {
	path, err := zenity.SelectFile(
		zenity.Title(title),
		zenity.FileFilters{
			{Name: "Images", Patterns: ImagePatterns},
		},
	)
	if err == nil {
		return path
	}
	if errors.Is(err, zenity.ErrCanceled) {
		return ""
	}

	log.Debug().Err(err).Msg("File dialog unavailable, falling back to stdin")
	return ReadLine(os.Stdin, os.Stdout, title)
}

// ReadLine prints label and returns the trimmed line read from r.
func ReadLine(r io.Reader, w io.Writer, label string) string {
	fmt.Fprintf(w, "%s: ", label)

	input, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		log.Warn().Err(err).Msg("Failed to read input")
		return ""
	}
	return strings.TrimSpace(input)
}
