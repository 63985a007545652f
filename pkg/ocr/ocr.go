package ocr

import (
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// DefaultAlphabet is the recognizer whitelist: Latin letters, Polish diacritics, digits and
// the basic punctuation that occurs in nicknames, plus the © glyph Tesseract emits on
// low-confidence leaderboard rows.
const DefaultAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz" +
	"ĄĆĘŁŃÓŚŹŻąćęłńóśźż0123456789 ._-()©"

// Recognize runs Tesseract over the preprocessed image at path with the given whitelist and
// returns the raw recognized text with line breaks preserved. An empty whitelist falls back
// to DefaultAlphabet. The recognizer itself is externally maintained; this adapter only
// constrains its alphabet.
func Recognize(path, whitelist string) (string, error) {
	if whitelist == "" {
		whitelist = DefaultAlphabet
	}
	client := gosseract.NewClient()
	defer client.Close()
	_ = client.SetLanguage("pol", "eng")
	_ = client.SetWhitelist(whitelist)
	_ = client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK)
	if err := client.SetImage(path); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr error: %w", err)
	}
	return text, nil
}
