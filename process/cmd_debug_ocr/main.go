// Command cmd_debug_ocr runs the leaderboard pipeline over a single screenshot and dumps
// the recognized text plus parsed readings. Useful when tuning preprocessing for a guild.
package main

import (
	"flag"
	"log"
	"os"

	"cwscore/pkg/config"
	"cwscore/pkg/ocr"
)

func main() {
	imagePath := flag.String("image", "", "screenshot to analyze")
	cfgPath := flag.String("config", "config/guilds.yaml", "guild config file")
	guildID := flag.String("guild", "", "guild whose OCR settings to use (defaults when empty)")
	rawOnly := flag.Bool("raw", false, "print raw OCR text only, skip parsing")
	flag.Parse()
	if *imagePath == "" {
		log.Fatal("-image is required")
	}

	opts := ocr.DefaultPreprocess()
	alphabet := ""
	if *guildID != "" {
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		gcfg, ok := cfg.Guild(*guildID)
		if !ok {
			log.Fatalf("guild %s not configured in %s", *guildID, *cfgPath)
		}
		opts = gcfg.OCR.Preprocessing.Options()
		alphabet = gcfg.OCR.Alphabet
	}

	img, err := ocr.PreprocessFile(*imagePath, opts)
	if err != nil {
		log.Fatalf("preprocess: %v", err)
	}
	tmp, err := os.CreateTemp("", "debug-ocr-*.png")
	if err != nil {
		log.Fatalf("temp file: %v", err)
	}
	tmp.Close()
	defer os.Remove(tmp.Name())
	if err := ocr.SaveImage(img, tmp.Name()); err != nil {
		log.Fatalf("save processed: %v", err)
	}

	text, err := ocr.Recognize(tmp.Name(), alphabet)
	if err != nil {
		log.Fatalf("ocr: %v", err)
	}
	log.Printf("raw text:\n%s", text)
	if *rawOnly {
		return
	}
	readings := ocr.ParseLines(text)
	log.Printf("parsed %d readings", len(readings))
	for _, r := range readings {
		marker := ""
		if r.Uncertain {
			marker = " (uncertain)"
		}
		log.Printf("  %s -> %d%s", r.Nick, r.Score, marker)
	}
}
