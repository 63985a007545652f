// Command cmd_debug_preproc writes the preprocessed variant of a screenshot next to the
// original so the binarization/denoise tuning can be inspected visually.
package main

import (
	"flag"
	"log"
	"strings"

	"cwscore/pkg/config"
	"cwscore/pkg/ocr"
)

func main() {
	imagePath := flag.String("image", "", "screenshot to preprocess")
	cfgPath := flag.String("config", "config/guilds.yaml", "guild config file")
	guildID := flag.String("guild", "", "guild whose preprocessing settings to use")
	out := flag.String("out", "", "output path (default <image>.processed.png)")
	flag.Parse()
	if *imagePath == "" {
		log.Fatal("-image is required")
	}

	opts := ocr.DefaultPreprocess()
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
	}

	img, err := ocr.PreprocessFile(*imagePath, opts)
	if err != nil {
		log.Fatalf("preprocess: %v", err)
	}
	target := *out
	if target == "" {
		target = strings.TrimSuffix(*imagePath, ".png") + ".processed.png"
	}
	if err := ocr.SaveImage(img, target); err != nil {
		log.Fatalf("save: %v", err)
	}
	log.Printf("wrote %s (threshold=%d upscale=%d)", target, opts.WhiteThreshold, opts.Upscale)
}
