package session

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"cwscore/pkg/config"
	"cwscore/pkg/match"
	"cwscore/pkg/ocr"
)

// ImageOutcome reports what happened to one submitted screenshot. Failures here are
// per-image transients: the session keeps running and the operator sees the reason.
type ImageOutcome struct {
	Source   string `json:"source"`
	OK       bool   `json:"ok"`
	Reason   string `json:"reason,omitempty"`
	Readings int    `json:"readings"`
	Dropped  int    `json:"dropped"`
}

// Downloader fetches an attachment URL into dir and returns the local path.
type Downloader func(url, dir string) (string, error)

// Recognizer runs OCR over a processed image with an alphabet whitelist.
type Recognizer func(path, whitelist string) (string, error)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// DownloadAttachment is the default Downloader: plain GET with a timeout, content sniffed
// into a temp file. Non-image payloads are rejected before any OCR work.
func DownloadAttachment(url, dir string) (string, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download: unexpected status %s", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("not an image (content-type %s)", ct)
	}
	f, err := os.CreateTemp(dir, "screenshot-*.img")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("download body: %w", err)
	}
	return f.Name(), nil
}

// pipelineResult carries one image through download -> preprocess -> OCR -> parse -> match.
type pipelineResult struct {
	readings  ImageReadings
	tempFiles []string
	outcome   ImageOutcome
}

// processImage runs the full per-image pipeline. Every failure is contained to the outcome;
// the returned temp files are owned by the session and removed at its terminal transition.
func (m *Manager) processImage(gcfg config.GuildConfig, roster []match.RosterEntry, url string) pipelineResult {
	res := pipelineResult{outcome: ImageOutcome{Source: url}}
	res.readings.Source = url

	tempDir := gcfg.OCR.TempDir
	if tempDir != "" {
		if err := os.MkdirAll(tempDir, 0o755); err != nil {
			tempDir = ""
		}
	}
	local, err := m.Download(url, tempDir)
	if err != nil {
		res.outcome.Reason = err.Error()
		return res
	}
	res.tempFiles = append(res.tempFiles, local)

	img, err := ocr.PreprocessFile(local, gcfg.OCR.Preprocessing.Options())
	if err != nil {
		res.outcome.Reason = fmt.Sprintf("unreadable image: %v", err)
		return res
	}

	// OCR must see the processed pixels; either the retention ring keeps the artifact or it
	// becomes one more session temp file.
	var ocrPath string
	if gcfg.OCR.SaveProcessed && gcfg.OCR.ProcessedDir != "" {
		ocrPath, err = m.retentionFor(gcfg).Save(img, "LEADERBOARD")
		if err != nil {
			log.Printf("processed artifact save failed: %v", err)
		}
	}
	if ocrPath == "" {
		tmp, err := os.CreateTemp(tempDir, "processed-*.png")
		if err != nil {
			res.outcome.Reason = fmt.Sprintf("temp file: %v", err)
			return res
		}
		tmp.Close()
		if err := ocr.SaveImage(img, tmp.Name()); err != nil {
			os.Remove(tmp.Name())
			res.outcome.Reason = fmt.Sprintf("write processed: %v", err)
			return res
		}
		ocrPath = tmp.Name()
		res.tempFiles = append(res.tempFiles, ocrPath)
	}

	text, err := m.Recognize(ocrPath, gcfg.OCR.Alphabet)
	if err != nil {
		res.outcome.Reason = fmt.Sprintf("ocr failed: %v", err)
		return res
	}
	if gcfg.OCR.DetailedLogging.Enabled {
		log.Printf("ocr text source=%s: %q", url, ocr.Snippet(text, 200))
	}
	parsed := ocr.ParseLines(text)
	if len(parsed) == 0 {
		res.outcome.Reason = ocr.ErrNoReadings.Error()
		return res
	}

	matcher := &match.Matcher{
		Threshold:    gcfg.MatchThreshold(),
		LogThreshold: gcfg.OCR.DetailedLogging.SimilarityThreshold,
		Verbose:      gcfg.OCR.DetailedLogging.Enabled,
	}
	if matcher.LogThreshold <= 0 {
		matcher.LogThreshold = match.DefaultLogThreshold
	}
	for _, r := range parsed {
		best, ok := matcher.Best(r.Nick, roster)
		if !ok {
			res.outcome.Dropped++
			continue
		}
		res.readings.Readings = append(res.readings.Readings, MatchedReading{
			MemberID:  best.MemberID,
			Nick:      best.DisplayName,
			Score:     r.Score,
			Uncertain: r.Uncertain,
		})
	}
	res.outcome.Readings = len(res.readings.Readings)
	if res.outcome.Readings == 0 {
		res.outcome.Reason = "no tokens matched the roster"
		return res
	}
	res.outcome.OK = true
	return res
}
