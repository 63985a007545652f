// Package config loads per-guild settings from a YAML file and serves them to the rest of
// the service, with optional hot reload when the file changes on disk.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"cwscore/pkg/match"
	"cwscore/pkg/ocr"
)

// PreprocessingConfig mirrors ocr.PreprocessOptions in YAML form.
type PreprocessingConfig struct {
	WhiteThreshold uint8   `yaml:"white_threshold"`
	Contrast       float64 `yaml:"contrast"`
	Brightness     float64 `yaml:"brightness"`
	Gamma          float64 `yaml:"gamma"`
	Median         int     `yaml:"median"`
	Blur           float64 `yaml:"blur"`
	Upscale        int     `yaml:"upscale"`
}

// Options converts the YAML block into the preprocessing tunable set, falling back to the
// production defaults when the block is absent (zero value).
func (p PreprocessingConfig) Options() ocr.PreprocessOptions {
	if p == (PreprocessingConfig{}) {
		return ocr.DefaultPreprocess()
	}
	return ocr.PreprocessOptions{
		WhiteThreshold: p.WhiteThreshold,
		Contrast:       p.Contrast,
		Brightness:     p.Brightness,
		Gamma:          p.Gamma,
		Median:         p.Median,
		Blur:           p.Blur,
		Upscale:        p.Upscale,
	}
}

// DetailedLogging gates verbose per-token match diagnostics.
type DetailedLogging struct {
	Enabled             bool    `yaml:"enabled"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"` // near-miss log floor, not a match threshold
}

// OCRConfig holds the recognizer and artifact-retention settings of one guild.
type OCRConfig struct {
	Alphabet          string              `yaml:"alphabet"`
	Preprocessing     PreprocessingConfig `yaml:"preprocessing"`
	SaveProcessed     bool                `yaml:"save_processed"`
	ProcessedDir      string              `yaml:"processed_dir"`
	MaxProcessedFiles int                 `yaml:"max_processed_files"`
	TempDir           string              `yaml:"temp_dir"`
	MatchThreshold    float64             `yaml:"match_threshold"`
	DetailedLogging   DetailedLogging     `yaml:"detailed_logging"`
}

// PointLimits belongs to the punishment collaborator but lives in the same guild config file.
type PointLimits struct {
	PunishmentRole int `yaml:"punishment_role"`
	LotteryBan     int `yaml:"lottery_ban"`
}

// GuildConfig is the full recognized option set for one guild.
type GuildConfig struct {
	TargetRoles        map[string]string `yaml:"target_roles"`       // clan key -> role id
	RoleDisplayNames   map[string]string `yaml:"role_display_names"` // clan key -> label
	AllowedPunishRoles []string          `yaml:"allowed_punish_roles"`
	Timezone           string            `yaml:"timezone"`
	OCR                OCRConfig         `yaml:"ocr"`
	PointLimits        PointLimits       `yaml:"point_limits"`
}

// Location resolves the guild's civil timezone, defaulting to Europe/Warsaw (the source
// community's), and finally UTC when the name cannot be loaded.
func (g GuildConfig) Location() *time.Location {
	name := g.Timezone
	if name == "" {
		name = "Europe/Warsaw"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MatchThreshold returns the configured minimum similarity, defaulting to match.DefaultThreshold.
func (g GuildConfig) MatchThreshold() float64 {
	if g.OCR.MatchThreshold > 0 {
		return g.OCR.MatchThreshold
	}
	return match.DefaultThreshold
}

// ClanLabel returns the human label for a clan key, falling back to the key itself.
func (g GuildConfig) ClanLabel(clan string) string {
	if label, ok := g.RoleDisplayNames[clan]; ok && label != "" {
		return label
	}
	return clan
}

// File is the on-disk document: a map of guild id to guild config.
type File struct {
	Guilds map[string]GuildConfig `yaml:"guilds"`
}

// Provider serves guild configs behind a RWMutex so hot reloads never race readers.
type Provider struct {
	mu   sync.RWMutex
	path string
	file File
}

// Load reads and parses the YAML config at path.
func Load(path string) (*Provider, error) {
	p := &Provider{path: path}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the config file, swapping the served copy only on success.
func (p *Provider) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	p.mu.Lock()
	p.file = f
	p.mu.Unlock()
	return nil
}

// Guild returns the configuration for one guild. ok=false means the guild is not configured,
// which callers treat as fatal for session opening.
func (p *Provider) Guild(id string) (GuildConfig, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	g, ok := p.file.Guilds[id]
	return g, ok
}

// GuildIDs lists the configured guilds, mainly for startup logging.
func (p *Provider) GuildIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.file.Guilds))
	for id := range p.file.Guilds {
		out = append(out, id)
	}
	return out
}
