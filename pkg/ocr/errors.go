package ocr

import "errors"

// ErrNoReadings is returned when recognized text yields no leaderboard rows at all.
var ErrNoReadings = errors.New("no leaderboard rows recognized")
