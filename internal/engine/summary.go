package engine

import (
	"fmt"
	"strings"

	"github.com/example/anatilbot/pkg/models"
)

// Level tier thresholds and progress bar size. These are presentation
// constants, not per-user settings.
const (
	silverXP    = 50
	goldXP      = 150
	barSegments = 10
)

// Level returns the tier name for an XP total: Bronze below 50, Silver below
// 150, Gold at 150 and above.
func Level(xp int) string {
	switch {
	case xp < silverXP:
		return "🥉 Бастауыш"
	case xp < goldXP:
		return "🥈 Орта"
	default:
		return "🥇 Жетік"
	}
}

// Bar renders the ten-segment progress bar, one segment per 10 XP.
func Bar(xp int) string {
	filled := xp / 10
	if filled > barSegments {
		filled = barSegments
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", barSegments-filled)
}

// Summary renders the short progress block used in feedback screens.
func Summary(rec *models.ProgressRecord) string {
	return fmt.Sprintf("📊 Прогресс: %s %d XP\n🏆 Ұпай: %d\n🔥 Деңгей: %s",
		Bar(rec.XP), rec.XP, rec.Score, Level(rec.XP))
}

// ProgressScreen renders the standalone progress view for the /progress
// command and the progress menu button.
func ProgressScreen(rec *models.ProgressRecord) string {
	return fmt.Sprintf("📊 Сенің нәтижелерің:\n\n📘 Көрген сөздер: %d\n🏆 Ұпай: %d\n🔥 XP: %d\n%s\n📈 Деңгей: %s",
		len(rec.UsedItems[models.CategoryWords]), rec.Score, rec.XP, Bar(rec.XP), Level(rec.XP))
}
