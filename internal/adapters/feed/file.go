// Package feed supplies slot definitions from the human-editable markets
// file. Discovery appends blocks to the file; the monitor pulls from it.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/slotbot/internal/domain"
)

// The file is EST-labeled: "🕒 Slot: 2026-02-20 05:00 AM EST".
var est = time.FixedZone("EST", -5*3600)

var (
	labelRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})\s+(\d{1,2}):(\d{2})\s*(AM|PM)\s*EST`)
	yesRe   = regexp.MustCompile(`YES\s*:\s*(\d+)`)
	noRe    = regexp.MustCompile(`NO\s*:\s*(\d+)`)
)

// FileFeed reads slot definitions from the markets file.
type FileFeed struct {
	path     string
	assets   []string
	slotDur  time.Duration
	assetRes map[string]*regexp.Regexp
}

// NewFileFeed creates a feed over the given file for the given asset set.
func NewFileFeed(path string, assets []string, slotDur time.Duration) *FileFeed {
	res := make(map[string]*regexp.Regexp, len(assets))
	for _, a := range assets {
		res[a] = regexp.MustCompile(`^` + regexp.QuoteMeta(a) + `\s*:`)
	}
	return &FileFeed{path: path, assets: assets, slotDur: slotDur, assetRes: res}
}

// Pull returns up to max definitions starting after the given instant, in
// scheduled order. A missing file is exhaustion, not an error: discovery may
// still create it.
func (f *FileFeed) Pull(_ context.Context, max int, after time.Time) ([]domain.SlotDefinition, bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("feed: markets file missing", "path", f.path)
		return nil, true, nil
	}
	if err != nil {
		return nil, true, fmt.Errorf("feed.Pull: read %q: %w", f.path, err)
	}

	all := f.parse(string(data))
	var out []domain.SlotDefinition
	for _, def := range all {
		if !def.StartAt.After(after) {
			continue
		}
		out = append(out, def)
		if len(out) >= max {
			break
		}
	}
	return out, true, nil
}

// AppendSlots appends blocks for definitions not already in the file, keyed
// by slot label. Returns how many were added.
func (f *FileFeed) AppendSlots(defs []domain.SlotDefinition) (int, error) {
	existing := make(map[string]bool)
	if data, err := os.ReadFile(f.path); err == nil {
		for _, def := range f.parse(string(data)) {
			existing[def.Label] = true
		}
	}

	var sb strings.Builder
	added := 0
	for _, def := range defs {
		if existing[def.Label] {
			continue
		}
		sb.WriteString(formatBlock(def))
		sb.WriteString("\n")
		added++
	}
	if added == 0 {
		return 0, nil
	}

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("feed.AppendSlots: open %q: %w", f.path, err)
	}
	defer file.Close()
	if _, err := file.WriteString(sb.String()); err != nil {
		return 0, fmt.Errorf("feed.AppendSlots: write: %w", err)
	}
	return added, nil
}

// parse splits the file into slot blocks and keeps only slots where every
// configured asset has both token IDs.
func (f *FileFeed) parse(text string) []domain.SlotDefinition {
	var defs []domain.SlotDefinition

	for _, block := range strings.Split(text, "🕒 Slot:") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		label := strings.TrimSpace(lines[0])

		start, ok := parseLabel(label)
		if !ok {
			continue
		}

		markets := make(map[string]*domain.SlotMarket)
		var current *domain.SlotMarket
		for _, line := range lines[1:] {
			ls := strings.TrimSpace(line)
			if asset := f.matchAsset(ls); asset != "" {
				current = &domain.SlotMarket{Asset: asset}
				markets[asset] = current
				continue
			}
			if current == nil {
				continue
			}
			if m := yesRe.FindStringSubmatch(ls); m != nil {
				current.YesTokenID = m[1]
				continue
			}
			if m := noRe.FindStringSubmatch(ls); m != nil {
				current.NoTokenID = m[1]
			}
		}

		def := domain.SlotDefinition{
			Label:   label,
			StartAt: start,
			EndAt:   start.Add(f.slotDur),
		}
		complete := true
		for _, asset := range f.assets {
			m, ok := markets[asset]
			if !ok || m.YesTokenID == "" || m.NoTokenID == "" {
				complete = false
				break
			}
			def.Markets = append(def.Markets, *m)
		}
		if complete {
			defs = append(defs, def)
		}
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].StartAt.Before(defs[j].StartAt) })
	return defs
}

// matchAsset returns the asset symbol a line introduces, or "".
func (f *FileFeed) matchAsset(line string) string {
	for _, a := range f.assets {
		if f.assetRes[a].MatchString(line) {
			return a
		}
	}
	return ""
}

// parseLabel parses "2026-02-20 05:00 AM EST" into a time.
func parseLabel(label string) (time.Time, bool) {
	m := labelRe.FindStringSubmatch(label)
	if m == nil {
		return time.Time{}, false
	}
	date, err := time.Parse("2006-01-02", m[1])
	if err != nil {
		return time.Time{}, false
	}
	hour, _ := strconv.Atoi(m[2])
	minute, _ := strconv.Atoi(m[3])
	switch {
	case m[4] == "AM" && hour == 12:
		hour = 0
	case m[4] == "PM" && hour != 12:
		hour += 12
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, est), true
}

// formatBlock renders one slot in the pasteable file format.
func formatBlock(def domain.SlotDefinition) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🕒 Slot: %s\n", def.Label)
	for _, m := range def.Markets {
		fmt.Fprintf(&sb, "   %s:\n", m.Asset)
		fmt.Fprintf(&sb, "        ✅ YES: %s\n", m.YesTokenID)
		fmt.Fprintf(&sb, "        ❌ NO : %s\n", m.NoTokenID)
	}
	return sb.String()
}
