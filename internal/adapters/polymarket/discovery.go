package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/slotbot/internal/domain"
)

// cryptoSlugs maps asset symbols to the slug names Gamma uses for the
// hourly up-or-down markets.
var cryptoSlugs = map[string]string{
	"BTC": "bitcoin",
	"ETH": "ethereum",
	"SOL": "solana",
	"XRP": "xrp",
}

// gammaMarket is the subset of the Gamma market payload we care about.
// clobTokenIds comes as a JSON array encoded inside a string.
type gammaMarket struct {
	ClobTokenIDs string `json:"clobTokenIds"`
}

// FetchUpcomingSlots builds definitions for the next count hourly slots by
// resolving each asset's up-or-down market slug against the Gamma API.
// All per-market requests run concurrently; the client's limiter paces them.
// Slots where any asset failed to resolve are dropped — the file parser
// rejects partial slots anyway.
func (c *Client) FetchUpcomingSlots(ctx context.Context, assets []string, count int) ([]domain.SlotDefinition, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("polymarket.FetchUpcomingSlots: load tz: %w", err)
	}
	startHour := time.Now().In(loc).Truncate(time.Hour).Add(time.Hour)

	type key struct {
		slot  int
		asset string
	}
	results := make(map[key][2]string) // yes, no token IDs
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < count; i++ {
		target := startHour.Add(time.Duration(i) * time.Hour)
		for _, asset := range assets {
			slugName, ok := cryptoSlugs[asset]
			if !ok {
				slog.Warn("discovery: no slug mapping for asset", "asset", asset)
				continue
			}
			slug := fmt.Sprintf("%s-up-or-down-%s", slugName, timeSlug(target))

			wg.Add(1)
			go func(i int, asset, slug string) {
				defer wg.Done()
				yes, no, err := c.fetchMarketTokens(ctx, slug)
				if err != nil {
					slog.Debug("discovery: market not resolvable", "slug", slug, "err", err)
					return
				}
				mu.Lock()
				results[key{i, asset}] = [2]string{yes, no}
				mu.Unlock()
			}(i, asset, slug)
		}
	}
	wg.Wait()

	var defs []domain.SlotDefinition
	for i := 0; i < count; i++ {
		target := startHour.Add(time.Duration(i) * time.Hour)
		def := domain.SlotDefinition{
			Label:   slotLabel(target),
			StartAt: target,
			EndAt:   target.Add(time.Hour),
		}
		complete := true
		for _, asset := range assets {
			toks, ok := results[key{i, asset}]
			if !ok {
				complete = false
				break
			}
			def.Markets = append(def.Markets, domain.SlotMarket{
				Asset:      asset,
				YesTokenID: toks[0],
				NoTokenID:  toks[1],
			})
		}
		if !complete {
			slog.Debug("discovery: dropping slot with missing markets", "slot", def.Label)
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// fetchMarketTokens resolves one market slug to its YES/NO token IDs.
func (c *Client) fetchMarketTokens(ctx context.Context, slug string) (yes, no string, err error) {
	var m gammaMarket
	u := fmt.Sprintf("%s/markets/slug/%s", c.gammaBase, slug)
	if err := c.get(ctx, c.gammaLimiter, u, &m); err != nil {
		return "", "", err
	}

	var tokens []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokens); err != nil {
		return "", "", fmt.Errorf("parse clobTokenIds %q: %w", m.ClobTokenIDs, err)
	}
	if len(tokens) < 2 || tokens[0] == "" || tokens[1] == "" {
		return "", "", fmt.Errorf("market %s has %d tokens", slug, len(tokens))
	}
	return tokens[0], tokens[1], nil
}

// timeSlug formats a slot start as Gamma expects: "february-20-5am-et".
func timeSlug(t time.Time) string {
	month := strings.ToLower(t.Format("January"))
	hour := t.Format("3PM") // no leading zero
	return fmt.Sprintf("%s-%d-%s-et", month, t.Day(), strings.ToLower(hour))
}

// slotLabel formats a slot start the way the markets file expects.
func slotLabel(t time.Time) string {
	return t.Format("2006-01-02 03:04 PM") + " EST"
}
