// Package discordfeed passively reads a cooperating bot's restock embeds
// and turns them into stock snapshots, so restocks reach subscribers between
// two feed polls.
package discordfeed

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"pvb-stock-bot/internal/catalog"
	"pvb-stock-bot/internal/stock"
)

// ItemCount is one parsed restock line, already resolved to a catalog name.
type ItemCount struct {
	Name  string
	Count int
}

// ParseResult is everything extracted from one restock embed. Gaps carries
// the lines that looked like restock entries but resolved to no catalog
// item; callers log them instead of dropping them silently.
type ParseResult struct {
	Items []ItemCount
	Gaps  []string
}

// Restock lines come in two shapes: "<emoji> Name x3" and "x3 Name". The
// emoji prefix is anything before the first letter.
var (
	trailingQty = regexp.MustCompile(`^(.*?)\s*[x×]\s*(\d+)\s*$`)
	leadingQty  = regexp.MustCompile(`^[x×]\s*(\d+)\s+(.*)$`)
)

// ParseEmbed extracts restock entries from an embed's description and
// fields. Lines without a quantity marker are ignored; they are headers and
// decoration, not entries.
func ParseEmbed(cat *catalog.Catalog, embed *discordgo.MessageEmbed) ParseResult {
	var res ParseResult
	if embed == nil {
		return res
	}

	parseBlock(cat, embed.Description, &res)
	for _, f := range embed.Fields {
		if f != nil {
			parseBlock(cat, f.Value, &res)
		}
	}
	return res
}

// IsRestock reports whether the embed announces a shop restock.
func IsRestock(embed *discordgo.MessageEmbed) bool {
	return embed != nil && strings.Contains(strings.ToLower(embed.Title), "restock")
}

// Snapshot converts parsed entries into the snapshot shape the notifier
// consumes.
func (r ParseResult) Snapshot() stock.Snapshot {
	snap := make(stock.Snapshot, len(r.Items))
	for _, it := range r.Items {
		snap[it.Name] = it.Count
	}
	return snap
}

func parseBlock(cat *catalog.Catalog, text string, res *ParseResult) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(stripMarkdown(line))
		if line == "" {
			continue
		}

		raw, count, ok := splitQuantity(line)
		if !ok {
			continue
		}

		name, known := cat.Resolve(stripDecoration(raw))
		if !known {
			res.Gaps = append(res.Gaps, line)
			continue
		}
		if count > 0 {
			res.Items = append(res.Items, ItemCount{Name: name, Count: count})
		}
	}
}

func splitQuantity(line string) (name string, count int, ok bool) {
	if m := leadingQty.FindStringSubmatch(line); m != nil {
		n, err := strconv.Atoi(m[1])
		return m[2], n, err == nil
	}
	if m := trailingQty.FindStringSubmatch(line); m != nil && m[1] != "" {
		n, err := strconv.Atoi(m[2])
		return m[1], n, err == nil
	}
	return "", 0, false
}

func stripMarkdown(s string) string {
	return strings.NewReplacer("*", "", "_", "", "`", "").Replace(s)
}

// stripDecoration drops everything before the first letter or digit, which
// removes emoji and bullet prefixes without naming every emoji in use.
func stripDecoration(s string) string {
	for i, r := range s {
		if r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			return strings.TrimSpace(s[i:])
		}
	}
	return strings.TrimSpace(s)
}
