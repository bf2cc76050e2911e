package stock

import (
	"fmt"
	"strings"
	"time"

	"pvb-stock-bot/internal/catalog"
)

// Formatter renders feed data into the Markdown messages the bot sends.
// Timestamps are shown in the configured display timezone.
type Formatter struct {
	catalog *catalog.Catalog
	loc     *time.Location
	now     func() time.Time
}

// NewFormatter builds a formatter around the catalog and display timezone.
func NewFormatter(c *catalog.Catalog, loc *time.Location) *Formatter {
	return &Formatter{catalog: c, loc: loc, now: time.Now}
}

func (f *Formatter) clock() time.Time {
	return f.now().In(f.loc)
}

// StockMessage renders the current stock grouped into seeds and gear.
func (f *Formatter) StockMessage(rows []Row) string {
	if len(rows) == 0 {
		return "❌ *Could not fetch stock data*"
	}

	var seeds, gear []string
	for _, r := range rows {
		if r.DisplayName == "" || r.Multiplier <= 0 {
			continue
		}

		emoji, price := "📦", "Unknown"
		if it, ok := f.catalog.Item(r.DisplayName); ok {
			emoji, price = it.Emoji, it.Price
		}
		line := fmt.Sprintf("%s *%s*: x%d (%s)", emoji, r.DisplayName, r.Multiplier, price)

		switch r.Type {
		case "seeds":
			seeds = append(seeds, line)
		case "gear":
			gear = append(gear, line)
		}
	}

	var b strings.Builder
	b.WriteString("📊 *CURRENT STOCK*\n\n")
	b.WriteString("🌱 *SEEDS:*\n" + section(seeds) + "\n\n")
	b.WriteString("⚔️ *GEAR:*\n" + section(gear) + "\n\n")
	b.WriteString(fmt.Sprintf("🕒 _Updated: %s_", f.clock().Format("15:04:05 MST")))
	return b.String()
}

func section(lines []string) string {
	if len(lines) == 0 {
		return "_Empty_"
	}
	return strings.Join(lines, "\n")
}

// WeatherMessage renders the active weather, or the plain-weather text when
// row is nil or the event already ended.
func (f *Formatter) WeatherMessage(row *Row) string {
	const header = "🌤️ *IN-GAME WEATHER*\n\n"
	const plain = header + "_The weather is plain right now_"

	if row == nil {
		return plain
	}

	w, ok := f.catalog.Weather(row.ItemID)
	if !ok {
		w = catalog.Weather{ID: row.ItemID, Emoji: "🌤️", Name: "Unknown"}
	}

	if row.EndsAt == "" {
		return fmt.Sprintf("%s%s *%s weather*\n\n_End time unknown_", header, w.Emoji, w.Name)
	}

	endsAt, err := time.Parse(time.RFC3339, row.EndsAt)
	if err != nil {
		return fmt.Sprintf("%s%s *%s weather*", header, w.Emoji, w.Name)
	}

	now := f.clock()
	ends := endsAt.In(f.loc)
	if !ends.After(now) {
		return plain
	}

	minutesLeft := int(ends.Sub(now).Minutes())
	return fmt.Sprintf("%s%s *%s weather*\n\n⏰ Ends at: %s %s\n⏳ Time left: ~%d min",
		header, w.Emoji, w.Name, ends.Format("15:04"), ends.Format("MST"), minutesLeft)
}

// ChannelAlert renders the public rare-item restock alert.
func (f *Formatter) ChannelAlert(item string, count int) string {
	emoji, price := f.itemInfo(item)
	return fmt.Sprintf(
		"🚨 *RARE ITEM IN STOCK!* 🚨\n\n%s *%s*\n📦 Quantity: *x%d*\n💰 Price: %s\n🕒 %s",
		emoji, item, count, price, f.clock().Format("15:04:05 MST"))
}

// AutostockAlert renders the direct message for a subscribed user.
func (f *Formatter) AutostockAlert(item string, count int) string {
	emoji, price := f.itemInfo(item)
	return fmt.Sprintf(
		"🔔 *AUTOSTOCK: %s IS AVAILABLE!*\n\n%s *%s*\n📦 Quantity: *x%d*\n💰 Price: %s\n🕒 %s",
		strings.ToUpper(item), emoji, item, count, price, f.clock().Format("15:04:05 MST"))
}

func (f *Formatter) itemInfo(name string) (emoji, price string) {
	if it, ok := f.catalog.Item(name); ok {
		return it.Emoji, it.Price
	}
	return "📦", "Unknown"
}
