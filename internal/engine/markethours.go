package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"equity-trading-bot/config"
)

// IsMarketOpen reports whether the market is inside its regular session at
// the given instant. Weekends are always closed. Sessions that cross
// midnight local time are supported.
func IsMarketOpen(m config.MarketConfig, now time.Time) bool {
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return false
	}
	local := now.In(loc)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	open, err := minutesOfDay(m.OpenTime)
	if err != nil {
		return false
	}
	closeAt, err := minutesOfDay(m.CloseTime)
	if err != nil {
		return false
	}

	minute := local.Hour()*60 + local.Minute()
	if open <= closeAt {
		return minute >= open && minute < closeAt
	}
	// Session wraps midnight.
	return minute >= open || minute < closeAt
}

// AnyMarketOpen reports whether at least one configured market is trading.
func AnyMarketOpen(markets []config.MarketConfig, now time.Time) bool {
	for _, m := range markets {
		if IsMarketOpen(m, now) {
			return true
		}
	}
	return false
}

// OpenMarkets returns the names of all markets currently in session.
func OpenMarkets(markets []config.MarketConfig, now time.Time) []string {
	var open []string
	for _, m := range markets {
		if IsMarketOpen(m, now) {
			open = append(open, m.Name)
		}
	}
	return open
}

func minutesOfDay(hhmm string) (int, error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", hhmm)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", hhmm)
	}
	return hour*60 + minute, nil
}
