package screener

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// UniverseSource supplies the raw symbol list for a market. Quality and
// availability are the source's concern; callers must tolerate failure.
type UniverseSource interface {
	Symbols(ctx context.Context, market string) ([]string, error)
}

// Static fallback universes per market, used when the live source fails.
// The engine must keep screening on provider outages.
var fallbackUniverse = map[string][]string{
	"NYSE": {
		"JPM", "BAC", "WFC", "GS", "MS", "C", "V", "MA", "AXP", "DIS",
		"WMT", "TGT", "HD", "LOW", "MCD", "KO", "PEP", "NKE", "BA", "CAT",
	},
	"NASDAQ": {
		"AAPL", "MSFT", "GOOGL", "AMZN", "META", "NVDA", "AMD", "TSLA",
		"NFLX", "INTC", "COST", "SBUX", "QCOM", "ADBE", "PYPL",
	},
	"LSE": {
		"HSBA.L", "BP.L", "SHEL.L", "AZN.L", "GSK.L", "ULVR.L", "RIO.L",
		"BARC.L", "LLOY.L", "VOD.L",
	},
	"ASX": {
		"BHP.AX", "CBA.AX", "CSL.AX", "NAB.AX", "WBC.AX", "ANZ.AX",
		"WES.AX", "MQG.AX", "FMG.AX", "WOW.AX",
	},
}

// YahooUniverse fetches a day-gainers screen from Yahoo Finance and falls
// back to a static list per market when the fetch fails.
type YahooUniverse struct {
	http   *resty.Client
	logger zerolog.Logger
}

func NewYahooUniverse(logger zerolog.Logger) *YahooUniverse {
	return &YahooUniverse{
		http: resty.New().
			SetBaseURL("https://query1.finance.yahoo.com").
			SetTimeout(10 * time.Second).
			SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"),
		logger: logger.With().Str("component", "YahooUniverse").Logger(),
	}
}

type yahooScreenResponse struct {
	Finance struct {
		Result []struct {
			Quotes []struct {
				Symbol   string `json:"symbol"`
				Exchange string `json:"exchange"`
			} `json:"quotes"`
		} `json:"result"`
	} `json:"finance"`
}

// Exchanges on the Yahoo screen accepted per market.
var yahooExchanges = map[string][]string{
	"NYSE":   {"NYQ"},
	"NASDAQ": {"NMS"},
	"LSE":    {"LSE"},
	"ASX":    {"ASX"},
}

// Symbols returns tradable symbols for a market. A live fetch failure is
// recovered with the static fallback list, never propagated.
func (u *YahooUniverse) Symbols(ctx context.Context, market string) ([]string, error) {
	symbols, err := u.fetchGainers(ctx, market)
	if err != nil || len(symbols) == 0 {
		u.logger.Warn().
			Err(err).
			Str("market", market).
			Msg("Universe fetch failed, using static fallback list")
		fallback, ok := fallbackUniverse[market]
		if !ok {
			return nil, fmt.Errorf("no universe available for market %s", market)
		}
		return fallback, nil
	}
	return symbols, nil
}

func (u *YahooUniverse) fetchGainers(ctx context.Context, market string) ([]string, error) {
	resp, err := u.http.R().
		SetContext(ctx).
		SetResult(&yahooScreenResponse{}).
		SetQueryParams(map[string]string{
			"formatted": "true",
			"lang":      "en-US",
			"region":    "US",
			"scrIds":    "day_gainers",
			"count":     "100",
		}).
		Get("/v1/finance/screener/predefined/saved")
	if err != nil {
		return nil, fmt.Errorf("error fetching universe: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("universe API error: %s", resp.Status())
	}

	body := resp.Result().(*yahooScreenResponse)
	if len(body.Finance.Result) == 0 {
		return nil, nil
	}

	accepted := yahooExchanges[market]
	var symbols []string
	for _, q := range body.Finance.Result[0].Quotes {
		for _, ex := range accepted {
			if q.Exchange == ex {
				symbols = append(symbols, q.Symbol)
				break
			}
		}
	}
	return symbols, nil
}

// StaticUniverse serves fixed symbol lists, used in mock mode and tests.
type StaticUniverse struct {
	Lists map[string][]string
}

func (s *StaticUniverse) Symbols(_ context.Context, market string) ([]string, error) {
	if list, ok := s.Lists[market]; ok {
		return list, nil
	}
	if list, ok := fallbackUniverse[market]; ok {
		return list, nil
	}
	return nil, fmt.Errorf("no universe available for market %s", market)
}
