package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"indexflow/logger"
)

// FetchSpotSymbols discovers the online spot symbols quoted in the given
// currency from the exchange REST API. Used when no assets file is configured.
func FetchSpotSymbols(ctx context.Context, client *http.Client, restURL, quote string) ([]string, error) {
	log := logger.GetLogger().WithComponent("feed_symbols")

	url := strings.TrimRight(restURL, "/") + "/api/v2/spot/public/symbols"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build symbols request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch symbols: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("symbols request returned status %d", resp.StatusCode)
	}

	var wrapper struct {
		Code string `json:"code"`
		Data []struct {
			Symbol    string `json:"symbol"`
			QuoteCoin string `json:"quoteCoin"`
			Status    string `json:"status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return nil, fmt.Errorf("failed to decode symbols response: %w", err)
	}
	if wrapper.Code != "" && wrapper.Code != "00000" {
		return nil, fmt.Errorf("symbols request returned code %s", wrapper.Code)
	}

	quote = strings.ToUpper(quote)
	symbols := make([]string, 0, len(wrapper.Data))
	for _, s := range wrapper.Data {
		if s.Status != "online" {
			continue
		}
		if quote != "" && s.QuoteCoin != quote {
			continue
		}
		symbols = append(symbols, s.Symbol)
	}

	log.WithFields(logger.Fields{"symbols": len(symbols), "quote": quote}).Info("fetched spot symbols")
	return symbols, nil
}
