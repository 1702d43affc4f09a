package alpaca

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Bar is a single daily OHLCV bar from the Alpaca data API
type Bar struct {
	Timestamp string  `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

type barsResponse struct {
	Bars []Bar `json:"bars"`
}

// Client fetches historical daily bars from Alpaca Market Data
type Client struct {
	client    *http.Client
	baseURL   string
	keyID     string
	secretKey string
	log       zerolog.Logger
}

// NewClient creates a new Alpaca data client
func NewClient(baseURL, keyID, secretKey string, log zerolog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:   baseURL,
		keyID:     keyID,
		secretKey: secretKey,
		log:       log.With().Str("client", "alpaca").Logger(),
	}
}

// GetDailyBar fetches the daily bar for a ticker on a given date.
// Returns (nil, nil) when the market produced no bar for that date -
// weekends and holidays are an expected miss, not an error.
func (c *Client) GetDailyBar(ticker string, day time.Time) (*Bar, error) {
	start := day.Format("2006-01-02T00:00:00Z")
	end := day.AddDate(0, 0, 1).Format("2006-01-02T00:00:00Z")

	endpoint := fmt.Sprintf("%s/%s/bars", c.baseURL, strings.ToUpper(ticker))

	params := url.Values{}
	params.Set("start", start)
	params.Set("end", end)
	params.Set("limit", "1")
	params.Set("timeframe", "1Day")

	req, err := http.NewRequest(http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build bars request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bars: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alpaca bars request failed with status %d", resp.StatusCode)
	}

	var body barsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode bars response: %w", err)
	}

	if len(body.Bars) == 0 {
		c.log.Debug().
			Str("ticker", ticker).
			Str("date", day.Format("2006-01-02")).
			Msg("No bar for date")
		return nil, nil
	}

	return &body.Bars[0], nil
}
