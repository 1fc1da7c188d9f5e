package kucoin

// envelope wraps every KuCoin REST response.
type envelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

type symbol struct {
	Symbol        string `json:"symbol"`
	BaseCurrency  string `json:"baseCurrency"`
	QuoteCurrency string `json:"quoteCurrency"`
	EnableTrading bool   `json:"enableTrading"`
}

type allTickers struct {
	Time   int64    `json:"time"`
	Ticker []ticker `json:"ticker"`
}

// ticker is one entry of /api/v1/market/allTickers. Numeric fields are
// decimal strings and may be null.
type ticker struct {
	Symbol   string `json:"symbol"`
	Buy      string `json:"buy"`
	Sell     string `json:"sell"`
	Vol      string `json:"vol"`
	VolValue string `json:"volValue"`
}
