package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the hex HMAC-SHA256 of timestamp+apiKey+recvWindow+payload
// keyed with secret, as required by the v5 authentication headers.
func Sign(secret, ts, apiKey, recvWindow, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + apiKey + recvWindow + payload))
	return hex.EncodeToString(mac.Sum(nil))
}
