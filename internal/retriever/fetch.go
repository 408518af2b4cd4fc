package retriever

import (
	"fmt"
	"io"
	"net/http"
)

const maxBodyBytes = 1 << 20

// defaultUserAgent is a browser-like identity; several HTML engines serve a
// degraded page to unknown clients.
const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// fetch performs a GET and returns the body, capped at 1MB. Non-200 responses
// are errors so adapters can treat them as empty result sets.
func fetch(client *http.Client, req *http.Request, userAgent string) ([]byte, error) {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}
