package data

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "nse-backtester/internal/errors"
)

// Exchange suffixes used by Yahoo tickers.
var tickerSuffixes = []string{".NS", ".BO"}

// LoadUniverse reads one ticker per line, skipping blank lines and # comments.
func LoadUniverse(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewDataError("universe", "", "universe file not found: "+path, apperrors.ErrDataNotFound)
		}
		return nil, apperrors.NewDataError("universe", "", "open "+path, err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.NewDataError("universe", "", "read "+path, err)
	}
	return out, nil
}

// CachePath returns <dir>/<ticker>_<interval>.csv, creating dir if needed.
func CachePath(dir, ticker, interval string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.csv", ticker, interval)), nil
}

// SymbolFromTicker strips the exchange suffix: "INFY.NS" becomes "INFY".
func SymbolFromTicker(ticker string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	for _, suffix := range tickerSuffixes {
		if strings.HasSuffix(t, suffix) {
			return strings.TrimSuffix(t, suffix)
		}
	}
	return t
}

// FindCached locates the cached file for symbol, trying the NSE ticker first
// and then the bare symbol.
func FindCached(dir, symbol, interval string) (string, error) {
	for _, ticker := range []string{symbol + ".NS", symbol} {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", ticker, interval))
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", apperrors.NewDataError("cache", symbol, "no cached bars in "+dir, apperrors.ErrDataNotFound)
}
