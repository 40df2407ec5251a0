package config

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nao1215/pagefetch/internal/model"
)

// LoadURLs reads the site list at path. See ParseURLs for the format.
func LoadURLs(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided list path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open URL list: %w", err)
	}
	defer f.Close()

	urls, err := ParseURLs(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return urls, nil
}

// ParseURLs parses a ';'-delimited site list. The first field of each
// record is the site; further fields are ignored. Lines starting with '#'
// and blank lines are skipped. Sites without an http:// or https:// prefix
// get http://. Order and duplicates are preserved.
func ParseURLs(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var urls []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse URL list: %w", err)
		}

		site := strings.TrimSpace(record[0])
		if site == "" {
			continue
		}
		urls = append(urls, model.NormalizeURL(site))
	}

	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	return urls, nil
}

// LoadProxies reads the proxy list at path. See ParseProxies for the format.
func LoadProxies(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided list path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open proxy list: %w", err)
	}
	defer f.Close()

	proxies, err := ParseProxies(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return proxies, nil
}

// ParseProxies parses one proxy address per line. Blank lines and lines
// starting with '#' are skipped. Every address is validated with
// model.ParseProxy but returned as written, so duplicates stay duplicates.
func ParseProxies(r io.Reader) ([]string, error) {
	var proxies []string

	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := model.ParseProxy(line); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		proxies = append(proxies, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read proxy list: %w", err)
	}

	if len(proxies) == 0 {
		return nil, ErrNoProxies
	}
	return proxies, nil
}
