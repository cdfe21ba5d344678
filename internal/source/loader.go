package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// LoadFromFile reads every line of path. Invalid UTF-8 is replaced, not
// rejected.
func LoadFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return readLines(file)
}

// LoadFromURL reads lines from a URL (e.g., Github raw)
func LoadFromURL(ctx context.Context, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", url, resp.Status)
	}
	return readLines(resp.Body)
}

// readLines has no per-line limit; an oversized junk line is returned
// like any other and rejected later by the parser.
func readLines(r io.Reader) ([]string, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	var lines []string
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
			lines = append(lines, strings.ToValidUTF8(line, "�"))
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
	}
}
