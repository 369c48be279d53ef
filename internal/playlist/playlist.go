package playlist

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	apperrors "github.com/vodhub/vodhub/internal/errors"
	"github.com/vodhub/vodhub/internal/logger"
)

// Entry represents a parsed M3U playlist entry
type Entry struct {
	TvgID      string
	TvgName    string
	TvgLogo    string
	GroupTitle string
	Title      string
	URL        string
}

// Stats tracks parsing statistics
type Stats struct {
	TotalLines       int
	ParsedEntries    int
	MalformedEntries int
}

var (
	tvgIDRegex      = regexp.MustCompile(`tvg-id="([^"]*)"`)
	tvgNameRegex    = regexp.MustCompile(`tvg-name="([^"]*)"`)
	tvgLogoRegex    = regexp.MustCompile(`tvg-logo="([^"]*)"`)
	groupTitleRegex = regexp.MustCompile(`group-title="([^"]*)"`)
)

// Parse reads an M3U playlist from r. Malformed entries are counted and
// skipped; only a read failure aborts the parse.
func Parse(r io.Reader) ([]Entry, Stats, error) {
	var entries []Entry
	var stats Stats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var current *Entry
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++
		stats.TotalLines++
		line := strings.TrimSpace(scanner.Text())

		if lineNumber == 1 && strings.HasPrefix(line, "#EXTM3U") {
			continue
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#EXTINF") {
			if current != nil {
				stats.MalformedEntries++
			}
			current = parseExtinf(line)
			continue
		}

		if strings.HasPrefix(line, "#") {
			continue
		}

		// URL line
		if current == nil {
			stats.MalformedEntries++
			continue
		}
		current.URL = line
		if current.TvgName == "" {
			stats.MalformedEntries++
			current = nil
			continue
		}
		entries = append(entries, *current)
		stats.ParsedEntries++
		current = nil
	}

	if current != nil {
		stats.MalformedEntries++
	}

	if err := scanner.Err(); err != nil {
		return nil, stats, apperrors.Wrap(err, apperrors.CodeUpstreamTransient, "error reading playlist")
	}

	if stats.MalformedEntries > 0 {
		logger.AppLogger().WithFields(map[string]interface{}{
			"malformed": stats.MalformedEntries,
			"parsed":    stats.ParsedEntries,
		}).Warn("playlist contained malformed entries")
	}

	return entries, stats, nil
}

func parseExtinf(line string) *Entry {
	entry := &Entry{}

	if matches := tvgIDRegex.FindStringSubmatch(line); len(matches) > 1 {
		entry.TvgID = matches[1]
	}
	if matches := tvgNameRegex.FindStringSubmatch(line); len(matches) > 1 {
		entry.TvgName = matches[1]
	}
	if matches := tvgLogoRegex.FindStringSubmatch(line); len(matches) > 1 {
		entry.TvgLogo = matches[1]
	}
	if matches := groupTitleRegex.FindStringSubmatch(line); len(matches) > 1 {
		entry.GroupTitle = matches[1]
	}

	// Title is the text after the last comma
	if commaIdx := strings.LastIndex(line, ","); commaIdx != -1 {
		entry.Title = strings.TrimSpace(line[commaIdx+1:])
	}
	if entry.TvgName == "" && entry.Title != "" {
		entry.TvgName = entry.Title
	}

	return entry
}
