// Package importer turns raw CSV bytes into validated scheduling
// requests. Parsing is collect-all: malformed rows become row-level
// errors and never abort the rest of the input.
package importer

import (
	"bufio"
	"io"
	"strings"
)

// Row is one validated scheduling request: name is optional, the rest
// was checked non-blank and the time resolved to epoch millis.
type Row struct {
	Name             string
	PhoneNumber      string
	ScheduledAtMilli int64
	Body             string
}

type ErrorKind int

const (
	MissingPhoneNumber ErrorKind = iota
	MissingTime
	InvalidTime
	MissingBody
)

func (k ErrorKind) String() string {
	switch k {
	case MissingPhoneNumber:
		return "missing_phone_number"
	case MissingTime:
		return "missing_time"
	case InvalidTime:
		return "invalid_time"
	case MissingBody:
		return "missing_body"
	default:
		return "unknown"
	}
}

// RowError reports one validation failure. Line is 1-based and counts
// raw input lines, blank lines and the header included. Raw is only set
// for InvalidTime.
type RowError struct {
	Line int
	Kind ErrorKind
	Raw  string
}

type Result struct {
	Rows   []Row
	Errors []RowError
}

// Header synonym vocabulary, matched case-insensitively against the
// first data-bearing line only.
var (
	nameHeaders  = []string{"name", "姓名", "联系人", "contact", "昵称"}
	phoneHeaders = []string{"phone", "phone number", "mobile", "手机号", "号码", "电话"}
	timeHeaders  = []string{"time", "datetime", "schedule", "发送时间", "时间", "发送日期"}
	bodyHeaders  = []string{"message", "body", "text", "content", "短信内容", "内容", "短信"}
)

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse reads UTF-8 CSV input line by line. It never fails on content;
// the only possible error is a read error from r.
func (p *Parser) Parse(r io.Reader) (Result, error) {
	var result Result

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNumber := 0
	skippedHeader := false

	for scanner.Scan() {
		lineNumber++
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" {
			continue
		}

		columns := splitLine(line)
		if !skippedHeader {
			skippedHeader = true
			if looksLikeHeader(columns) {
				continue
			}
		}

		name := column(columns, 0)
		phone := column(columns, 1)
		timeRaw := column(columns, 2)
		body := column(columns, 3)

		hasError := false

		if phone == "" {
			result.Errors = append(result.Errors, RowError{Line: lineNumber, Kind: MissingPhoneNumber})
			hasError = true
		}

		var scheduledAt int64
		if timeRaw == "" {
			result.Errors = append(result.Errors, RowError{Line: lineNumber, Kind: MissingTime})
			hasError = true
		} else {
			millis, ok := ParseScheduledAt(timeRaw)
			if !ok {
				result.Errors = append(result.Errors, RowError{Line: lineNumber, Kind: InvalidTime, Raw: timeRaw})
				hasError = true
			}
			scheduledAt = millis
		}

		if body == "" {
			result.Errors = append(result.Errors, RowError{Line: lineNumber, Kind: MissingBody})
			hasError = true
		}

		if !hasError {
			result.Rows = append(result.Rows, Row{
				Name:             name,
				PhoneNumber:      phone,
				ScheduledAtMilli: scheduledAt,
				Body:             body,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// splitLine tokenizes one record. Double quotes group a field: a comma
// inside quotes is literal, and a doubled quote inside quotes is one
// literal quote. An unmatched trailing quote behaves as if it closed at
// end of line.
func splitLine(line string) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				current.WriteRune('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case c == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(c)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))
	return fields
}

func looksLikeHeader(columns []string) bool {
	if len(columns) < 4 {
		return false
	}
	return matchesAny(columns[0], nameHeaders) &&
		matchesAny(columns[1], phoneHeaders) &&
		matchesAny(columns[2], timeHeaders) &&
		matchesAny(columns[3], bodyHeaders)
}

func matchesAny(value string, options []string) bool {
	for _, opt := range options {
		if strings.EqualFold(strings.TrimSpace(value), opt) {
			return true
		}
	}
	return false
}

func column(columns []string, i int) string {
	if i >= len(columns) {
		return ""
	}
	return strings.TrimSpace(columns[i])
}
