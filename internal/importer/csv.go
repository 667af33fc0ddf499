package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-reconciler/internal/domain"
)

// csvColumns maps the expected header names to their indices. Header matching
// is case-insensitive; reference and balance are optional.
type csvColumns struct {
	date        int
	description int
	reference   int
	debit       int
	credit      int
	balance     int
}

const csvDateFormat = "2006-01-02"

// ParseCSV reads a tabular statement file into the ordered raw line sequence
// the importer consumes. The first row must be a header naming at least
// date, description, debit and credit columns.
func ParseCSV(r io.Reader) ([]domain.RawLine, error) {
	reader := csv.NewReader(r)

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("parse csv: reading header: %w", domain.ErrValidation)
	}

	columns, err := mapColumns(headers)
	if err != nil {
		return nil, err
	}

	var lines []domain.RawLine
	rowNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: row %d: %s: %w", rowNum+1, err, domain.ErrValidation)
		}
		rowNum++

		line, err := parseCSVRecord(record, columns)
		if err != nil {
			return nil, fmt.Errorf("parse csv: row %d: %w", rowNum, err)
		}
		lines = append(lines, line)
	}

	return lines, nil
}

func mapColumns(headers []string) (csvColumns, error) {
	columns := csvColumns{date: -1, description: -1, reference: -1, debit: -1, credit: -1, balance: -1}

	for idx, header := range headers {
		switch strings.ToLower(strings.TrimSpace(header)) {
		case "date", "line_date":
			columns.date = idx
		case "description":
			columns.description = idx
		case "reference":
			columns.reference = idx
		case "debit":
			columns.debit = idx
		case "credit":
			columns.credit = idx
		case "balance":
			columns.balance = idx
		}
	}

	if columns.date < 0 || columns.description < 0 || columns.debit < 0 || columns.credit < 0 {
		return csvColumns{}, fmt.Errorf("parse csv: header must name date, description, debit and credit columns: %w", domain.ErrValidation)
	}
	return columns, nil
}

func parseCSVRecord(record []string, columns csvColumns) (domain.RawLine, error) {
	lineDate, err := time.Parse(csvDateFormat, strings.TrimSpace(record[columns.date]))
	if err != nil {
		return domain.RawLine{}, fmt.Errorf("bad date %q: %w", record[columns.date], domain.ErrValidation)
	}

	debit, err := parseCSVAmount(record, columns.debit)
	if err != nil {
		return domain.RawLine{}, err
	}
	credit, err := parseCSVAmount(record, columns.credit)
	if err != nil {
		return domain.RawLine{}, err
	}

	line := domain.RawLine{
		LineDate:    lineDate,
		Description: strings.TrimSpace(record[columns.description]),
		Debit:       debit,
		Credit:      credit,
	}

	if columns.reference >= 0 && columns.reference < len(record) {
		line.Reference = strings.TrimSpace(record[columns.reference])
	}
	if columns.balance >= 0 && columns.balance < len(record) && strings.TrimSpace(record[columns.balance]) != "" {
		balance, err := decimal.NewFromString(strings.TrimSpace(record[columns.balance]))
		if err != nil {
			return domain.RawLine{}, fmt.Errorf("bad balance %q: %w", record[columns.balance], domain.ErrValidation)
		}
		line.Balance = &balance
	}

	return line, nil
}

func parseCSVAmount(record []string, idx int) (decimal.Decimal, error) {
	raw := strings.TrimSpace(record[idx])
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad amount %q: %w", raw, domain.ErrValidation)
	}
	return amount, nil
}
