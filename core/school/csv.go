package school

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"

	"github.com/vladapp/backend/core"
	"github.com/vladapp/backend/core/user"
)

// Fixed column layouts of the uploaded member lists. There is no header row
// and no header-based column matching.
var (
	studentColumns = []string{"age", "group", "email", "lastName", "firstName", "sex"}
	teacherColumns = []string{"email", "lastName", "firstName", "sex"}
)

const (
	csvDelimiter   = ';'
	passwordLength = 10
)

var (
	utf8BOM = []byte{0xEF, 0xBB, 0xBF}

	ErrEmptyUpload = errors.New("uploaded file is empty")
)

// RowError describes a skipped CSV row. Rows are independently skippable:
// a malformed row is reported and the rest of the batch proceeds.
type RowError struct {
	Row int    `json:"row"` // 1-based
	Err string `json:"error"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Err)
}

// ParseStudentRecords parses a semicolon-delimited student list
// (age;group;email;lastName;firstName;sex) into normalized records, each with
// a freshly generated one-time password. Age is converted to an approximate
// birthdate by subtracting whole years from now.
func ParseStudentRecords(data []byte) ([]user.Record, []RowError, error) {
	now := time.Now().UTC()
	return parseRecords(data, len(studentColumns), func(fields []string) (user.Record, error) {
		age, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return user.Record{}, fmt.Errorf("unparsable age %q", fields[0])
		}
		rec := newRecord(fields[2], fields[3], fields[4], fields[5])
		rec.Birthdate = now.AddDate(-age, 0, 0)
		rec.Group = strings.ToUpper(core.CollapseSpaces(fields[1]))
		return rec, nil
	})
}

// ParseTeacherRecords parses a semicolon-delimited teacher list
// (email;lastName;firstName;sex) into normalized records.
func ParseTeacherRecords(data []byte) ([]user.Record, []RowError, error) {
	return parseRecords(data, len(teacherColumns), func(fields []string) (user.Record, error) {
		return newRecord(fields[0], fields[1], fields[2], fields[3]), nil
	})
}

func newRecord(email, lastName, firstName, sex string) user.Record {
	return user.Record{
		FirstName: core.CleanString(firstName, true /* lower */),
		LastName:  core.CleanString(lastName, true /* lower */),
		Email:     core.CleanString(email),
		Sex:       parseSex(sex),
		Password:  core.RandomPassword(passwordLength),
	}
}

func parseSex(s string) string {
	if core.CleanString(s, true /* lower */) == "f" {
		return user.SexFemale
	}
	return user.SexMale
}

func parseRecords(data []byte, wantFields int, format func([]string) (user.Record, error)) ([]user.Record, []RowError, error) {
	text, err := decodeUpload(data)
	if err != nil {
		return nil, nil, err
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = csvDelimiter
	r.FieldsPerRecord = -1 // counts are checked per row so bad rows are skippable
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var recs []user.Record
	var rowErrs []RowError
	for row := 1; ; row++ {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: row, Err: err.Error()})
			continue
		}
		if isBlankRow(fields) {
			continue
		}
		if len(fields) != wantFields {
			rowErrs = append(rowErrs, RowError{Row: row, Err: fmt.Sprintf("expected %d columns, got %d", wantFields, len(fields))})
			continue
		}
		rec, err := format(fields)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: row, Err: err.Error()})
			continue
		}
		recs = append(recs, rec)
	}
	return recs, rowErrs, nil
}

// decodeUpload tolerates legacy single-byte text as well as UTF-8 with a
// leading byte-order mark: the BOM is stripped, valid UTF-8 passes through
// and anything else is decoded as Latin-1.
func decodeUpload(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return "", ErrEmptyUpload
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", errors.Wrap(err, "decoding latin-1 upload")
	}
	return string(decoded), nil
}

func isBlankRow(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
