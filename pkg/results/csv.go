package results

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"
)

const constDelimiterDefault = ","

type csvHeaderStructMapping struct {
	header    string // key in CSV header
	structTag string // borrow JSON struct tag for CSV
}

type csvSchema struct {
	keys  map[int]csvHeaderStructMapping
	delim string
}

func (schema csvSchema) header() []string {
	hdr := make([]string, 0, len(schema.keys))
	for i := 0; i < len(schema.keys); i++ {
		hdr = append(hdr, schema.keys[i].header)
	}
	return hdr
}

var (
	// ErrUnsupportedType is returned when a type is not supported during CSV reflection.
	ErrUnsupportedType = errors.New("unsupported type")
	// ErrNilPointer is returned when a pointer is nil during CSV reflection.
	ErrNilPointer = errors.New("nil pointer")
	// ErrBadDelimiter is returned when the schema delimiter is not a single usable rune.
	ErrBadDelimiter = errors.New("bad delimiter")
)

// FormatFloat renders f in its shortest round-trip form, always with a fractional part (e.g. "7.0").
// Decimal exponents below -4 or from 16 up switch to exponent notation (e.g. "2.137426288890686e-05").
func FormatFloat(f float64) string {
	if f != 0 && !math.IsInf(f, 0) && !math.IsNaN(f) {
		e := strconv.FormatFloat(f, 'e', -1, 64)
		if exp, err := strconv.Atoi(e[strings.LastIndexByte(e, 'e')+1:]); err == nil && (exp < -4 || exp >= 16) {
			return e
		}
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}

func (schema csvSchema) record(in any) ([]string, error) {
	ref := reflect.ValueOf(in)
	if ref.Kind() == reflect.Ptr && ref.IsNil() {
		return nil, ErrNilPointer
	}
	if ref.Kind() == reflect.Ptr {
		ref = ref.Elem()
	}
	if ref.Kind() != reflect.Struct {
		return nil, fmt.Errorf("csv: %w: %s", ErrUnsupportedType, ref.Kind().String())
	}

	rec := make([]string, 0, len(schema.keys))

	for i := 0; i < len(schema.keys); i++ {
		var field reflect.Value
		target := schema.keys[i].structTag
	iter:
		for j := 0; j < ref.NumField(); j++ {
			structTag, _, _ := strings.Cut(ref.Type().Field(j).Tag.Get("json"), ",")
			switch structTag {
			case target:
				field = ref.Field(j)
				break iter
			default:
			}
		}

		switch field.Kind() {
		case reflect.Invalid:
			rec = append(rec, "")
		case reflect.String:
			rec = append(rec, field.String())
		case reflect.Float64, reflect.Float32:
			rec = append(rec, FormatFloat(field.Float()))
		case reflect.Bool:
			rec = append(rec, strconv.FormatBool(field.Bool()))
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			rec = append(rec, strconv.FormatInt(field.Int(), 10))
		default:
			return nil, fmt.Errorf("csv: %w: %s", ErrUnsupportedType, field.Kind().String())
		}
	}

	return rec, nil
}

func (schema csvSchema) writer(buf *bytes.Buffer) (*csv.Writer, error) {
	w := csv.NewWriter(buf)
	w.UseCRLF = true
	delim, size := utf8.DecodeRuneInString(schema.delim)
	if size == 0 || size != len(schema.delim) {
		return nil, fmt.Errorf("%w: %q", ErrBadDelimiter, schema.delim)
	}
	w.Comma = delim
	return w, nil
}

// (path, entropy)
var defCSVHeader = csvSchema{
	keys: map[int]csvHeaderStructMapping{
		0: {"path", "display_name"},
		1: {"entropy", "entropy"},
	},
	delim: constDelimiterDefault,
}
