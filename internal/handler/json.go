package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/posledger/internal/domain/apperr"
)

const maxBodySize = 1 << 20

// decodeObject reads the request body as one JSON object and calls fn for
// every field. Unknown fields must be skipped by fn.
func decodeObject(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return apperr.WithCause(apperr.KindValidation, err, "read request body")
	}
	d := jx.DecodeBytes(body)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	}); err != nil {
		if apperr.KindOf(err) != apperr.KindUnknown {
			return err
		}
		return apperr.WithCause(apperr.KindValidation, err, "invalid request body")
	}
	return nil
}

// readMoney accepts a JSON string or number. Strings keep full precision.
func readMoney(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = string(n)
	default:
		return decimal.Zero, apperr.Validation("%s must be a decimal", field)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperr.Validation("%s: invalid decimal %q", field, raw)
	}
	return v, nil
}

func readOptMoney(d *jx.Decoder, field string) (*decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := readMoney(d, field)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func readOptString(d *jx.Decoder) (*string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func readOptInt(d *jx.Decoder) (*int, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	n, err := d.Int()
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func readOptBool(d *jx.Decoder) (*bool, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	b, err := d.Bool()
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeArray[T any](w http.ResponseWriter, items []T, enc func(e *jx.Encoder, v *T)) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range items {
			enc(e, &items[i])
		}
		e.ArrEnd()
	})
}

// Field helpers. Money is always a string with two decimals.

func fieldStr(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

func fieldOptStr(e *jx.Encoder, name string, v *string) {
	if v != nil {
		fieldStr(e, name, *v)
	}
}

func fieldMoney(e *jx.Encoder, name string, v decimal.Decimal) {
	fieldStr(e, name, v.StringFixed(2))
}

func fieldOptMoney(e *jx.Encoder, name string, v *decimal.Decimal) {
	if v != nil {
		fieldMoney(e, name, *v)
	}
}

func fieldTime(e *jx.Encoder, name string, v time.Time) {
	fieldStr(e, name, v.UTC().Format(time.RFC3339Nano))
}

func fieldOptTime(e *jx.Encoder, name string, v *time.Time) {
	if v != nil {
		fieldTime(e, name, *v)
	}
}

func fieldInt(e *jx.Encoder, name string, v int) {
	e.FieldStart(name)
	e.Int(v)
}

func fieldBool(e *jx.Encoder, name string, v bool) {
	e.FieldStart(name)
	e.Bool(v)
}

// Query parameters.

type query struct {
	r   *http.Request
	err error
}

func (q *query) str(name string) string {
	return q.r.URL.Query().Get(name)
}

func (q *query) intParam(name string) int {
	raw := q.str(name)
	if raw == "" || q.err != nil {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		q.err = apperr.Validation("query %s: invalid integer %q", name, raw)
	}
	return n
}

func (q *query) boolParam(name string) bool {
	raw := q.str(name)
	if raw == "" || q.err != nil {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		q.err = apperr.Validation("query %s: invalid boolean %q", name, raw)
	}
	return b
}

func (q *query) timeParam(name string) *time.Time {
	raw := q.str(name)
	if raw == "" || q.err != nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		q.err = apperr.Validation("query %s: expected RFC 3339 time, got %q", name, raw)
		return nil
	}
	return &t
}
