package ingest

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
)

const maxLineSize = 1 << 20

// Record is one product line of a feed.
type Record struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
}

// Key is the normalized product name used to match records across feeds.
func (r Record) Key() string {
	return NormalizeName(r.Name)
}

// NormalizeName lowercases s and collapses runs of white space.
func NormalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func (r Record) validate() error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return errors.New("name is required")
	case strings.TrimSpace(r.Category) == "":
		return errors.New("category is required")
	case r.Price.IsNegative():
		return errors.New("price must not be negative")
	case r.Stock < 0:
		return errors.New("stock must not be negative")
	}
	return nil
}

// Feed is a gzip-compressed NDJSON product feed.
type Feed struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// FileFeed returns a Feed reading the file at path.
func FileFeed(path string) Feed {
	return Feed{
		Name: path,
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// DecodeRecord parses one feed line:
//
//	{"name":"..","description":"..","price":12.5,"stock":3,"category":".."}
//
// Price may also be given as a string. Unknown fields are ignored.
func DecodeRecord(line []byte) (Record, error) {
	var rec Record
	err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "name":
			v, err := d.Str()
			rec.Name = strings.TrimSpace(v)
			return err
		case "description":
			v, err := d.Str()
			rec.Description = v
			return err
		case "category":
			v, err := d.Str()
			rec.Category = strings.TrimSpace(v)
			return err
		case "price":
			var raw string
			switch d.Next() {
			case jx.String:
				v, err := d.Str()
				if err != nil {
					return err
				}
				raw = v
			default:
				n, err := d.Num()
				if err != nil {
					return err
				}
				raw = n.String()
			}
			price, err := decimal.NewFromString(raw)
			if err != nil {
				return errors.Wrap(err, "price")
			}
			rec.Price = price
			return nil
		case "stock":
			v, err := d.Int()
			rec.Stock = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return Record{}, errors.Wrap(err, "decode record")
	}
	if err := rec.validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// stream opens the feed and calls fn for every valid record. Blank lines are
// skipped; invalid lines are passed to onInvalid when it is not nil.
func stream(ctx context.Context, feed Feed, fn func(Record) error, onInvalid func(line int, err error)) error {
	f, err := feed.Open()
	if err != nil {
		return errors.Wrapf(err, "open %s", feed.Name)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", feed.Name)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++

		raw := scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		rec, err := DecodeRecord(raw)
		if err != nil {
			if onInvalid != nil {
				onInvalid(line, err)
			}
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", feed.Name)
	}
	return nil
}
