package schema

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

type columnSnapshot struct {
	Name      string `msgpack:"n"`
	Member    string `msgpack:"m"`
	Type      uint8  `msgpack:"t"`
	Table     string `msgpack:"tb"`
	Flags     uint8  `msgpack:"f"`
	Converter string `msgpack:"c"`
}

type descriptorSnapshot struct {
	Name          string           `msgpack:"n"`
	Table         string           `msgpack:"t"`
	Columns       []columnSnapshot `msgpack:"c"`
	Filter        string           `msgpack:"f"`
	Inheritance   uint8            `msgpack:"i"`
	Discriminator string           `msgpack:"d"`
}

const (
	flagNullable uint8 = 1 << iota
	flagKey
	flagComputed
	flagShadow
	flagToken
)

// Fingerprint returns a short digest of everything in d that affects the
// generated SQL.
func Fingerprint(d *Descriptor) (string, error) {
	s := descriptorSnapshot{
		Name:          d.Name,
		Table:         d.Table.String(),
		Inheritance:   uint8(d.Inheritance),
		Discriminator: d.Discriminator,
	}
	if d.Filter != nil {
		s.Filter = d.Filter.String()
	}
	for _, c := range d.Columns {
		cs := columnSnapshot{Name: c.Name, Member: c.Member, Type: uint8(c.Type), Table: c.Table.String()}
		for flag, set := range map[uint8]bool{
			flagNullable: c.Nullable,
			flagKey:      c.Key,
			flagComputed: c.Computed,
			flagShadow:   c.Shadow,
			flagToken:    c.ConcurrencyToken,
		} {
			if set {
				cs.Flags |= flag
			}
		}
		if c.Converter != nil {
			cs.Converter = c.Converter.Name()
		}
		s.Columns = append(s.Columns, cs)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&s); err != nil {
		return "", fmt.Errorf("schema: fingerprint %s: %w", d.Name, err)
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:8]), nil
}
