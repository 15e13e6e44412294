package trustledger

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{"index", "previousHash", "hash", "payload", "timestamp", "nonce"}

// WriteCSV writes blocks as CSV with a header row.
func WriteCSV(w io.Writer, blocks []Block) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, b := range blocks {
		if err := cw.Write([]string{
			strconv.Itoa(b.Index),
			b.PrevHash,
			b.Hash,
			b.Payload,
			b.Timestamp.UTC().Format(time.RFC3339Nano),
			strconv.FormatInt(b.Nonce, 10),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes blocks as an indented JSON array.
func WriteJSON(w io.Writer, blocks []Block) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(blocks)
}

// ReadJSON decodes a chain previously written by WriteJSON.
func ReadJSON(r io.Reader) ([]Block, error) {
	var blocks []Block
	if err := json.NewDecoder(r).Decode(&blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}
