package handler_test

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/jmerrifield20/vitalsguard/internal/trustledger"
)

func TestLedgerOverview_200(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/api/v1/ledger", "", "")
	expectStatus(t, w, http.StatusOK)

	var resp map[string]any
	decode(t, w, &resp)
	if int(resp["entries"].(float64)) != 1 { // genesis
		t.Errorf("expected 1 entry (genesis), got %v", resp["entries"])
	}
}

func TestLedgerVerify_200(t *testing.T) {
	e := newEnv(t)
	e.ledger.Append(ctx, "p1", "QmX", "Vitals Upload")

	w := e.do(http.MethodGet, "/api/v1/ledger/verify", "", "")
	expectStatus(t, w, http.StatusOK)
	var resp map[string]any
	decode(t, w, &resp)
	if resp["valid"] != true {
		t.Errorf("expected valid=true, got %v", resp["valid"])
	}
}

func TestLedgerGetEntry(t *testing.T) {
	e := newEnv(t)
	expectStatus(t, e.do(http.MethodGet, "/api/v1/ledger/entries/0", "", ""), http.StatusOK)
	expectStatus(t, e.do(http.MethodGet, "/api/v1/ledger/entries/999", "", ""), http.StatusNotFound)
	expectStatus(t, e.do(http.MethodGet, "/api/v1/ledger/entries/-1", "", ""), http.StatusBadRequest)
}

func TestLedgerChain_verifiesOffline(t *testing.T) {
	e := newEnv(t)
	e.ledger.Append(ctx, "p1", "QmA", "Vitals Upload")
	e.ledger.Append(ctx, "p2", "QmB", "Vitals Upload")

	w := e.do(http.MethodGet, "/api/v1/ledger/chain", "", "")
	expectStatus(t, w, http.StatusOK)

	blocks, err := trustledger.ReadJSON(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	if err := trustledger.VerifyBlocks(blocks); err != nil {
		t.Errorf("exported chain does not verify: %v", err)
	}
}

func TestLedgerExportCSV(t *testing.T) {
	e := newEnv(t)
	e.ledger.Append(ctx, "p1", "QmA", "Vitals Upload")

	w := e.do(http.MethodGet, "/api/v1/ledger/export.csv", "", "")
	expectStatus(t, w, http.StatusOK)
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 3 { // header + genesis + one block
		t.Errorf("expected 3 lines, got %d", len(lines))
	}
}
