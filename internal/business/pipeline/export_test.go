package pipeline

import (
	"bytes"
	"encoding/csv"
	"testing"
)

func TestWriteOffersCSV(t *testing.T) {
	p := newTestPipeline()
	result := p.ProcessAll(collectRecords())

	var buf bytes.Buffer
	if err := WriteOffersCSV(&buf, result.Offers); err != nil {
		t.Fatalf("WriteOffersCSV: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(rows))
	}
	if rows[0][0] != "market" || len(rows[0]) != len(CSVHeader) {
		t.Errorf("header = %v", rows[0])
	}

	rice := rows[1]
	want := map[int]string{0: "Carrefour", 2: "29,90", 3: "5", 4: "kg", 5: "5,98", 6: "kg", 7: "R$ 5,98/kg", 9: "success"}
	for col, w := range want {
		if rice[col] != w {
			t.Errorf("rice[%s] = %q, want %q", CSVHeader[col], rice[col], w)
		}
	}

	partial := rows[3]
	if partial[5] != "" || partial[9] != "partial" {
		t.Errorf("partial row = %v", partial)
	}
}
