package markets

import (
	"errors"
	"testing"
)

func TestLookup(t *testing.T) {
	r := Default()
	tests := []struct {
		id   string
		want string
	}{
		{"carrefour", "Carrefour"},
		{"atacadao", "Atacadão"},
		{"pao_acucar", "Pão de Açúcar"},
		{"extra", "Extra"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			name, err := r.DisplayName(tt.id)
			if err != nil {
				t.Fatalf("DisplayName(%q): %v", tt.id, err)
			}
			if name != tt.want {
				t.Errorf("DisplayName(%q) = %q, want %q", tt.id, name, tt.want)
			}
		})
	}

	if _, err := r.Lookup("assai"); !errors.Is(err, ErrUnknownMarket) {
		t.Errorf("Lookup(assai) error = %v, want ErrUnknownMarket", err)
	}
}

func TestNameOrDefault(t *testing.T) {
	r := Default()
	if got := r.NameOrDefault("atacadao"); got != "Atacadão" {
		t.Errorf("NameOrDefault(atacadao) = %q", got)
	}
	if got := r.NameOrDefault("assai"); got != "Assai" {
		t.Errorf("NameOrDefault(assai) = %q, want %q", got, "Assai")
	}
}

func TestActiveSkipsDeprecated(t *testing.T) {
	active := Default().Active()
	if len(active) != 3 {
		t.Fatalf("len(Active) = %d, want 3", len(active))
	}
	for _, m := range active {
		if m.ID == "extra" {
			t.Error("deprecated market extra should not be active")
		}
	}
	if active[0].ID != "atacadao" {
		t.Errorf("Active()[0] = %q, want atacadao", active[0].ID)
	}
}

func TestSearchURL(t *testing.T) {
	r := Default()
	m, _ := r.Lookup("carrefour")
	if got, want := m.SearchURL("arroz tipo 1", 2), "https://mercado.carrefour.com.br/busca/arroz+tipo+1?page=2"; got != want {
		t.Errorf("SearchURL = %q, want %q", got, want)
	}
	m, _ = r.Lookup("pao_acucar")
	if got, want := m.SearchURL("café", 0), "https://www.paodeacucar.com/busca?terms=caf%C3%A9"; got != want {
		t.Errorf("SearchURL = %q, want %q", got, want)
	}
}
