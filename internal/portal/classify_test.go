package portal

import (
	"regexp"
	"strconv"
	"testing"
)

var countRe = regexp.MustCompile(`resultou em (\d+)`)

func testIndicators() Indicators {
	return Indicators{
		NoMatch: TextMatches("#msg", "nenhum registro", "não encontrado"),
		ResultCount: func(p *Page) int {
			m := countRe.FindStringSubmatch(p.Text("#count"))
			if m == nil {
				return 0
			}
			n, _ := strconv.Atoi(m[1])
			return n
		},
		DetailView: HasSelector("#detail"),
		QueryForm:  VisibleSelector("#form"),
	}
}

func mustPage(t *testing.T, body string) *Page {
	t.Helper()
	p, err := ParsePage("https://portal.test/", "<html><body>"+body+"</body></html>")
	if err != nil {
		t.Fatalf("ParsePage: %v", err)
	}
	return p
}

func TestIndicatorsClassify(t *testing.T) {
	tests := []struct {
		name string
		body string
		want ResultState
	}{
		{"no match", `<div id="msg">Nenhum registro encontrado</div>`, StateNotFound},
		{"multiple", `<div id="count">Pesquisa resultou em 3 registros</div>`, StateMultiple},
		{"single count is not multiple", `<div id="count">Pesquisa resultou em 1 registro</div><div id="detail"></div>`, StateFound},
		{"detail", `<div id="detail">HC 1234</div>`, StateFound},
		{"form visible", `<form id="form"></form>`, StateNotFound},
		{"form hidden", `<form id="form" style="display: none"></form>`, StateAmbiguous},
		{"form inside hidden parent", `<div hidden><form id="form"></form></div>`, StateAmbiguous},
		{"blank", `<p>carregando</p>`, StateAmbiguous},
		{
			"no match beats multiple",
			`<div id="msg">Processo não encontrado</div><div id="count">Pesquisa resultou em 4 registros</div>`,
			StateNotFound,
		},
		{
			"multiple beats detail",
			`<div id="count">resultou em 2 registros</div><div id="detail"></div>`,
			StateMultiple,
		},
		{
			"detail beats form",
			`<div id="detail"></div><form id="form"></form>`,
			StateFound,
		},
	}
	ind := testIndicators()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ind.Classify(mustPage(t, tt.body)); got != tt.want {
				t.Errorf("Classify = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIndicatorsNilMembers(t *testing.T) {
	var ind Indicators
	if got := ind.Classify(mustPage(t, `<div id="detail"></div>`)); got != StateAmbiguous {
		t.Errorf("empty indicators classified %s", got)
	}
}

func TestSelectMostRecent(t *testing.T) {
	got, err := SelectMostRecent([]Candidate{
		{Position: 0, Filed: "10/01/2023", Label: "old"},
		{Position: 1, Filed: "05/06/2024", Label: "new"},
	})
	if err != nil {
		t.Fatalf("SelectMostRecent: %v", err)
	}
	if got.Filed != "05/06/2024" {
		t.Errorf("selected %+v, want the 05/06/2024 candidate", got)
	}
}

func TestSelectMostRecentSkipsUnparsable(t *testing.T) {
	got, err := SelectMostRecent([]Candidate{
		{Position: 0, Filed: "2024-12-31"},
		{Position: 1, Filed: " 01/02/2020 "},
		{Position: 2, Filed: ""},
	})
	if err != nil {
		t.Fatalf("SelectMostRecent: %v", err)
	}
	if got.Position != 1 {
		t.Errorf("position = %d, want 1", got.Position)
	}
}

func TestSelectMostRecentTieKeepsFirst(t *testing.T) {
	got, err := SelectMostRecent([]Candidate{
		{Position: 0, Filed: "01/01/2020"},
		{Position: 1, Filed: "03/03/2024"},
		{Position: 2, Filed: "03/03/2024"},
	})
	if err != nil {
		t.Fatalf("SelectMostRecent: %v", err)
	}
	if got.Position != 1 {
		t.Errorf("position = %d, want 1", got.Position)
	}
}

func TestSelectMostRecentNoCandidates(t *testing.T) {
	for _, in := range [][]Candidate{nil, {{Filed: "31/02/x"}}} {
		if _, err := SelectMostRecent(in); err != ErrNoCandidates {
			t.Errorf("SelectMostRecent(%v) err = %v, want ErrNoCandidates", in, err)
		}
	}
}
