package stf

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtsync/internal/portal"
	"courtsync/internal/portal/portaltest"
)

const homeHTML = `<html><body>
<a href="/"><img alt="Supremo Tribunal Federal" src="logo.png"></a>
<select id="tipo-pesquisa-processo"><option>Classe</option><option>Número</option><option>Número único</option></select>
<input id="pesquisaPrincipalNumeroUnico"><button id="btnPesquisar">Pesquisar</button>
</body></html>`

const detailHTML = `<html><body>
<a href="/"><img alt="Supremo Tribunal Federal" src="logo.png"></a>
<section>
  <div class="row"><div class="col-md-9"><h2>ARE 1234567 - AgR</h2></div></div>
  <div id="partes-resumidas">
    <div><div>RECTE.(S)</div><div>FULANO DE TAL</div></div>
    <div><div>RECDO.(A/S)</div><div>ESTADO DE SÃO PAULO</div></div>
    <div><div>PROC.(A/S)(ES)</div><div></div></div>
  </div>
  <ul class="nav"><li class="li-decisoes"><a href="#decisoes"><span>Decisões</span></a></li></ul>
  <ul class="timeline"><li><div class="description">Agravo regimental não provido</div></li><li><div class="description">Conclusos</div></li></ul>
  <div id="decisoes"><div><div>Baixa definitiva dos autos, Guia nº 5512/2024</div><div>Publicação</div></div></div>
</section>
</body></html>`

const notFoundHTML = `<html><body>
<a href="/"><img alt="Supremo Tribunal Federal" src="logo.png"></a>
<div class="alert">Processo não encontrado</div>
<select id="tipo-pesquisa-processo"><option>Classe</option></select>
</body></html>`

const caseID = "1234567-89.2023.8.26.0050"

func testSettings() portal.Settings {
	return portal.Settings{
		BaseURL:        DefaultBaseURL,
		ElementTimeout: 10 * time.Millisecond,
		ResultTimeout:  20 * time.Millisecond,
		PollInterval:   time.Millisecond,
	}
}

// newPortal serves the home page and renders result after the search button.
func newPortal(result, resultURL, fieldValue string) *portaltest.FakeDriver {
	d := portaltest.NewFakeDriver(DefaultBaseURL, homeHTML)
	d.ScriptValue("el.value", fieldValue)
	d.OnAct = func(d *portaltest.FakeDriver, selector string, a portal.Action) error {
		switch selector {
		case searchButton:
			d.SetPage(resultURL, result)
		case homeLogo:
			d.SetPage(DefaultBaseURL, homeHTML)
		}
		return nil
	}
	return d
}

func runOne(t *testing.T, d *portaltest.FakeDriver, rec portal.CaseRecord) (*portaltest.MemoryStore, *portal.RunStats) {
	t.Helper()
	store := portaltest.NewMemoryStore(rec)
	opts := portal.Options{Now: func() time.Time { return time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC) }}
	stats, err := portal.NewOrchestrator(d, New(testSettings(), nil), store, opts, nil).Run(context.Background())
	require.NoError(t, err)
	return store, stats
}

func TestFoundCaseIsExtracted(t *testing.T) {
	const url = "https://portal.stf.jus.br/processos/detalhe.asp?incidente=6543210"
	d := newPortal(detailHTML, url, "1234567-89.2023.8.26.0050")
	rec := portal.CaseRecord{ID: caseID, Tribunal: portal.TribunalSTF, Status: portal.StatusInProgress}

	store, stats := runOne(t, d, rec)
	assert.Equal(t, 1, stats.Success)

	got, ok := store.Get(caseID, portal.TribunalSTF)
	require.True(t, ok)
	assert.Equal(t, portal.Fields{
		Parties:        "RECTE. - FULANO DE TAL • RECDO. - ESTADO DE SÃO PAULO",
		Classification: "ARE 1234567",
		Decision:       "Agravo regimental não provido",
		Movement:       "Baixa definitiva dos autos, Guia nº 5512/2024",
		Link:           url,
	}, got.Fields)
	assert.Equal(t, portal.StatusDischarged, got.SuggestedStatus)
	assert.Equal(t, portal.StatusInProgress, got.Status)
	assert.Equal(t, "2024-07-01T09:30:00Z", got.QueriedAt)

	// Search type, digits and the decisions tab were all driven.
	assert.Equal(t, 1, d.Called("Act", searchTypeSelect))
	assert.Equal(t, 2+len(portal.NormalizeID(caseID)), d.Called("Act", numberField))
	assert.Equal(t, 1, d.Called("Act", decisionsTab[0]))
	assert.Equal(t, 1, d.Called("Act", homeLogo))
	assert.Empty(t, d.Snapshots())
}

func TestNotFoundCase(t *testing.T) {
	d := newPortal(notFoundHTML, DefaultBaseURL, caseID)
	rec := portal.CaseRecord{
		ID: caseID, Tribunal: portal.TribunalSTF, Status: portal.StatusInProgress,
		Fields: portal.Fields{Parties: "stale"},
	}

	store, stats := runOne(t, d, rec)
	assert.Equal(t, 1, stats.NotFound)

	got, _ := store.Get(caseID, portal.TribunalSTF)
	assert.Equal(t, portal.NotFoundFields(NoMovement), got.Fields)
	assert.Equal(t, portal.StatusInProgress, got.Status)
	assert.Empty(t, got.SuggestedStatus)
}

func TestSilentReturnToFormIsClassified(t *testing.T) {
	const unknownHTML = `<html><body>
<a href="/"><img alt="Supremo Tribunal Federal" src="logo.png"></a>
<p>Serviço temporariamente indisponível</p>
</body></html>`

	tests := []struct {
		name      string
		result    string
		notFound  int
		ambiguous int
	}{
		{name: "search form again", result: homeHTML, notFound: 1},
		{name: "unknown layout", result: unknownHTML, ambiguous: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newPortal(tt.result, DefaultBaseURL, caseID)
			rec := portal.CaseRecord{ID: caseID, Tribunal: portal.TribunalSTF, Status: portal.StatusInProgress}
			store := portaltest.NewMemoryStore(rec)
			opts := portal.Options{MaxRetries: 3, Now: time.Now}

			stats, err := portal.NewOrchestrator(d, New(testSettings(), nil), store, opts, nil).Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.notFound, stats.NotFound)
			assert.Equal(t, tt.ambiguous, stats.ErrorKinds["ambiguous"])
			assert.Zero(t, stats.ErrorKinds["transient"])
			assert.Equal(t, 1, d.Called("Act", searchButton), "an answered search must not be resubmitted")

			got, _ := store.Get(caseID, portal.TribunalSTF)
			if tt.notFound == 1 {
				assert.Equal(t, portal.NotFoundFields(NoMovement), got.Fields)
				assert.Empty(t, d.Snapshots())
			} else {
				assert.Zero(t, store.Updates())
				assert.Equal(t, []string{"STF_12345678920238260050_ambiguous"}, d.Snapshots())
			}
		})
	}
}

func TestMistypedNumberFailsSubmit(t *testing.T) {
	d := newPortal(detailHTML, DefaultBaseURL, "1234567-8")
	rec := portal.CaseRecord{ID: caseID, Tribunal: portal.TribunalSTF, Status: portal.StatusInProgress}

	store, stats := runOne(t, d, rec)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.ErrorKinds["submit"])
	assert.Zero(t, store.Updates())
	assert.Zero(t, d.Called("Act", searchButton), "search must not be clicked with a wrong number")
}

func TestResetFallsBackToNavigation(t *testing.T) {
	d := portaltest.NewFakeDriver("https://portal.stf.jus.br/x", `<html><body><p>erro</p></body></html>`)
	d.OnNavigate = func(d *portaltest.FakeDriver, url string) error {
		d.SetPage(url, homeHTML)
		return nil
	}
	require.NoError(t, New(testSettings(), nil).Reset(context.Background(), d))
	assert.Equal(t, 1, d.Called("Navigate", DefaultBaseURL))
}

func TestSuperiorNumber(t *testing.T) {
	tests := map[string]string{
		"ARE 1234567 - AgR": "ARE 1234567",
		"RE 1234567 ED":     "RE 1234567",
		"HC 98765":          "HC 98765",
		"  RE 7  ":          "RE 7",
	}
	for in, want := range tests {
		assert.Equal(t, want, SuperiorNumber(in), in)
	}
}
