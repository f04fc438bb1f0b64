package stj

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtsync/internal/portal"
	"courtsync/internal/portal/portaltest"
)

const formHTML = `<html><head><title>STJ - Consulta Processual</title></head><body>
<div id="idDivLinhaFormulario"><input id="idNumeroUnico"><input id="idNumeroProcesso"></div>
<div class="ajuda">O que eu consigo ver aqui?</div>
</body></html>`

const silentFormHTML = `<html><body>
<div id="idDivLinhaFormulario"><input id="idNumeroUnico"><input id="idNumeroProcesso"></div>
</body></html>`

const notFoundHTML = `<html><body>
<div id="idDivBlocoMensagem" class="clsMensagemBloco"><div class="clsMensagemLinha">Nenhum registro encontrado.</div></div>
<div id="idDivLinhaFormulario"><input id="idNumeroUnico"></div>
</body></html>`

const listingHTML = `<html><body>
<div class="clsMensagemLinha">Pesquisa resultou em 2 registros</div>
<div class="clsListaProcessoFormatoVerticalBlocoExterno">
  <a href="/processo/pesquisa/?num_registro=202300001">AREsp 1000/SP</a>
  <span class="clsLinhaProcessosDataAutuacao">10/01/2023</span>
</div>
<div class="clsListaProcessoFormatoVerticalBlocoExterno">
  <a href="/processo/pesquisa/?num_registro=202400002">REsp 2000/SP</a>
  <span class="clsLinhaProcessosDataAutuacao">05/06/2024</span>
</div>
</body></html>`

func detailHTML(class, movement string) string {
	return `<html><body>
<span id="idSpanClasseDescricao">` + class + `</span>
<div id="idDetalhesPartesAdvogadosProcuradores">
  <div class="classDivLinhaDetalhes"><span class="classSpanDetalhesLabel">AGRAVANTE :</span><span class="classSpanDetalhesTexto"><a href="#">FULANO   DE TAL</a></span></div>
  <div class="classDivLinhaDetalhes"><span class="classSpanDetalhesLabel">ADVOGADO :</span><span class="classSpanDetalhesTexto"><a href="#">CICRANO - SP123456</a></span></div>
  <div class="classDivLinhaDetalhes"><span class="classSpanDetalhesLabel">AGRAVADO :</span><span class="classSpanDetalhesTexto">sem link</span></div>
</div>
<div class="classDivLinhaDetalhes"><span class="classSpanDetalhesLabel">ÚLTIMA FASE</span><span class="classSpanDetalhesTexto">` + movement + `</span></div>
<a class="clsDecisoesMonocraticasTopoLink" onclick="abrirDocumento('/processo/dj/documento/mediado/?componente=MON&amp;sequencial=99', 'janela')">Decisões</a>
</body></html>`
}

// fakePortal scripts the STJ search page around a FakeDriver.
type fakePortal struct {
	*portaltest.FakeDriver

	mu     sync.Mutex
	typed  strings.Builder
	chosen []int
	result string
	detail string
}

func newFakePortal(result string) *fakePortal {
	p := &fakePortal{FakeDriver: portaltest.NewFakeDriver(DefaultBaseURL, formHTML), result: result}
	p.ScriptValue("document.title", "STJ - Consulta Processual")
	p.HandleScript(`el.value = ""`, func([]any) (any, error) {
		p.mu.Lock()
		p.typed.Reset()
		p.mu.Unlock()
		return nil, nil
	})
	p.HandleScript("el.value += digit", func(args []any) (any, error) {
		p.mu.Lock()
		p.typed.WriteString(args[1].(string))
		p.mu.Unlock()
		return nil, nil
	})
	p.HandleScript("quandoClicaConsultar", func([]any) (any, error) {
		p.SetPage("https://processo.stj.jus.br/processo/pesquisa/", p.result)
		return "OK", nil
	})
	p.HandleScript("entries[index]", func(args []any) (any, error) {
		p.mu.Lock()
		p.chosen = append(p.chosen, args[0].(int))
		p.mu.Unlock()
		p.SetPage("https://processo.stj.jus.br/processo/pesquisa/?num_registro=202400002", p.detail)
		return "OK", nil
	})
	p.ScriptValue("setVisibilidadeAbaDecisoes", "OK")
	p.HandleScript("NovaConsulta", func([]any) (any, error) {
		p.SetPage(DefaultBaseURL, formHTML)
		return "OK", nil
	})
	return p
}

func (p *fakePortal) typedDigits() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typed.String()
}

func testSettings() portal.Settings {
	return portal.Settings{
		ElementTimeout: 10 * time.Millisecond,
		ResultTimeout:  20 * time.Millisecond,
		PollInterval:   time.Millisecond,
	}
}

func run(t *testing.T, p *fakePortal, recs ...portal.CaseRecord) (*portaltest.MemoryStore, *portal.RunStats) {
	t.Helper()
	store := portaltest.NewMemoryStore(recs...)
	opts := portal.Options{Now: func() time.Time { return time.Date(2024, 7, 1, 23, 59, 0, 0, time.UTC) }}
	stats, err := portal.NewOrchestrator(p, New(testSettings(), nil), store, opts, nil).Run(context.Background())
	require.NoError(t, err)
	return store, stats
}

func pending(id string) portal.CaseRecord {
	return portal.CaseRecord{ID: id, Tribunal: portal.TribunalSTJ, Status: portal.StatusInProgress}
}

func TestMultipleResultsOpenMostRecent(t *testing.T) {
	const id = "0001234-56.2023.8.26.0050"
	p := newFakePortal(listingHTML)
	p.detail = detailHTML("REsp 2000/SP", "Baixa Definitiva para TJSP em 01/02/2024")

	store, stats := run(t, p, pending(id))
	assert.Equal(t, 1, stats.Success)
	assert.Equal(t, 1, stats.Multiple)
	assert.Equal(t, []int{1}, p.chosen, "the 05/06/2024 entry must be opened")
	assert.Equal(t, "00012345620238260050", p.typedDigits())
	assert.Equal(t, 1, p.Called("Act", unifiedNumberField))

	got, _ := store.Get(id, portal.TribunalSTJ)
	assert.Equal(t, portal.Fields{
		Parties:        "AGRAVANTE : FULANO DE TAL | ADVOGADO : CICRANO - SP123456",
		Classification: "REsp 2000/SP",
		Decision:       DecisionPointer,
		Movement:       "Baixa Definitiva para TJSP em 01/02/2024",
		Link:           "https://processo.stj.jus.br/processo/dj/documento/mediado/?componente=MON&sequencial=99&formato=PDF",
	}, got.Fields)
	assert.Equal(t, portal.StatusDischarged, got.SuggestedStatus)
	assert.Equal(t, "2024-07-01", got.QueriedAt)
}

func TestHabeasCorpusUsesCaseNumberField(t *testing.T) {
	const id = "HC 812345"
	p := newFakePortal("")
	p.result = detailHTML("HC 812345/SP", "Trânsito em julgado")
	rec := pending(id)
	rec.Fields.Classification = "kept"

	store, stats := run(t, p, rec)
	assert.Equal(t, 1, stats.HabeasCorpus)
	assert.Equal(t, 1, p.Called("Act", caseNumberField))
	assert.Zero(t, p.Called("Act", unifiedNumberField))
	assert.Equal(t, "812345", p.typedDigits())

	got, _ := store.Get(id, portal.TribunalSTJ)
	assert.Equal(t, "kept", got.Fields.Classification)
	assert.Equal(t, portal.StatusFinal, got.SuggestedStatus)
}

func TestNotFoundOutcomes(t *testing.T) {
	for name, page := range map[string]string{
		"explicit message":   notFoundHTML,
		"silent form return": silentFormHTML,
	} {
		t.Run(name, func(t *testing.T) {
			p := newFakePortal(page)
			store, stats := run(t, p, pending("123"))
			assert.Equal(t, 1, stats.NotFound)
			got, _ := store.Get("123", portal.TribunalSTJ)
			assert.Equal(t, portal.NotFoundFields(NoMovement), got.Fields)
		})
	}
}

func TestMissingMovementUsesFallback(t *testing.T) {
	p := newFakePortal(`<html><body><span id="idSpanClasseDescricao">REsp 1</span></body></html>`)
	store, _ := run(t, p, pending("77"))

	got, _ := store.Get("77", portal.TribunalSTJ)
	assert.Equal(t, MovementMissing, got.Fields.Movement)
	assert.Equal(t, portal.SentinelValue, got.Fields.Parties)
	assert.True(t, strings.HasPrefix(got.Fields.Link, "https://processo.stj.jus.br/processo/pesquisa/"))
	assert.True(t, strings.HasSuffix(got.Fields.Link, "formato=PDF"))
	assert.Empty(t, got.SuggestedStatus, "no movement means no status suggestion")
	assert.NotEmpty(t, p.Snapshots())
}

func TestOpenChecksTitle(t *testing.T) {
	d := portaltest.NewFakeDriver("", "<html><body></body></html>")
	d.ScriptValue("document.title", "Página de manutenção")
	err := New(testSettings(), nil).Open(context.Background(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected page title")
}

func TestResultCount(t *testing.T) {
	page := func(body string) *portal.Page {
		p, err := portal.ParsePage("", "<html><body>"+body+"</body></html>")
		require.NoError(t, err)
		return p
	}
	assert.Equal(t, 3, ResultCount(page(`Pesquisa resultou em 3 registros`)))
	assert.Equal(t, 2, ResultCount(page(listingHTML)))
	assert.Equal(t, 0, ResultCount(page(`<p>nada</p>`)))
	assert.Equal(t, 2, ResultCount(page(`Pesquisa resultou em registros
<div class="clsListaProcessoFormatoVerticalBlocoExterno"></div><div class="clsListaProcessoFormatoVerticalBlocoExterno"></div>`)))
}

func TestQueryField(t *testing.T) {
	assert.Equal(t, caseNumberField, QueryField("hc 1"))
	assert.Equal(t, unifiedNumberField, QueryField("0001234-56.2023.8.26.0050"))
}
