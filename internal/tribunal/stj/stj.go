// Package stj drives the Superior Tribunal de Justiça case search.
package stj

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"courtsync/internal/portal"
)

const (
	// DefaultBaseURL opens the case search application.
	DefaultBaseURL = "https://processo.stj.jus.br/processo/pesquisa/?aplicacao=processos.ea"
	// Origin prefixes document paths found in the decisions tab.
	Origin = "https://processo.stj.jus.br"

	NoMovement      = "Não há movimentação no STJ"
	DecisionPointer = "Veja a coluna Link"
	MovementMissing = "Dados não disponíveis"

	pageTitle = "Consulta Processual"
	helpText  = "O que eu consigo ver aqui?"
)

const (
	unifiedNumberField = "#idNumeroUnico"
	caseNumberField    = "#idNumeroProcesso"
	messageLine        = "#idDivBlocoMensagem.clsMensagemBloco .clsMensagemLinha"
	classLabel         = "#idSpanClasseDescricao"
	queryForm          = "#idDivLinhaFormulario"
	listingEntry       = "div.clsListaProcessoFormatoVerticalBlocoExterno"
	listingFiled       = "span.clsLinhaProcessosDataAutuacao"
	detailRow          = ".classDivLinhaDetalhes"
	detailLabel        = ".classSpanDetalhesLabel"
	detailText         = ".classSpanDetalhesTexto"
	partiesBlock       = "#idDetalhesPartesAdvogadosProcuradores"
	decisionsLink      = "a.clsDecisoesMonocraticasTopoLink"
)

var (
	resultCountRe = regexp.MustCompile(`Pesquisa resultou em\s+(\d+)\s+registro`)
	documentRe    = regexp.MustCompile(`'([^']*/processo/dj/documento/mediado/[^']*)'`)
)

const (
	titleScript = `() => document.title`

	clearFieldScript = `(sel) => { const el = document.querySelector(sel); if (el) { el.value = ""; } }`

	typeDigitScript = `(sel, digit) => {
	const el = document.querySelector(sel);
	if (el) {
		el.value += digit;
		el.dispatchEvent(new Event("input", { bubbles: true }));
	}
}`

	submitScript = `() => {
	if (typeof quandoClicaConsultar === "function") {
		quandoClicaConsultar();
		return "OK";
	}
	return "missing";
}`

	openCandidateScript = `(index) => {
	const entries = document.querySelectorAll("div.clsListaProcessoFormatoVerticalBlocoExterno");
	const link = entries[index] && entries[index].querySelector("a");
	if (!link) return "missing";
	link.click();
	return "OK";
}`

	showDecisionsScript = `() => {
	if (typeof setVisibilidadeAbaDecisoes === "function") {
		setVisibilidadeAbaDecisoes();
		return "OK";
	}
	return "missing";
}`

	newSearchScript = `() => {
	const button = document.querySelector("#idBotaoFormularioExtendidoNovaConsulta");
	if (button) {
		button.click();
		return "OK";
	}
	if (typeof quandoClicaNovaConsulta === "function") {
		quandoClicaNovaConsulta("idDivBlocoFormularioExtendido", "idDivFoneticaBloco", "idDivFormularioExtendidoLinhaBotaoNovaConsulta");
		return "OK";
	}
	return "missing";
}`
)

// Adapter implements portal.Adapter for STJ.
type Adapter struct {
	settings portal.Settings
	logger   *zap.Logger
}

// New builds an STJ adapter.
func New(settings portal.Settings, logger *zap.Logger) *Adapter {
	if settings.BaseURL == "" {
		settings.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{settings: settings.WithDefaults(), logger: logger}
}

func (a *Adapter) Tribunal() portal.Tribunal { return portal.TribunalSTJ }

func (a *Adapter) Open(ctx context.Context, d portal.Driver) error {
	if err := d.Navigate(ctx, a.settings.BaseURL); err != nil {
		return fmt.Errorf("navigate to %s: %w", a.settings.BaseURL, err)
	}
	if err := d.Await(ctx, "body", a.settings.ElementTimeout); err != nil {
		return err
	}
	title, err := portal.RunString(ctx, d, titleScript)
	if err != nil {
		return fmt.Errorf("read title: %w", err)
	}
	if !strings.Contains(title, pageTitle) {
		return fmt.Errorf("unexpected page title %q", title)
	}
	return nil
}

// QueryField picks the input for an identifier: habeas corpus numbers go to
// the case number field, everything else to the unified number field.
func QueryField(id string) string {
	if portal.IsHabeasCorpus(id) {
		return caseNumberField
	}
	return unifiedNumberField
}

func (a *Adapter) Submit(ctx context.Context, d portal.Driver, c portal.CaseRecord) error {
	id := portal.CleanID(c.ID)
	field := QueryField(id)
	digits := portal.NormalizeID(id)
	if digits == "" {
		return &portal.Error{Kind: portal.KindSubmit, Op: "normalize", Case: c.ID, Err: errors.New("identifier has no digits")}
	}

	if err := d.Await(ctx, field, a.settings.ElementTimeout); err != nil {
		return err
	}
	if err := d.Act(ctx, field, portal.Click()); err != nil {
		return fmt.Errorf("focus %s: %w", field, err)
	}
	if _, err := d.Run(ctx, clearFieldScript, field); err != nil {
		return fmt.Errorf("clear %s: %w", field, err)
	}
	// The field ignores synthetic key events, so digits are appended through
	// the input event the page listens to.
	for _, ch := range digits {
		if _, err := d.Run(ctx, typeDigitScript, field, string(ch)); err != nil {
			return fmt.Errorf("type digit: %w", err)
		}
		if err := portal.Sleep(ctx, a.settings.TypingDelay); err != nil {
			return err
		}
	}

	res, err := portal.RunString(ctx, d, submitScript)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if res != "OK" {
		return &portal.Error{Kind: portal.KindSubmit, Op: "submit", Err: errors.New("quandoClicaConsultar is not defined")}
	}

	err = portal.WaitUntil(ctx, a.settings.ResultTimeout, a.settings.PollInterval, func(ctx context.Context) (bool, error) {
		p, err := portal.LoadPage(ctx, d)
		if err != nil {
			return false, err
		}
		return !p.Contains(helpText), nil
	})
	if errors.Is(err, portal.ErrTimeout) {
		// Some outcomes keep the help block; classification decides.
		a.logger.Debug("Help text still present after submit", zap.String("case", c.ID))
		return nil
	}
	return err
}

func (a *Adapter) Indicators() portal.Indicators {
	return portal.Indicators{
		NoMatch:     portal.TextMatches(messageLine, "nenhum registro", "não encontrado", "nao encontrado"),
		ResultCount: ResultCount,
		DetailView:  portal.HasSelector(classLabel),
		QueryForm:   portal.VisibleSelector(queryForm),
	}
}

// ResultCount reads the announced number of results, falling back to the
// number of listed entries when the banner has no number.
func ResultCount(p *portal.Page) int {
	listed := p.Find(listingEntry).Length()
	m := resultCountRe.FindStringSubmatch(p.BodyText())
	if m == nil {
		return listed
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < listed {
		return listed
	}
	return n
}

func (a *Adapter) Candidates(_ context.Context, p *portal.Page) ([]portal.Candidate, error) {
	var out []portal.Candidate
	p.Find(listingEntry).Each(func(i int, s *goquery.Selection) {
		link := s.Find("a").First()
		out = append(out, portal.Candidate{
			Position: i,
			Filed:    strings.TrimSpace(s.Find(listingFiled).First().Text()),
			Label:    portal.Sanitize(link.Text()),
			Href:     link.AttrOr("href", ""),
		})
	})
	if len(out) == 0 {
		return nil, errors.New("listing has no entries")
	}
	return out, nil
}

func (a *Adapter) Choose(ctx context.Context, d portal.Driver, c portal.Candidate) error {
	res, err := portal.RunString(ctx, d, openCandidateScript, c.Position)
	if err != nil {
		return err
	}
	if res != "OK" {
		return fmt.Errorf("entry %d has no link", c.Position)
	}
	return d.Await(ctx, classLabel, a.settings.ResultTimeout)
}

// Expand makes the decisions tab render its document links.
func (a *Adapter) Expand(ctx context.Context, d portal.Driver) error {
	res, err := portal.RunString(ctx, d, showDecisionsScript)
	if err != nil {
		return err
	}
	if res != "OK" {
		return errors.New("setVisibilidadeAbaDecisoes is not defined")
	}
	return portal.Sleep(ctx, a.settings.PollInterval)
}

func (a *Adapter) Extractor(portal.CaseRecord) portal.Extractor {
	return portal.Extractor{
		{
			Field:    portal.FieldParties,
			Chain:    portal.Chain{portal.JoinEach(partiesBlock+" "+detailRow, " | ", formatParty)},
			Sentinel: portal.SentinelValue,
		},
		{
			Field:    portal.FieldClassification,
			Chain:    portal.Chain{portal.TextBySelector(classLabel)},
			Sentinel: portal.SentinelValue,
		},
		{
			Field: portal.FieldDecision,
			Chain: portal.Chain{portal.Literal(DecisionPointer)},
		},
		{
			Field:    portal.FieldMovement,
			Chain:    portal.Chain{portal.LabeledRow(detailRow, detailLabel, detailText, "ÚLTIMA FASE", "ULTIMA FASE")},
			Sentinel: MovementMissing,
		},
		{
			Field: portal.FieldLink,
			Chain: portal.Chain{
				portal.FuncProbe("decision document", documentLink),
				portal.FuncProbe("current url", func(_ context.Context, p *portal.Page) (string, error) {
					return portal.CanonicalDocumentURL(Origin, p.URL), nil
				}),
			},
			Sentinel: portal.SentinelValue,
		},
	}
}

func formatParty(s *goquery.Selection) string {
	label := strings.TrimSpace(s.Find(detailLabel).First().Text())
	name := strings.TrimSpace(s.Find(detailText + " a").First().Text())
	if label == "" || name == "" {
		return ""
	}
	return label + " " + name
}

// documentLink pulls the monocratic decision document out of the link's
// onclick handler.
func documentLink(_ context.Context, p *portal.Page) (string, error) {
	onclick, ok := p.Find(decisionsLink).First().Attr("onclick")
	if !ok {
		return "", fmt.Errorf("%s: not present", decisionsLink)
	}
	m := documentRe.FindStringSubmatch(onclick)
	if m == nil {
		return "", errors.New("onclick holds no document path")
	}
	return portal.CanonicalDocumentURL(Origin, m[1]), nil
}

func (a *Adapter) NoMovement() string { return NoMovement }

func (a *Adapter) Stamp(t time.Time) string { return t.Format(time.DateOnly) }

// Reset starts a new search through the portal's own button.
func (a *Adapter) Reset(ctx context.Context, d portal.Driver) error {
	res, err := portal.RunString(ctx, d, newSearchScript)
	if err != nil {
		return err
	}
	if res != "OK" {
		a.logger.Debug("New search control missing, reloading search page")
		if err := d.Navigate(ctx, a.settings.BaseURL); err != nil {
			return fmt.Errorf("navigate to search: %w", err)
		}
	}
	return portal.Sleep(ctx, a.settings.PollInterval)
}

var _ portal.Adapter = (*Adapter)(nil)
