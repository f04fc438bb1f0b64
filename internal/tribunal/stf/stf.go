// Package stf drives the Supremo Tribunal Federal case search.
package stf

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"courtsync/internal/portal"
)

// DefaultBaseURL is the portal home, where the search form lives.
const DefaultBaseURL = "https://portal.stf.jus.br/"

// NoMovement is stored for cases the portal does not know.
const NoMovement = "Não há movimentação no STF"

const (
	searchTypeSelect = "#tipo-pesquisa-processo"
	// Third entry of the search type list is "Número único".
	searchTypeIndex = 2
	numberField     = "#pesquisaPrincipalNumeroUnico"
	searchButton    = "#btnPesquisar"
	homeLogo        = "img[alt='Supremo Tribunal Federal']"
	partiesRows     = "#partes-resumidas > div"
	notFoundText    = "Processo não encontrado"
)

var decisionsTab = []string{
	"li.li-decisoes a[href='#decisoes']",
	"a[href='#decisoes']",
}

var parensRe = regexp.MustCompile(`\(.*?\)`)

// partiesScript reads the summarized parties from the live DOM, for layouts
// where they are rendered after load.
const partiesScript = `() => {
	const out = [];
	document.querySelectorAll("#partes-resumidas > div").forEach(div => {
		const role = div.children[0]?.innerText?.trim().replace(/\(.*?\)/g, '');
		const name = div.children[1]?.innerText?.trim();
		if (role && name) out.push(role.trim() + " - " + name);
	});
	return out.join(" • ");
}`

// fieldValueScript returns the current value of an input.
const fieldValueScript = `(sel) => { const el = document.querySelector(sel); return el ? el.value : ""; }`

// Adapter implements portal.Adapter for STF.
type Adapter struct {
	settings portal.Settings
	logger   *zap.Logger
}

// New builds an STF adapter.
func New(settings portal.Settings, logger *zap.Logger) *Adapter {
	if settings.BaseURL == "" {
		settings.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{settings: settings.WithDefaults(), logger: logger}
}

func (a *Adapter) Tribunal() portal.Tribunal { return portal.TribunalSTF }

func (a *Adapter) Open(ctx context.Context, d portal.Driver) error {
	if err := d.Navigate(ctx, a.settings.BaseURL); err != nil {
		return fmt.Errorf("navigate to %s: %w", a.settings.BaseURL, err)
	}
	if err := d.Await(ctx, searchTypeSelect, a.settings.ElementTimeout); err != nil {
		return fmt.Errorf("search form did not load: %w", err)
	}
	return nil
}

func (a *Adapter) Submit(ctx context.Context, d portal.Driver, c portal.CaseRecord) error {
	digits := portal.NormalizeID(portal.CleanID(c.ID))
	if digits == "" {
		return &portal.Error{Kind: portal.KindSubmit, Op: "normalize", Case: c.ID, Err: errors.New("identifier has no digits")}
	}

	if err := d.Await(ctx, searchTypeSelect, a.settings.ElementTimeout); err != nil {
		return err
	}
	if err := d.Act(ctx, searchTypeSelect, portal.SelectIndex(searchTypeIndex)); err != nil {
		return fmt.Errorf("select search type: %w", err)
	}
	if err := a.typeNumber(ctx, d, digits); err != nil {
		return err
	}
	if err := d.Act(ctx, searchButton, portal.Click()); err != nil {
		return fmt.Errorf("click search: %w", err)
	}

	// The search form stays on screen until the portal answers, so only the
	// explicit outcomes end the wait early.
	ind := a.Indicators()
	err := portal.WaitUntil(ctx, a.settings.ResultTimeout, a.settings.PollInterval, func(ctx context.Context) (bool, error) {
		p, err := portal.LoadPage(ctx, d)
		if err != nil {
			return false, err
		}
		return ind.NoMatch(p) || ind.DetailView(p), nil
	})
	if errors.Is(err, portal.ErrTimeout) {
		// A bare search form or an unknown layout; classification decides.
		a.logger.Debug("No explicit outcome after search", zap.String("case", c.ID))
		return nil
	}
	return err
}

// typeNumber enters digits one at a time and checks the field kept them all.
// The portal masks the field, so dots and dashes in the value are ignored.
func (a *Adapter) typeNumber(ctx context.Context, d portal.Driver, digits string) error {
	if err := d.Act(ctx, numberField, portal.Click()); err != nil {
		return fmt.Errorf("focus number field: %w", err)
	}
	if err := d.Act(ctx, numberField, portal.Clear()); err != nil {
		return fmt.Errorf("clear number field: %w", err)
	}
	for _, ch := range digits {
		if err := d.Act(ctx, numberField, portal.Input(string(ch))); err != nil {
			return fmt.Errorf("type digit: %w", err)
		}
		if err := portal.Sleep(ctx, a.settings.TypingDelay); err != nil {
			return err
		}
	}
	value, err := portal.RunString(ctx, d, fieldValueScript, numberField)
	if err != nil {
		return fmt.Errorf("read number field: %w", err)
	}
	if got := portal.NormalizeID(value); got != digits {
		return &portal.Error{Kind: portal.KindSubmit, Op: "type number", Err: fmt.Errorf("field holds %q, want %q", value, digits)}
	}
	return nil
}

func (a *Adapter) Indicators() portal.Indicators {
	return portal.Indicators{
		NoMatch:    portal.TextMatches("", notFoundText),
		DetailView: portal.HasSelector("#partes-resumidas"),
		QueryForm:  portal.VisibleSelector(searchTypeSelect),
	}
}

// Candidates is never reached: a unique number search lands on one case.
func (a *Adapter) Candidates(context.Context, *portal.Page) ([]portal.Candidate, error) {
	return nil, errors.New("stf search does not list candidates")
}

func (a *Adapter) Choose(context.Context, portal.Driver, portal.Candidate) error {
	return errors.New("stf search does not list candidates")
}

// Expand opens the decisions tab the movement is read from.
func (a *Adapter) Expand(ctx context.Context, d portal.Driver) error {
	sel, err := portal.ClickFirst(ctx, d, a.settings.ElementTimeout, decisionsTab...)
	if err != nil {
		return err
	}
	a.logger.Debug("Opened decisions tab", zap.String("selector", sel))
	return portal.Sleep(ctx, a.settings.PollInterval)
}

func (a *Adapter) Extractor(portal.CaseRecord) portal.Extractor {
	return portal.Extractor{
		{
			Field: portal.FieldParties,
			Chain: portal.Chain{
				portal.JoinEach(partiesRows, " • ", formatParty),
				portal.ScriptProbe("parties", partiesScript),
			},
			Sentinel: portal.SentinelValue,
		},
		{
			Field: portal.FieldClassification,
			Chain: portal.Chain{
				portal.Transform(portal.TextBySelector("section div.row div.col-md-9 h2"), SuperiorNumber),
				portal.Transform(portal.TextBySelector("section h2"), SuperiorNumber),
			},
			Sentinel: portal.SentinelValue,
		},
		{
			Field: portal.FieldDecision,
			Chain: portal.Chain{
				portal.TextBySelector("ul.timeline > li:first-child div.description"),
				portal.TextBySelector("ul.timeline li div.description"),
			},
			Sentinel: portal.SentinelValue,
		},
		{
			Field: portal.FieldMovement,
			Chain: portal.Chain{
				portal.TextBySelector("#decisoes > div > div:first-child"),
				portal.TextBySelector("#decisoes ul li:first-child"),
				portal.TextBySelector("div[id='decisoes'] > div"),
			},
			Sentinel: portal.SentinelValue,
		},
		{
			Field: portal.FieldLink,
			Chain: portal.Chain{
				portal.FuncProbe("current url", func(_ context.Context, p *portal.Page) (string, error) { return p.URL, nil }),
			},
			Sentinel: portal.SentinelValue,
		},
	}
}

func formatParty(s *goquery.Selection) string {
	cells := s.Children()
	if cells.Length() < 2 {
		return ""
	}
	role := strings.TrimSpace(parensRe.ReplaceAllString(strings.TrimSpace(cells.Eq(0).Text()), ""))
	name := strings.TrimSpace(cells.Eq(1).Text())
	if role == "" || name == "" {
		return ""
	}
	return role + " - " + name
}

// SuperiorNumber cuts the page heading down to the class and number of the
// case, which is 11 runes for ARE cases and 10 otherwise.
func SuperiorNumber(heading string) string {
	n := 10
	if strings.Contains(heading, "ARE") {
		n = 11
	}
	r := []rune(strings.TrimSpace(heading))
	if len(r) > n {
		r = r[:n]
	}
	return strings.TrimSpace(string(r))
}

func (a *Adapter) NoMovement() string { return NoMovement }

func (a *Adapter) Stamp(t time.Time) string { return t.Format(time.RFC3339) }

// Reset goes back home through the logo, or by navigating when the logo is gone.
func (a *Adapter) Reset(ctx context.Context, d portal.Driver) error {
	if _, err := portal.ClickFirst(ctx, d, a.settings.ElementTimeout, homeLogo); err != nil {
		a.logger.Debug("Logo not clickable, navigating home", zap.Error(err))
		if err := d.Navigate(ctx, a.settings.BaseURL); err != nil {
			return fmt.Errorf("navigate home: %w", err)
		}
	}
	return d.Await(ctx, searchTypeSelect, a.settings.ElementTimeout)
}

var _ portal.Adapter = (*Adapter)(nil)
