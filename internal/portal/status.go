package portal

import "strings"

// StatusRule maps movement text to a status. Every group in AllOf must have
// at least one alternative present and no NoneOf token may appear.
type StatusRule struct {
	AllOf  [][]string
	NoneOf []string
	Result Status
}

// Matches reports whether folded text satisfies the rule.
func (r StatusRule) Matches(folded string) bool {
	for _, group := range r.AllOf {
		hit := false
		for _, alt := range group {
			if strings.Contains(folded, alt) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	for _, tok := range r.NoneOf {
		if strings.Contains(folded, tok) {
			return false
		}
	}
	return true
}

// StatusRules is evaluated in order; the first match wins. Tokens are
// already folded.
var StatusRules = []StatusRule{
	{
		AllOf:  [][]string{{"recebido"}, {"são paulo", "sao paulo"}},
		NoneOf: []string{"supremo", "federal", "stf", "coordenadoria", "classificação", "distribuição"},
		Result: StatusReceived,
	},
	{AllOf: [][]string{{"baixa"}}, Result: StatusDischarged},
	{AllOf: [][]string{{"trânsito", "transito"}}, Result: StatusFinal},
}

// ClassifyStatus derives the status implied by movement text. Text matching
// no rule yields StatusInProgress. Empty text carries current over.
func ClassifyStatus(movement string, current Status) Status {
	if strings.TrimSpace(movement) == "" {
		return current
	}
	folded := Fold(movement)
	for _, rule := range StatusRules {
		if rule.Matches(folded) {
			return rule.Result
		}
	}
	return StatusInProgress
}
