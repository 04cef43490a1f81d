package allowlist

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/service/symbols"
)

// typeOrder fixes the section order of the prompt fragment.
var typeOrder = []string{"index", "etf", "stock", "forex", "commodity", "bond", "crypto"}

type file struct {
	Instruments []models.Instrument `yaml:"instruments" validate:"required,min=1,dive"`
}

// Resolver serves an immutable allow-list built once at startup.
type Resolver struct {
	list models.AllowList
}

var validate = validator.New()

// Load reads an instrument file.
func Load(path string) (*Resolver, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read allow-list: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse allow-list: %w", err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("validate allow-list: %w", err)
	}
	return New(f.Instruments)
}

// New builds a resolver from instruments. Symbols are upper-cased; duplicate
// symbols and malformed chart symbols are rejected.
func New(instruments []models.Instrument) (*Resolver, error) {
	allowed := make(map[string]models.Instrument, len(instruments))
	for _, in := range instruments {
		in.Symbol = strings.ToUpper(strings.TrimSpace(in.Symbol))
		in.ChartSymbol = strings.TrimSpace(in.ChartSymbol)
		if in.Symbol == "" {
			return nil, fmt.Errorf("allow-list: empty symbol")
		}
		if !symbols.IsChartSymbol(in.ChartSymbol) {
			return nil, fmt.Errorf("allow-list: %s has invalid chart symbol %q", in.Symbol, in.ChartSymbol)
		}
		if _, dup := allowed[in.Symbol]; dup {
			return nil, fmt.Errorf("allow-list: duplicate symbol %s", in.Symbol)
		}
		allowed[in.Symbol] = in
	}
	return &Resolver{list: models.AllowList{
		Allowed:        allowed,
		PromptFragment: promptFragment(allowed),
	}}, nil
}

func (r *Resolver) Resolve() models.AllowList {
	return r.list
}

// Instruments returns the allow-list sorted by type order then symbol.
func (r *Resolver) Instruments() []models.Instrument {
	out := make([]models.Instrument, 0, len(r.list.Allowed))
	for _, in := range r.list.Allowed {
		out = append(out, in)
	}
	rank := make(map[string]int, len(typeOrder))
	for i, t := range typeOrder {
		rank[t] = i
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := rank[out[i].Type], rank[out[j].Type]
		if ri != rj {
			return ri < rj
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func promptFragment(allowed map[string]models.Instrument) string {
	groups := make(map[string][]models.Instrument)
	for _, in := range allowed {
		groups[in.Type] = append(groups[in.Type], in)
	}
	var b strings.Builder
	b.WriteString("ALLOWED INSTRUMENTS (use only these symbols):\n")
	for _, t := range typeOrder {
		list := groups[t]
		if len(list) == 0 {
			continue
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Symbol < list[j].Symbol })
		fmt.Fprintf(&b, "%s:\n", strings.ToUpper(t))
		for _, in := range list {
			if in.Name != "" {
				fmt.Fprintf(&b, "- %s (%s) - %s\n", in.Symbol, in.ChartSymbol, in.Name)
			} else {
				fmt.Fprintf(&b, "- %s (%s)\n", in.Symbol, in.ChartSymbol)
			}
		}
	}
	return b.String()
}
