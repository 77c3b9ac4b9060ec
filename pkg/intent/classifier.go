package intent

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	xlang "golang.org/x/text/language"
)

// Rule triggers Category when any keyword occurs in the message.
type Rule struct {
	Category Intent
	Keywords []string
}

// DefaultRules is the built-in rule table in priority order. A message that
// asks for an expert about the weather is an expert request: the rule with
// the most specific follow-up action comes first. Keywords with surrounding
// spaces only match whole words ("grain" is not "rain").
var DefaultRules = []Rule{
	{ExpertRequest, []string{
		"expert", "extension officer", "agronomist", "specialist", "talk to someone",
		"speak to someone", "call me", " human", "advisor", "adviser",
		"ɔbenfo", "nimdefo", "ekspɛte", "gwani", "masani",
	}},
	{Weather, []string{
		"weather", " rain", "forecast", "temperature", "humid", " wind ", "drought", "sunny", "storm",
		" wim ", "osuo", "ahohuru", " yame", "tsidzadza", "nugbeɖoɖo", " hulu ", "ruwan sama", "yanayi",
	}},
	{Market, []string{
		"market", "price", " sell", "buyer", " cost", "how much for",
		"gua so", "boɔ", " tɔn ", " asi ", " jara ", "jaanɔ", "kasuwa", "farashi",
	}},
	{Subsidy, []string{
		"subsidy", "subsidies", " grant", " loan", "support programme", "support program", "planting for food",
		" mmoa ", "kpekpeɖeŋu", "tallafi", " rance ",
	}},
	{Fertilizer, []string{
		"fertilizer", "fertiliser", "manure", "compost", " npk", " urea", "soil nutrient",
		"sradeɛ", "nkɔsoɔ aduro", " taki ",
	}},
	{Pest, []string{
		" pest", "insect", "armyworm", " worm", "disease", "fungus", "blight", "locust", "weevil",
		"mmoawa", "nudzodzoe", "kwari", " cuta ",
	}},
	{Irrigation, []string{
		"irrigat", " water ", "watering", "water pump", "borehole",
		"nsuo gu", "tsi kɔkɔ", "ban ruwa",
	}},
	{Seed, []string{
		" seed", "planting", " plant ", "variety", "germination",
		" aba ", " nkoko ", " nku ", " iri ", "shuka",
	}},
	{Harvest, []string{
		"harvest", "storage", "drying", " silo", " yield",
		" twa ", "nnɔbae", "nuŋeŋe", "girbi",
	}},
	{Government, []string{
		"government", "ministry", " mofa ", "district office", "policy", "registration", "scheme",
		" aban ", "dziɖuɖu", "gwamnati",
	}},
}

// Classifier evaluates an ordered rule table. It holds no mutable state and
// may be shared across goroutines.
type Classifier struct {
	rules []Rule
}

// NewClassifier copies rules and lowercases their keywords. A nil or empty
// table uses DefaultRules. Rules for Default are ignored; Default is what
// Classify returns when nothing matches.
func NewClassifier(rules []Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	lower := cases.Lower(xlang.Und)
	c := &Classifier{rules: make([]Rule, 0, len(rules))}
	for _, r := range rules {
		if r.Category == Default {
			continue
		}
		kw := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			k = lower.String(k)
			if strings.TrimSpace(k) != "" {
				kw = append(kw, k)
			}
		}
		c.rules = append(c.rules, Rule{Category: r.Category, Keywords: kw})
	}
	return c
}

// Classify returns the first category with a keyword present in text.
// Matching is a case-insensitive substring search over the text with
// punctuation blanked, whitespace collapsed and a space added at each end.
func (c *Classifier) Classify(text string) Intent {
	fields := strings.Fields(strings.Map(blankPunct, cases.Lower(xlang.Und).String(text)))
	if len(fields) == 0 {
		return Default
	}
	text = " " + strings.Join(fields, " ") + " "
	for _, r := range c.rules {
		for _, k := range r.Keywords {
			if strings.Contains(text, k) {
				return r.Category
			}
		}
	}
	return Default
}

func blankPunct(r rune) rune {
	if r != '\'' && unicode.IsPunct(r) {
		return ' '
	}
	return r
}

// Rules returns a copy of the compiled rule table in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	for i, r := range c.rules {
		out[i] = Rule{Category: r.Category, Keywords: append([]string(nil), r.Keywords...)}
	}
	return out
}
