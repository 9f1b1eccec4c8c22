// Package moderation gates questions before any retrieval or model call.
//
// The gate is a high-precision rule ensemble: a blocked question gets a
// fixed safe message for its category and never reaches expansion,
// retrieval, the language model, or persisted history.
package moderation

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Blocking categories, in decreasing severity. Decide returns the most
// severe category whose rule matches.
const (
	CategorySexualMinors    = "sexual_minors"
	CategorySelfHarm        = "self_harm"
	CategoryViolenceIllegal = "violence_illegal"
	CategoryMedicalHarm     = "medical_harm"
)

// SafeMessages maps each blocking category to its fixed response.
var SafeMessages = map[string]string{
	CategorySexualMinors: "I can't assist with sexual content involving minors.",
	CategorySelfHarm: "I'm really sorry you're feeling this way, but I can't help with that. " +
		"If you're in immediate danger or considering self-harm, please contact your local " +
		"emergency number or speak to a qualified professional right now.",
	CategoryViolenceIllegal: "I can't assist with requests that could harm you or others or are illegal.",
	CategoryMedicalHarm:     "I can't assist with dangerous medical instructions or overdose guidance.",
}

var (
	reSelfHarm = regexp.MustCompile(
		`(?i)(kill myself|suicide|end my life|self[-\s]?harm|hurt myself|cutting|self[-\s]?mutilation)`)
	reMedicalHarm = regexp.MustCompile(
		`(?i)(overdose|lethal dose|how many (?:pills|tablets) (?:to|would) (?:kill|harm)|(?:is it safe to )?mix .* (?:to overdose))`)
	reViolenceIllegal = regexp.MustCompile(
		`(?i)(kill (?:someone|people)|how to (?:make|build) (?:a )?(?:bomb|explosive|molotov|napalm)|buy (?:unregistered|illegal) (?:gun|weapon)|how to (?:hack|scam|forge|cook meth))`)

	// Sexual content involving minors requires an age cue and a sexual cue
	// to co-occur.
	reAgeMinor = regexp.MustCompile(
		`(?i)(\b(?:minor|underage|child|children|12|13|14|15|16|17)\b|(\d{1,2})\s?(?:yo|yrs?|years? old))`)
	reSexual = regexp.MustCompile(`(?i)(sex|nude|naked|porn|explicit|xxx|erotic)`)
)

// Decision is the gate's verdict for one question.
type Decision struct {
	Blocked  bool
	Category string
	Message  string
}

// Gate runs the rule ensemble. The zero value is not usable; construct
// with New.
type Gate struct {
	enabled bool
	logger  *zap.Logger
}

// New creates a moderation Gate. A disabled gate allows everything.
func New(enabled bool, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{enabled: enabled, logger: logger}
}

// Decide checks the question against the rules in severity order. Empty
// input is allowed; downstream validation rejects it.
func (g *Gate) Decide(question string) Decision {
	text := strings.TrimSpace(question)
	if !g.enabled || text == "" {
		return Decision{}
	}

	category := ""
	switch {
	case reAgeMinor.MatchString(text) && reSexual.MatchString(text):
		category = CategorySexualMinors
	case reSelfHarm.MatchString(text):
		category = CategorySelfHarm
	case reViolenceIllegal.MatchString(text):
		category = CategoryViolenceIllegal
	case reMedicalHarm.MatchString(text):
		category = CategoryMedicalHarm
	default:
		return Decision{}
	}

	g.logger.Info("question blocked by moderation gate",
		zap.String("category", category),
	)
	return Decision{
		Blocked:  true,
		Category: category,
		Message:  SafeMessages[category],
	}
}
