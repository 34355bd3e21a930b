package intent

import "strings"

// Classifier maps an intent to the application that handles it.
type Classifier interface {
	Classify(intent string) Application
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(intent string) Application

func (f ClassifierFunc) Classify(intent string) Application { return f(intent) }

type keywordRule struct {
	app      Application
	keywords []string
}

// KeywordClassifier matches lower-cased keywords in rule order and falls
// back to Consciousness.
type KeywordClassifier struct {
	rules []keywordRule
}

// NewKeywordClassifier returns the default keyword rules.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{rules: []keywordRule{
		{Money, []string{"pay", "send", "money", "value"}},
		{Governance, []string{"vote", "decide", "policy", "govern"}},
		{Identity, []string{"i am", "identity", "authenticate"}},
		{Social, []string{"friend", "love", "connect", "meet"}},
		{Knowledge, []string{"learn", "know", "understand", "teach"}},
		{Health, []string{"heal", "health", "cure", "wellness"}},
		{Creativity, []string{"create", "art", "music", "imagine"}},
		{Environment, []string{"earth", "nature", "climate", "green"}},
	}}
}

func (c *KeywordClassifier) Classify(intent string) Application {
	lower := strings.ToLower(intent)
	for _, r := range c.rules {
		for _, k := range r.keywords {
			if strings.Contains(lower, k) {
				return r.app
			}
		}
	}
	return Consciousness
}

const phi = 1.618033988749

var (
	amplifying = []string{"love", "help", "share", "heal", "create", "peace", "truth"}
	dampening  = []string{"hate", "harm", "steal", "destroy", "lie", "war", "false"}
)

// Strength scores an intent: 1, multiplied by phi for every amplifying
// keyword present and by 0.1 for every dampening one.
func Strength(intent string) float64 {
	lower := strings.ToLower(intent)
	amplitude := 1.0
	for _, w := range amplifying {
		if strings.Contains(lower, w) {
			amplitude *= phi
		}
	}
	for _, w := range dampening {
		if strings.Contains(lower, w) {
			amplitude *= 0.1
		}
	}
	return amplitude
}
