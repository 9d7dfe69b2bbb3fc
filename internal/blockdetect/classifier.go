package blockdetect

import (
	"fmt"
	"strings"
)

// Kind is the outcome of classifying a response.
type Kind int

const (
	KindOK Kind = iota
	KindRateLimited
	KindBlocked
	KindCaptcha
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindRateLimited:
		return "rate_limited"
	case KindBlocked:
		return "blocked"
	case KindCaptcha:
		return "captcha"
	default:
		return "unknown"
	}
}

// Result is a classification of one response. Reason is a human-readable
// explanation for blocked and captcha outcomes.
type Result struct {
	Kind   Kind
	Reason string
}

// Indicator pairs a literal, case-insensitive substring with the kind it
// signals when found in a response body.
type Indicator struct {
	Term string
	Kind Kind
}

// DefaultBodyIndicators is the body vocabulary scanned in order; the first
// match wins. Literal substrings only, no fuzzy matching.
var DefaultBodyIndicators = []Indicator{
	{"captcha", KindCaptcha},
	{"recaptcha", KindCaptcha},
	{"hcaptcha", KindCaptcha},
	{"verify you are human", KindCaptcha},
	{"verify you're human", KindCaptcha},
	{"are you a robot", KindCaptcha},
	{"please verify", KindCaptcha},
	{"security check", KindCaptcha},
	{"access denied", KindBlocked},
	{"unusual traffic", KindBlocked},
	{"automated access", KindBlocked},
	{"bot detection", KindBlocked},
	{"ddos protection", KindBlocked},
	{"cloudflare", KindBlocked},
	{"incapsula", KindBlocked},
	{"distil networks", KindBlocked},
	{"imperva", KindBlocked},
	{"perimeterx", KindBlocked},
	{"datadome", KindBlocked},
}

// DefaultChallengeURLs are substrings of URLs a challenge flow redirects to.
var DefaultChallengeURLs = []string{
	"google.com/recaptcha",
	"hcaptcha.com",
	"challenges.cloudflare.com",
	"captcha",
	"challenge",
}

// DefaultDOMMarkers are markup fragments of known CAPTCHA widgets.
var DefaultDOMMarkers = []string{
	`id="captcha"`,
	`class="captcha"`,
	`id="recaptcha"`,
	`class="g-recaptcha"`,
	`class="h-captcha"`,
	`data-sitekey=`,
	`cf-turnstile`,
}

// Classifier inspects a response and decides whether it is a usable page,
// a rate-limit response, an anti-bot block, or a CAPTCHA challenge. All
// rules are literal substring matches; false negatives are expected.
type Classifier struct {
	bodyIndicators []Indicator
	challengeURLs  []string
	domMarkers     []string
}

// Option customizes a Classifier beyond its built-in vocabulary.
type Option func(*Classifier)

// WithBodyIndicators replaces the body vocabulary.
func WithBodyIndicators(indicators []Indicator) Option {
	return func(c *Classifier) { c.bodyIndicators = indicators }
}

// WithChallengeURLs replaces the challenge URL substrings.
func WithChallengeURLs(urls []string) Option {
	return func(c *Classifier) { c.challengeURLs = urls }
}

// WithDOMMarkers replaces the CAPTCHA DOM marker fragments.
func WithDOMMarkers(markers []string) Option {
	return func(c *Classifier) { c.domMarkers = markers }
}

func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		bodyIndicators: DefaultBodyIndicators,
		challengeURLs:  DefaultChallengeURLs,
		domMarkers:     DefaultDOMMarkers,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify applies the detection rules in order: status code, body
// vocabulary, challenge URL, CAPTCHA DOM markers. url may be empty.
func (c *Classifier) Classify(statusCode int, body, url string) Result {
	switch statusCode {
	case 403:
		return Result{Kind: KindBlocked, Reason: "access forbidden - IP may be blocked"}
	case 429:
		return Result{Kind: KindRateLimited, Reason: "too many requests - rate limited"}
	case 503:
		return Result{Kind: KindBlocked, Reason: "service unavailable - may be under protection"}
	}

	bodyLower := strings.ToLower(body)

	for _, ind := range c.bodyIndicators {
		if strings.Contains(bodyLower, ind.Term) {
			return Result{Kind: ind.Kind, Reason: fmt.Sprintf("body indicator %q", ind.Term)}
		}
	}

	if url != "" {
		urlLower := strings.ToLower(url)
		for _, pattern := range c.challengeURLs {
			if strings.Contains(urlLower, pattern) {
				return Result{Kind: KindCaptcha, Reason: fmt.Sprintf("challenge url %q", pattern)}
			}
		}
	}

	for _, marker := range c.domMarkers {
		if strings.Contains(bodyLower, marker) {
			return Result{Kind: KindCaptcha, Reason: fmt.Sprintf("captcha element %q", marker)}
		}
	}

	return Result{Kind: KindOK}
}
