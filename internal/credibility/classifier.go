package credibility

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ppiankov/decisio/internal/model"
)

// primaryDomains publish first-hand engineering experience or peer-reviewed work
var primaryDomains = []string{
	// Engineering blogs of large operators
	"engineering.fb.com", "engineering.linkedin.com", "netflixtechblog.com",
	"uber.com", "blog.google", "aws.amazon.com", "cloud.google.com",
	"azure.microsoft.com", "openai.com", "anthropic.com", "deepmind.com",
	"stripe.com", "shopify.engineering", "github.blog", "slack.engineering",
	// Research
	"arxiv.org", "acm.org", "ieee.org", "nature.com", "science.org", "doi.org",
	// Major press and analysts
	"nytimes.com", "wsj.com", "economist.com", "ft.com",
	"gartner.com", "mckinsey.com", "hbr.org", "forrester.com",
}

// secondaryDomains are reputable trade media
var secondaryDomains = []string{
	"techcrunch.com", "wired.com", "arstechnica.com", "theverge.com",
	"thenewstack.io", "infoq.com", "zdnet.com", "venturebeat.com",
	"stackoverflow.blog", "martinfowler.com", "danluu.com", "wikipedia.org",
}

// tertiaryDomains host open, unreviewed posts of mixed quality
var tertiaryDomains = []string{
	"medium.com", "dev.to", "hackernoon.com", "dzone.com", "substack.com",
}

type pathRule struct {
	pattern *regexp.Regexp
	tier    model.AuthorityTier
	name    string
}

// pathRules catch engineering blogs hosted under a company domain
var pathRules = []pathRule{
	{regexp.MustCompile(`(?i)^/(engineering|tech|techblog)(/|$)`), model.TierSecondary, "path:engineering"},
	{regexp.MustCompile(`(?i)^/(docs|documentation|reference)(/|$)`), model.TierPrimary, "path:docs"},
}

// Classifier assigns authority tiers and flags low-credibility titles
type Classifier struct {
	domainMap   map[string]model.AuthorityTier
	domains     map[string]model.AuthorityTier
	defaultTier model.AuthorityTier
	lowQuality  []*regexp.Regexp
}

// NewClassifier builds a classifier from configuration. DomainTiers
// entries override the built-in lists.
func NewClassifier(cfg model.CredibilityConfig) (*Classifier, error) {
	defaultTier, ok := model.ParseAuthorityTier(cfg.DefaultTier)
	if !ok {
		return nil, fmt.Errorf("credibility.default_tier: unknown tier %q", cfg.DefaultTier)
	}
	if defaultTier == model.TierPrimary {
		return nil, fmt.Errorf("credibility.default_tier: unknown domains cannot be %s", defaultTier)
	}

	c := &Classifier{
		domainMap:   make(map[string]model.AuthorityTier),
		domains:     make(map[string]model.AuthorityTier),
		defaultTier: defaultTier,
	}

	for _, d := range tertiaryDomains {
		c.domains[d] = model.TierTertiary
	}
	for _, d := range secondaryDomains {
		c.domains[d] = model.TierSecondary
	}
	for _, d := range primaryDomains {
		c.domains[d] = model.TierPrimary
	}

	for domain, tierName := range cfg.DomainTiers {
		tier, ok := model.ParseAuthorityTier(tierName)
		if !ok {
			return nil, fmt.Errorf("credibility.domain_tiers[%s]: unknown tier %q", domain, tierName)
		}
		c.domainMap[strings.ToLower(domain)] = tier
	}

	for _, p := range cfg.LowQualityPattern {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("credibility.low_quality_patterns %q: %w", p, err)
		}
		c.lowQuality = append(c.lowQuality, re)
	}

	return c, nil
}

// Classify returns the credibility signals of a source
func (c *Classifier) Classify(rawURL, title string) model.Credibility {
	cred := model.Credibility{Tier: c.defaultTier, MatchedRule: "default"}

	for _, re := range c.lowQuality {
		if re.MatchString(title) {
			cred.LowQuality = true
			break
		}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return cred
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	cred.Host = host

	if tier, rule, ok := lookupDomain(c.domainMap, host); ok {
		cred.Tier, cred.MatchedRule = tier, "config:"+rule
		return cred
	}
	if tier, rule, ok := lookupDomain(c.domains, host); ok {
		cred.Tier, cred.MatchedRule = tier, "domain:"+rule
		return cred
	}

	for _, rule := range pathRules {
		if rule.pattern.MatchString(parsed.Path) {
			cred.Tier, cred.MatchedRule = rule.tier, rule.name
			return cred
		}
	}

	// Public institutions
	for _, suffix := range []string{".gov", ".edu", ".ac.uk", ".gov.uk", ".mil"} {
		if strings.HasSuffix(host, suffix) {
			cred.Tier, cred.MatchedRule = model.TierPrimary, "tld:"+strings.TrimPrefix(suffix, ".")
			return cred
		}
	}

	return cred
}

// lookupDomain matches host and then each parent domain, so
// foo.bar.example.com finds an entry for example.com
func lookupDomain(domains map[string]model.AuthorityTier, host string) (model.AuthorityTier, string, bool) {
	for candidate := host; candidate != ""; {
		if tier, ok := domains[candidate]; ok {
			return tier, candidate, true
		}
		idx := strings.Index(candidate, ".")
		if idx < 0 {
			break
		}
		candidate = candidate[idx+1:]
	}
	return model.TierUnknown, "", false
}
