package adblock

import (
	"fmt"

	"github.com/AdguardTeam/urlfilter"
	"github.com/AdguardTeam/urlfilter/filterlist"
	"github.com/AdguardTeam/urlfilter/rules"

	"browserstealth/internal/intercept"
)

// Blocker decides whether a request should be blocked.
type Blocker interface {
	Match(url string, resourceType intercept.ResourceType, sourceURL string) bool
}

type filterBlocker struct {
	engine *urlfilter.NetworkEngine
}

// NewFilterBlocker compiles Adblock-syntax network rules. Cosmetic rules
// are ignored and exception rules (@@) never block.
func NewFilterBlocker(rulesText string) (Blocker, error) {
	storage, err := filterlist.NewRuleStorage([]filterlist.RuleList{
		&filterlist.StringRuleList{
			ID:             1,
			RulesText:      rulesText,
			IgnoreCosmetic: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build rule storage: %w", err)
	}

	return &filterBlocker{engine: urlfilter.NewNetworkEngine(storage)}, nil
}

func (b *filterBlocker) Match(url string, resourceType intercept.ResourceType, sourceURL string) bool {
	rule, ok := b.engine.Match(rules.NewRequest(url, sourceURL, requestType(resourceType)))
	return ok && rule != nil && !rule.Whitelist
}

func requestType(t intercept.ResourceType) rules.RequestType {
	switch t {
	case intercept.TypeDocument:
		return rules.TypeDocument
	case intercept.TypeStylesheet:
		return rules.TypeStylesheet
	case intercept.TypeImage:
		return rules.TypeImage
	case intercept.TypeMedia:
		return rules.TypeMedia
	case intercept.TypeFont:
		return rules.TypeFont
	case intercept.TypeScript:
		return rules.TypeScript
	case intercept.TypeXHR, intercept.TypeFetch:
		return rules.TypeXmlhttprequest
	case intercept.TypeWebSocket:
		return rules.TypeWebsocket
	default:
		return rules.TypeOther
	}
}

// nopBlocker never blocks.
type nopBlocker struct{}

func (nopBlocker) Match(string, intercept.ResourceType, string) bool { return false }
