package serviceworker

import (
	"encoding/json"
	"fmt"
)

// ScriptInjector runs a script in every new document of a context.
type ScriptInjector interface {
	AddInitScript(js string) error
}

// SetupBlockingForContext makes navigator.serviceWorker.register reject with
// a SecurityError on hosts the policy blocks. Nothing is injected when the
// policy allows everything.
func (c *Controller) SetupBlockingForContext(injector ScriptInjector) error {
	js, ok := blockingScript(c.control)
	if !ok {
		return nil
	}
	if err := injector.AddInitScript(js); err != nil {
		return fmt.Errorf("failed to add service worker blocking script: %w", err)
	}
	return nil
}

type scriptPolicy struct {
	Mode      Mode             `json:"mode"`
	Overrides []DomainOverride `json:"overrides"`
	Blocked   []string         `json:"blocked"`
}

func blockingScript(ctl Control) (string, bool) {
	if (ctl.Mode == ModeAllow || ctl.Mode == "") && len(ctl.Overrides) == 0 {
		return "", false
	}

	policy := scriptPolicy{
		Mode:      ctl.Mode,
		Overrides: ctl.Overrides,
		Blocked:   ctl.BlockedDomains,
	}
	if policy.Overrides == nil {
		policy.Overrides = []DomainOverride{}
	}
	if policy.Blocked == nil {
		policy.Blocked = []string{}
	}

	raw, err := json.Marshal(policy)
	if err != nil {
		return "", false
	}

	return fmt.Sprintf(blockingTemplate, raw), true
}

const blockingTemplate = `(() => {
  if (typeof ServiceWorkerContainer === 'undefined') return;
  const policy = %s;
  const norm = (d) => String(d || '').toLowerCase().replace(/^\*\./, '').replace(/^\./, '');
  const matches = (host, pattern) => {
    const p = norm(pattern);
    return p !== '' && (host === p || host.endsWith('.' + p));
  };
  const blocked = () => {
    const host = String(location.hostname || '').toLowerCase();
    for (const o of policy.overrides) {
      if (matches(host, o.domain)) return o.mode === 'block';
    }
    if (policy.mode === 'block') return true;
    if (policy.mode === 'block-on-domain') return policy.blocked.some((d) => matches(host, d));
    return false;
  };
  const register = ServiceWorkerContainer.prototype.register;
  ServiceWorkerContainer.prototype.register = function (...args) {
    if (blocked()) {
      return Promise.reject(new DOMException('Service worker registration is blocked', 'SecurityError'));
    }
    return register.apply(this, args);
  };
})();`
