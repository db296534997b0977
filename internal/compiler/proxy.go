package compiler

import (
	"dashshot/internal/config"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
)

type proxyRule struct {
	proxy   string
	tenants map[string]struct{}
	urls    []glob.Glob
}

// proxySelector picks the outbound proxy for a capture by tenant or by
// terminal URL. The first matching rule wins.
type proxySelector struct {
	rules []proxyRule
}

func newProxySelector(rules []config.ProxyRule) *proxySelector {
	ps := &proxySelector{}
	for _, r := range rules {
		pr := proxyRule{proxy: r.Proxy, tenants: map[string]struct{}{}}
		for _, t := range r.Tenants {
			pr.tenants[t] = struct{}{}
		}
		for _, pattern := range r.URLs {
			g, err := glob.Compile(pattern)
			if err != nil {
				log.Warn().Err(err).Str("pattern", pattern).Msg("⚠️ Skipping invalid proxy URL pattern")
				continue
			}
			pr.urls = append(pr.urls, g)
		}
		ps.rules = append(ps.rules, pr)
	}
	return ps
}

func (ps *proxySelector) pick(tenantID, terminalURL string) string {
	for _, r := range ps.rules {
		if _, ok := r.tenants[tenantID]; ok && tenantID != "" {
			return r.proxy
		}
		for _, g := range r.urls {
			if g.Match(terminalURL) {
				return r.proxy
			}
		}
	}
	return ""
}
