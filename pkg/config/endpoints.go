package config

import (
	"regexp"
	"strings"
)

const localNetwork = "http://127.0.0.1/"

var netNamePattern = regexp.MustCompile(`^\s*(?:https?://)?(?P<net>\w+\.ton\.dev)\s*`)

var defaultEndpointsMap = map[string][]string{
	"main.ton.dev": {
		"https://main2.ton.dev",
		"https://main3.ton.dev",
		"https://main4.ton.dev",
	},
	"net.ton.dev": {
		"https://net1.ton.dev",
		"https://net5.ton.dev",
	},
	localNetwork: {
		"http://0.0.0.0/",
		"http://127.0.0.1/",
		"http://localhost/",
	},
}

// ResolveNetName maps a URL onto one of the well-known network names, or
// returns false when the URL is not a known network.
func ResolveNetName(url string) (string, bool) {
	if match := netNamePattern.FindStringSubmatch(url); match != nil {
		network := match[netNamePattern.SubexpIndex("net")]
		if _, ok := defaultEndpointsMap[network]; ok {
			return network, true
		}
	}

	if strings.Contains(url, "127.0.0.1") || strings.Contains(url, "0.0.0.0") || strings.Contains(url, "localhost") {
		return localNetwork, true
	}

	return "", false
}

// ResolveEndpoints expands a well-known network name into its endpoint list.
// Unknown URLs are returned as a single-element list.
func ResolveEndpoints(url string) []string {
	network, ok := ResolveNetName(url)
	if !ok {
		if strings.TrimSpace(url) == "" {
			return nil
		}
		return []string{url}
	}

	known := defaultEndpointsMap[network]
	out := make([]string, len(known))
	copy(out, known)
	return out
}
