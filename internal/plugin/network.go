package plugin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scylladb/go-set/iset"

	"github.com/gzhole/memscope/internal/model"
)

// NetworkConfig holds the watch-lists the network analyzer matches against.
type NetworkConfig struct {
	SuspiciousPorts  []int    `yaml:"suspicious_ports"`
	SuspiciousRanges []string `yaml:"suspicious_ranges"`
	MaliciousDomains []string `yaml:"malicious_domains"`
	InternalRanges   []string `yaml:"internal_ranges"`
	BackdoorPorts    []int    `yaml:"backdoor_ports"`
}

func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		SuspiciousPorts:  []int{22, 23, 80, 443, 8080, 8443, 3389, 5900, 5901},
		SuspiciousRanges: []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.1"},
		MaliciousDomains: []string{"malware.com", "suspicious.org", "bad.net"},
		InternalRanges:   []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.0/8"},
		BackdoorPorts:    []int{22, 23, 3389, 5900, 5901},
	}
}

// SuspiciousConnection is one watch-list hit. A connection that matches
// several lists appears once per match.
type SuspiciousConnection struct {
	Connection model.NetworkConnection `json:"connection"`
	Reason     string                  `json:"reason"`
	Severity   string                  `json:"severity"`
}

type PortCount struct {
	Port  int `json:"port"`
	Count int `json:"count"`
}

type IPCount struct {
	IP    string `json:"ip"`
	Count int    `json:"count"`
}

type PortAnalysis struct {
	MostUsedPorts    []PortCount `json:"most_used_ports"`
	SuspiciousPorts  []int       `json:"suspicious_ports"`
	TotalUniquePorts int         `json:"total_unique_ports"`
}

type IPAnalysis struct {
	MostConnectedIPs []IPCount `json:"most_connected_ips"`
	UniqueIPCount    int       `json:"unique_ip_count"`
	InternalIPs      []string  `json:"internal_ips"`
	ExternalIPs      []string  `json:"external_ips"`
}

type ThreatIndicator struct {
	Type     string `json:"type"`
	Port     int    `json:"port,omitempty"`
	Address  string `json:"address"`
	Severity string `json:"severity"`
}

const topN = 10

// NetworkAnalyzer classifies connections by remote endpoint.
type NetworkAnalyzer struct {
	cfg             NetworkConfig
	suspiciousPorts *iset.Set
	backdoorPorts   *iset.Set
}

func NewNetworkAnalyzer(cfg NetworkConfig) *NetworkAnalyzer {
	return &NetworkAnalyzer{
		cfg:             cfg,
		suspiciousPorts: iset.New(cfg.SuspiciousPorts...),
		backdoorPorts:   iset.New(cfg.BackdoorPorts...),
	}
}

func (a *NetworkAnalyzer) Name() string { return Network }

func (a *NetworkAnalyzer) Analyze(res *model.AnalysisResult) model.PluginResult {
	conns := res.NetworkConnections
	if conns == nil {
		conns = []model.NetworkConnection{}
	}

	external := []model.NetworkConnection{}
	internal := []model.NetworkConnection{}
	for _, c := range conns {
		if a.IsInternal(c.RemoteAddress) {
			internal = append(internal, c)
		} else {
			external = append(external, c)
		}
	}

	return model.PluginResult{
		"network_connections":    conns,
		"suspicious_connections": a.suspicious(conns),
		"external_connections":   external,
		"internal_connections":   internal,
		"port_analysis":          a.ports(conns),
		"ip_analysis":            a.ips(conns),
		"threat_indicators":      a.threats(conns),
	}
}

// IsInternal reports whether addr is in one of the internal ranges.
func (a *NetworkAnalyzer) IsInternal(addr string) bool {
	return InAnyRange(addr, a.cfg.InternalRanges)
}

// IsMaliciousDomain reports whether addr contains a listed domain.
func (a *NetworkAnalyzer) IsMaliciousDomain(addr string) bool {
	for _, d := range a.cfg.MaliciousDomains {
		if d != "" && strings.Contains(addr, d) {
			return true
		}
	}
	return false
}

func (a *NetworkAnalyzer) suspicious(conns []model.NetworkConnection) []SuspiciousConnection {
	out := []SuspiciousConnection{}
	for _, c := range conns {
		if a.suspiciousPorts.Has(c.RemotePort) {
			out = append(out, SuspiciousConnection{c, fmt.Sprintf("Suspicious port %d", c.RemotePort), "medium"})
		}
		if InAnyRange(c.RemoteAddress, a.cfg.SuspiciousRanges) {
			out = append(out, SuspiciousConnection{c, fmt.Sprintf("Suspicious IP %s", c.RemoteAddress), "high"})
		}
		if a.IsMaliciousDomain(c.RemoteAddress) {
			out = append(out, SuspiciousConnection{c, fmt.Sprintf("Malicious domain %s", c.RemoteAddress), "high"})
		}
	}
	return out
}

func (a *NetworkAnalyzer) ports(conns []model.NetworkConnection) PortAnalysis {
	var counts []PortCount
	index := make(map[int]int)
	for _, c := range conns {
		if c.RemotePort <= 0 {
			continue
		}
		if i, ok := index[c.RemotePort]; ok {
			counts[i].Count++
			continue
		}
		index[c.RemotePort] = len(counts)
		counts = append(counts, PortCount{Port: c.RemotePort, Count: 1})
	}

	suspicious := []int{}
	for _, pc := range counts {
		if a.suspiciousPorts.Has(pc.Port) {
			suspicious = append(suspicious, pc.Port)
		}
	}

	// stable sort keeps first-seen order among equal counts
	top := append([]PortCount{}, counts...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Count > top[j].Count })
	if len(top) > topN {
		top = top[:topN]
	}

	return PortAnalysis{MostUsedPorts: top, SuspiciousPorts: suspicious, TotalUniquePorts: len(counts)}
}

func (a *NetworkAnalyzer) ips(conns []model.NetworkConnection) IPAnalysis {
	var counts []IPCount
	index := make(map[string]int)
	for _, c := range conns {
		if c.RemoteAddress == "" {
			continue
		}
		if i, ok := index[c.RemoteAddress]; ok {
			counts[i].Count++
			continue
		}
		index[c.RemoteAddress] = len(counts)
		counts = append(counts, IPCount{IP: c.RemoteAddress, Count: 1})
	}

	res := IPAnalysis{UniqueIPCount: len(counts), InternalIPs: []string{}, ExternalIPs: []string{}}
	for _, ic := range counts {
		if a.IsInternal(ic.IP) {
			res.InternalIPs = append(res.InternalIPs, ic.IP)
		} else {
			res.ExternalIPs = append(res.ExternalIPs, ic.IP)
		}
	}

	top := append([]IPCount{}, counts...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Count > top[j].Count })
	if len(top) > topN {
		top = top[:topN]
	}
	res.MostConnectedIPs = top
	return res
}

func (a *NetworkAnalyzer) threats(conns []model.NetworkConnection) []ThreatIndicator {
	out := []ThreatIndicator{}
	for _, c := range conns {
		if c.State == "LISTENING" && a.backdoorPorts.Has(c.RemotePort) {
			out = append(out, ThreatIndicator{Type: "potential_backdoor", Port: c.RemotePort, Address: c.RemoteAddress, Severity: "high"})
		}
		if a.IsMaliciousDomain(c.RemoteAddress) {
			out = append(out, ThreatIndicator{Type: "malicious_domain", Address: c.RemoteAddress, Severity: "high"})
		}
	}
	return out
}
