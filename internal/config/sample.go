package config

import (
	"strconv"

	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// EncodeHCL renders a store in the layout LoadHCL reads. comments maps a
// section name to a comment placed above its block.
func EncodeHCL(store *Store, comments map[string]string) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	appendSection := func(sec *Section, blockType string, labels []string) {
		if c := comments[sec.Name]; c != "" {
			body.AppendUnstructuredTokens(commentTokens(c))
		}
		block := body.AppendNewBlock(blockType, labels)
		for _, key := range sec.Keys() {
			v, _ := sec.Lookup(key)
			block.Body().SetAttributeValue(key, toCty(v))
		}
		body.AppendNewline()
	}

	if len(store.Defaults().Keys()) > 0 {
		appendSection(store.Defaults(), SectionDefaults, nil)
	}
	for _, sec := range store.sections {
		if IsReserved(sec.Name) {
			appendSection(sec, sec.Name, nil)
		} else {
			appendSection(sec, BlockService, []string{sec.Name})
		}
	}
	return hclwrite.Format(f.Bytes())
}

func commentTokens(text string) hclwrite.Tokens {
	var toks hclwrite.Tokens
	start := 0
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == '\n' {
			toks = append(toks, &hclwrite.Token{
				Type:  hclsyntax.TokenComment,
				Bytes: []byte("# " + text[start:i] + "\n"),
			})
			start = i + 1
		}
	}
	return toks
}

func toCty(v Value) cty.Value {
	if !v.IsList() {
		return scalarToCty(v.String())
	}
	if len(v.list) == 0 {
		return cty.EmptyTupleVal
	}
	elems := make([]cty.Value, len(v.list))
	for i, s := range v.list {
		elems[i] = scalarToCty(s)
	}
	return cty.TupleVal(elems)
}

func scalarToCty(s string) cty.Value {
	switch s {
	case "true":
		return cty.True
	case "false":
		return cty.False
	}
	if n, err := strconv.Atoi(s); err == nil && strconv.Itoa(n) == s {
		return cty.NumberIntVal(int64(n))
	}
	return cty.StringVal(s)
}

// SampleStore returns the sample policy printed by "ptables sample-config".
func SampleStore() *Store {
	s := NewStore()
	d := s.Defaults()
	d.Set("chain", Scalar("INPUT"))
	d.Set("action", Scalar("ACCEPT"))
	d.Set("ipv4", Scalar("true"))
	d.Set("ipv6", Scalar("true"))

	g, _ := s.AddSection(SectionGlobal)
	g.Set("closed_chains", List("INPUT", "FORWARD"))
	g.Set("allow_established_traffic", Scalar("true"))
	g.Set("allow_traffic_on_interface", List("lo"))
	g.Set("drop_invalid_traffic", Scalar("true"))
	g.Set("ssh_knocking", Scalar("false"))

	l, _ := s.AddSection(SectionLogging)
	l.Set("rate", Scalar("2/sec"))
	l.Set("level", Scalar("4"))
	l.Set("prefix", Scalar("Iptables blocked: "))
	l.Set("log", List("INPUT", "FORWARD"))
	l.Set(IgnorePrefix+"INPUT", List(
		"Netbios NS, eth0, udp, 10.0.0.150, 10.0.0.12, 137, 137",
		"Dropbox, , udp, , , 17500, 17500",
	))

	k, _ := s.AddSection(SectionKnocking)
	k.Set("ports", List("777", "888", "999"))
	k.Set("ssh_port", Scalar("22"))
	k.Set("interface", Scalar("eth0"))
	k.Set("timeout", Scalar("30"))

	ssh, _ := s.AddSection("ssh")
	ssh.Set("protocol", Scalar("tcp"))
	ssh.Set("dport", Scalar("22"))
	return s
}

var sampleComments = map[string]string{
	SectionDefaults: "Values every section falls back to.",
	SectionLogging: "ignore_<CHAIN> lists traffic dropped without logging, one record per element:\n" +
		"\"service, interface, protocol, source, destination, sport, dport\"\n" +
		"Any field may be empty but its comma must stay.",
	SectionKnocking: "Only used when ssh_knocking is true in the global block.",
	"ssh":           "Keep ssh reachable.",
}

// SampleHCL returns the sample configuration as HCL text.
func SampleHCL() []byte {
	return EncodeHCL(SampleStore(), sampleComments)
}
