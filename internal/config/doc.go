// Package config loads ptables policies.
//
// A policy is a list of named sections holding keys. Three sections are
// reserved: global (table reset and default policies), logging (LOG rules
// and exemptions) and ssh_knocking. Every other section is a service that
// compiles to filter rules. A defaults section supplies keys missing from
// any section.
//
// # Formats
//
// HCL is the primary format:
//
//	defaults {
//	  chain  = "INPUT"
//	  action = "ACCEPT"
//	  ipv4   = true
//	  ipv6   = true
//	}
//
//	global {
//	  closed_chains = ["INPUT", "FORWARD"]
//	}
//
//	service "ssh" {
//	  protocol = "tcp"
//	  dport    = 22
//	}
//
// TOML and YAML files with one table (mapping) per section are read too.
// Every loader produces a [Store]; [NewPolicy] turns it into the validated,
// typed [Policy] the compiler consumes.
package config
