// Package rules loads tiers and upgrade rules from a YAML file into a store.
//
// A rules file looks like:
//
//	tiers:
//	  - {id: 1, rank: 1, name: Member}
//	  - {id: 2, rank: 2, name: Agent}
//	  - {id: 3, rank: 3, name: Partner}
//	regular_rules:
//	  - id: 1
//	    source_tier: 1
//	    target_tier: 2
//	    expression: "withdrawnAmount >= 1000 && inviteeCount >= 5"
//	direct_rules:
//	  - id: 10
//	    target_tier: 3
//	    priority: 100
//	    expression: "settledCommissionAmount >= 50000"
//
// Rule IDs are required so that applying the same file twice updates rules
// in place. The whole file is validated before anything is written, and
// a Watcher reapplies it on change.
package rules
