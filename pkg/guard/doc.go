// Package guard decides which routes a session may open.
//
// Routes map to a Policy: Public, or Require(capability). Lookup walks a
// segment trie. An exact pattern wins, then the longest pattern that is a
// whole-segment prefix of the path, then the set's default policy, which
// is Public unless configured otherwise. A session without a role context
// is always denied.
//
// Policy sets can be loaded from YAML and reloaded on change:
//
//	default: public
//	rules:
//	  - path: /manager/users
//	    require: users
package guard
