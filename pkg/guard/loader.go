package guard

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// policyFile is the on-disk form of a PolicySet:
//
//	default: public
//	rules:
//	  - path: /manager/users
//	    require: users
//	  - path: /manager/help
//	    public: true
type policyFile struct {
	Default string           `yaml:"default"`
	Rules   []policyFileRule `yaml:"rules"`
}

type policyFileRule struct {
	Path    string `yaml:"path"`
	Require string `yaml:"require,omitempty"`
	Public  bool   `yaml:"public,omitempty"`
}

// ParsePolicySet decodes and validates a YAML policy document. Unknown
// fields are rejected.
func ParsePolicySet(data []byte) (PolicySet, error) {
	var f policyFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return PolicySet{}, fmt.Errorf("failed to parse policy: %w", err)
	}

	ps := PolicySet{Default: Public()}
	if f.Default != "" {
		def, err := ParsePolicy(f.Default)
		if err != nil {
			return PolicySet{}, fmt.Errorf("default policy: %w", err)
		}
		ps.Default = def
	}

	for i, r := range f.Rules {
		if r.Path == "" {
			return PolicySet{}, fmt.Errorf("rule %d: path is required", i)
		}
		switch {
		case r.Public && r.Require != "":
			return PolicySet{}, fmt.Errorf("rule %d (%s): public and require are exclusive", i, r.Path)
		case r.Public:
			ps.Rules = append(ps.Rules, Rule{Pattern: r.Path, Policy: Public()})
		case r.Require == "":
			return PolicySet{}, fmt.Errorf("rule %d (%s): one of public or require is needed", i, r.Path)
		default:
			p, err := ParsePolicy(r.Require)
			if err != nil {
				return PolicySet{}, fmt.Errorf("rule %d (%s): %w", i, r.Path, err)
			}
			ps.Rules = append(ps.Rules, Rule{Pattern: r.Path, Policy: p})
		}
	}

	if err := ps.Validate(); err != nil {
		return PolicySet{}, err
	}
	return ps, nil
}

// LoadPolicyFile reads and validates a policy file
func LoadPolicyFile(path string) (PolicySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PolicySet{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	ps, err := ParsePolicySet(data)
	if err != nil {
		return PolicySet{}, fmt.Errorf("%s: %w", path, err)
	}
	return ps, nil
}

// MarshalPolicySet renders a policy set in the file format
func MarshalPolicySet(ps PolicySet) ([]byte, error) {
	f := policyFile{Default: ps.Default.String()}
	for _, r := range ps.Rules {
		fr := policyFileRule{Path: r.Pattern}
		if r.Policy.IsPublic() {
			fr.Public = true
		} else {
			fr.Require = r.Policy.String()
		}
		f.Rules = append(f.Rules, fr)
	}
	return yaml.Marshal(f)
}
