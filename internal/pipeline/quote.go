package pipeline

import "regexp"

// yaml11Plain matches plain scalars that a YAML 1.1 loader (PyYAML, which
// the runner uses) resolves to something other than a string. yaml.v3 only
// quotes strings that are ambiguous under YAML 1.2, so "on" or "1:20" would
// otherwise come back as a bool or an int.
var yaml11Plain = regexp.MustCompile(`^(?:` +
	// bool
	`y|Y|n|N|yes|Yes|YES|no|No|NO|true|True|TRUE|false|False|FALSE|on|On|ON|off|Off|OFF` +
	// int, including base 60
	`|[-+]?0b[0-1_]+|[-+]?0[0-7_]+|[-+]?(?:0|[1-9][0-9_]*)|[-+]?0x[0-9a-fA-F_]+|[-+]?[1-9][0-9_]*(?::[0-5]?[0-9])+` +
	// float, including base 60
	`|[-+]?(?:[0-9][0-9_]*)\.[0-9_]*(?:[eE][-+]?[0-9]+)?|\.[0-9][0-9_]*(?:[eE][-+]?[0-9]+)?` +
	`|[-+]?[0-9][0-9_]*(?::[0-5]?[0-9])+\.[0-9_]*|[-+]?\.(?:inf|Inf|INF)|\.(?:nan|NaN|NAN)` +
	// null, merge, value
	`|~|null|Null|NULL|<<|=` +
	// timestamp
	`|[0-9]{4}-[0-9]{1,2}-[0-9]{1,2}(?:(?:[Tt]|[ \t]+)[0-9]{1,2}:[0-9]{2}:[0-9]{2}(?:\.[0-9]*)?(?:[ \t]*(?:Z|[-+][0-9]{1,2}(?::[0-9]{2})?))?)?` +
	`)$`)

// needsQuotes reports whether a string scalar must be quoted to stay a
// string for a YAML 1.1 reader.
func needsQuotes(s string) bool {
	return s == "" || yaml11Plain.MatchString(s)
}
