package match

import "strings"

// fieldAliases translates the human-readable selector names an operator
// writes in YAML into the document keys BuildDocument actually produces.
// Declaring an alias table here (rather than asking operators to know wire
// field names) mirrors the teacher's option.go approach of naming DHCP
// options by their common name rather than their numeric code.
var fieldAliases = map[string]string{
	"ClientMacAddress":     "chaddr",
	"HardwareType":         "htype",
	"TransactionID":        "xid",
	"ClientIPAddress":      "ciaddr",
	"YourIPAddress":        "yiaddr",
	"ServerIPAddress":      "siaddr",
	"GatewayIPAddress":     "giaddr",
	"BootFile":             "file",
	"ServerHostName":       "sname",
	"MessageType":          "opts.MessageType",
	"ClassIdentifier":      "opts.ClassIdentifier",
	"SubnetMask":           "opts.SubnetMask",
	"BootfileName":         "opts.BootfileName",
	"ServerIdentifier":     "opts.ServerIdentifier",
	"AddressLeaseTime":     "opts.AddressLeaseTime",
	"ParameterRequestList": "opts.ParameterRequestList",
	"TFTPServerAddress":    "opts.TFTPServerAddress",
}

// resolve looks up name (after alias translation) in doc, descending into
// the "opts" sub-document when the resolved key is dotted. It returns ""
// and false when the field is absent, which a MatchRule treats as a
// non-match rather than an error.
func resolve(doc map[string]any, name string) (string, bool) {
	key := name
	if alias, ok := fieldAliases[name]; ok {
		key = alias
	}

	if dot := strings.IndexByte(key, '.'); dot >= 0 {
		sub, ok := doc[key[:dot]].(map[string]any)
		if !ok {
			return "", false
		}
		v, ok := sub[key[dot+1:]]
		if !ok {
			return "", false
		}
		return toString(v)
	}

	if v, ok := doc[key]; ok {
		return toString(v)
	}

	// Unaliased, undotted names fall back to an opts lookup so a rule can
	// select an option BuildDocument emits without needing an entry in
	// fieldAliases for it.
	if _, aliased := fieldAliases[name]; !aliased {
		if sub, ok := doc["opts"].(map[string]any); ok {
			if v, ok := sub[name]; ok {
				return toString(v)
			}
		}
	}

	return "", false
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
