// Package pacscript renders the proxy auto-config script and provides a Go
// evaluation of the same routing decision.
package pacscript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/haukened/rr-pac/internal/pac/domain"
)

// The matcher below is a closed-interval binary search and is only correct
// on a sorted array. Generate sorts before rendering; keep it that way.
var scriptTemplate = template.Must(template.New("pac").Parse(`function FindProxyForURL(url, host) {
  function isHostBlocked(array, target) {
    var left = 0;
    var right = array.length - 1;

    while (left <= right) {
      var mid = left + Math.floor((right - left) / 2);

      if (array[mid] === target) {
        return true;
      }

      if (array[mid] < target) {
        left = mid + 1;
      } else {
        right = mid - 1;
      }
    }
    return false;
  }

  if (host.charAt(host.length - 1) === '.') {
    host = host.substring(0, host.length - 1);
  }

  var lastDot = host.lastIndexOf('.');
  if (lastDot !== -1) {
    lastDot = host.lastIndexOf('.', lastDot - 1);
    if (lastDot !== -1) {
      host = host.substring(lastDot + 1);
    }
  }

  var domains = {{.Domains}};

  if (isHostBlocked(domains, host)) {
    return '{{.Directive}}';
  }
  return '{{.Direct}}';
}
`))

type scriptData struct {
	Domains   string
	Directive string
	Direct    string
}

// Generate sorts domains in place and renders the PAC script. The output is
// a pure function of the sorted domains and the endpoints.
func Generate(domains []string, endpoints domain.ProxyEndpoints) (string, error) {
	if err := validateEndpoints(endpoints); err != nil {
		return "", err
	}

	Sort(domains)

	encoded, err := encodeDomains(domains)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = scriptTemplate.Execute(&buf, scriptData{
		Domains:   encoded,
		Directive: endpoints.Directive(),
		Direct:    domain.DirectRoute,
	})
	if err != nil {
		return "", fmt.Errorf("render pac script: %w", err)
	}
	return buf.String(), nil
}

// DirectScript is submitted when no domain should be proxied.
func DirectScript() string {
	return "function FindProxyForURL(url, host) {\n  return '" + domain.DirectRoute + "';\n}\n"
}

// encodeDomains renders domains as a JSON array literal. An empty list is
// "[]", never "null", and HTML characters are left unescaped.
func encodeDomains(domains []string) (string, error) {
	if domains == nil {
		domains = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(domains); err != nil {
		return "", fmt.Errorf("encode pac domains: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func validateEndpoints(p domain.ProxyEndpoints) error {
	for name, v := range map[string]string{"https": p.HTTPS, "http": p.HTTP} {
		if v == "" {
			return fmt.Errorf("%s proxy endpoint must not be empty", name)
		}
		if strings.ContainsAny(v, "'\";\r\n\t ") {
			return fmt.Errorf("%s proxy endpoint %q contains forbidden characters", name, v)
		}
	}
	return nil
}
