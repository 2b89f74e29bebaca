// internal/browser/ipprobe.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
)

var echoBody = []schemas.Locator{{Selector: "pre"}, {Selector: "body"}}

// ProbeEgressIP loads each echo endpoint in turn through the session and
// returns the first non-empty answer, so the log shows which address the
// recovery pages see.
func ProbeEgressIP(ctx context.Context, sess schemas.Session, endpoints []string) (string, error) {
	var errs []error
	for _, endpoint := range endpoints {
		if err := sess.Navigate(ctx, endpoint); err != nil {
			errs = append(errs, err)
			continue
		}
		for _, loc := range echoBody {
			text, err := sess.ReadText(ctx, loc)
			if err != nil {
				continue
			}
			if ip := strings.TrimSpace(text); ip != "" {
				return ip, nil
			}
		}
		errs = append(errs, fmt.Errorf("%s returned an empty body", endpoint))
	}
	if len(errs) == 0 {
		return "", errors.New("no ip echo endpoints configured")
	}
	return "", errors.Join(errs...)
}
