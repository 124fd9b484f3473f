package target

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ykondo/sshmux/internal/model"
)

// Parse validates and decomposes a user@host[:port] specification. It is
// side-effect free and performs no normalization: the raw string is kept
// verbatim on the returned Target because all keying happens on it.
func Parse(raw string) (model.Target, error) {
	if raw == "" {
		return model.Target{}, fmt.Errorf("%w: empty target", model.ErrInvalidTarget)
	}
	if strings.Count(raw, "@") != 1 {
		return model.Target{}, fmt.Errorf("%w: want exactly one '@' in %q", model.ErrInvalidTarget, raw)
	}
	at := strings.Index(raw, "@")
	user := raw[:at]
	rest := raw[at+1:]
	if user == "" {
		return model.Target{}, fmt.Errorf("%w: empty user in %q", model.ErrInvalidTarget, raw)
	}

	host := rest
	port := model.DefaultPort
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		host = rest[:i]
		p, err := strconv.Atoi(rest[i+1:])
		if err != nil {
			return model.Target{}, fmt.Errorf("%w: non-numeric port in %q", model.ErrInvalidTarget, raw)
		}
		if p < 1 || p > 65535 {
			return model.Target{}, fmt.Errorf("%w: port %d out of range in %q", model.ErrInvalidTarget, p, raw)
		}
		port = p
	}
	if host == "" {
		return model.Target{}, fmt.Errorf("%w: empty host in %q", model.ErrInvalidTarget, raw)
	}

	return model.Target{Raw: raw, User: user, Host: host, Port: port}, nil
}
