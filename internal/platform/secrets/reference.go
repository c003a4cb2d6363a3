package secrets

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Reference names one version of a secret.
type Reference struct {
	Name    string
	Version string
	// Project overrides the fetcher's default project.
	Project string
}

// ParseReference accepts secret://name, secret://name@version and
// secret://name?version=N&project=P. The legacy sm:// scheme is read as secret://.
func ParseReference(raw string) (Reference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Reference{}, errors.New("secrets: empty reference")
	}
	if rest, ok := strings.CutPrefix(raw, "sm://"); ok {
		raw = "secret://" + rest
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Reference{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" {
		return Reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}

	query := u.Query()
	ref := Reference{
		Name:    strings.Trim(u.Host+u.Path, "/"),
		Version: strings.TrimSpace(query.Get("version")),
		Project: strings.TrimSpace(query.Get("project")),
	}
	// url.Parse reads "name@version" in the authority as userinfo.
	if u.User != nil {
		if ref.Version == "" {
			ref.Version = ref.Name
		}
		ref.Name = u.User.Username()
	}
	if ref.Name == "" {
		return Reference{}, fmt.Errorf("secrets: missing secret name in %q", raw)
	}
	if ref.Version == "" {
		ref.Version = "latest"
	}
	return ref, nil
}

// String is the canonical form without the project.
func (r Reference) String() string { return "secret://" + r.Name + "@" + r.Version }

// resource is the Secret Manager version resource name under project.
func (r Reference) resource(project string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, r.Name, r.Version)
}

// masked is a stable digest safe for logs.
func (r Reference) masked() string {
	sum := sha256.Sum256([]byte(r.String()))
	return hex.EncodeToString(sum[:6])
}
