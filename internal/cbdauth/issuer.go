package cbdauth

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type IssuerConfig struct {
	KeyID      string
	Secret     string
	ClientID   string
	AppName    string
	AppVersion string
	Lifetime   time.Duration
}

// Issuer reissues tokens under one policy for the life of a process. A
// missing client id is generated on the first Issue and reused afterwards so
// the Dashboard sees one client across reconnects.
type Issuer struct {
	mu         sync.Mutex
	keyID      string
	secret     string
	clientID   string
	appName    string
	appVersion string
	lifetime   time.Duration

	now   func() time.Time
	newID func() string
}

func NewIssuer(cfg IssuerConfig) *Issuer {
	lifetime := cfg.Lifetime
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return &Issuer{
		keyID:      strings.TrimSpace(cfg.KeyID),
		secret:     cfg.Secret,
		clientID:   strings.TrimSpace(cfg.ClientID),
		appName:    cfg.AppName,
		appVersion: cfg.AppVersion,
		lifetime:   lifetime,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func (i *Issuer) Issue() (AccessToken, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.clientID == "" {
		i.clientID = i.newID()
	}
	return Issue(i.keyID, i.secret, i.clientID, i.appName, i.appVersion, i.lifetime, i.now())
}

// ClientID returns the id tokens are issued for; empty until the first Issue
// when none was configured.
func (i *Issuer) ClientID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.clientID
}

func (i *Issuer) Lifetime() time.Duration {
	return i.lifetime
}

// SetCredentials replaces the access key used by later issuances. Tokens
// already issued are unaffected.
func (i *Issuer) SetCredentials(keyID, secret string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.keyID = strings.TrimSpace(keyID)
	i.secret = secret
}
