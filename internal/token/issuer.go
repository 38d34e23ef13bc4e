package token

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Validity is how long a checkout token stays usable after issuance.
const Validity = 10 * time.Minute

// GraceBuffer absorbs clock skew when expiry is checked by a component whose
// clock was not the one that stamped the issuance time.
const GraceBuffer = 30 * time.Second

var (
	ErrNotFound = errors.New("token not found")
	ErrExpired  = errors.New("token expired")
)

type record struct {
	shopperID string
	issuedAt  time.Time
}

// Issuer mints short-lived single-use tokens binding a shopper to a web
// hand-off. At most one live token exists per shopper; reissuing overwrites.
// Expiry is lazy: tokens are checked on access, never actively cancelled.
type Issuer struct {
	mu        sync.Mutex
	byToken   map[string]record
	byShopper map[string]string
	nowFunc   func() time.Time
}

// NewIssuer creates an empty issuer using the wall clock.
func NewIssuer() *Issuer {
	return &Issuer{
		byToken:   make(map[string]record),
		byShopper: make(map[string]string),
		nowFunc:   time.Now,
	}
}

// Issue mints a fresh token for the shopper, invalidating any previous one.
func (i *Issuer) Issue(shopperID string) string {
	i.mu.Lock()
	defer i.mu.Unlock()

	if old, ok := i.byShopper[shopperID]; ok {
		delete(i.byToken, old)
	}

	tok := uuid.NewString()
	i.byToken[tok] = record{shopperID: shopperID, issuedAt: i.nowFunc()}
	i.byShopper[shopperID] = tok
	return tok
}

// Validate returns the bound shopper without consuming the token.
func (i *Issuer) Validate(tok string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	rec, ok := i.byToken[tok]
	if !ok {
		return "", ErrNotFound
	}
	if i.expired(rec) {
		i.remove(tok, rec.shopperID)
		return "", ErrExpired
	}
	return rec.shopperID, nil
}

// Consume validates and invalidates the token in one step. A second Consume
// of the same token fails with ErrNotFound; there is no double-spend window.
func (i *Issuer) Consume(tok string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	rec, ok := i.byToken[tok]
	if !ok {
		return "", ErrNotFound
	}
	i.remove(tok, rec.shopperID)
	if i.expired(rec) {
		return "", ErrExpired
	}
	return rec.shopperID, nil
}

func (i *Issuer) expired(rec record) bool {
	return i.nowFunc().After(rec.issuedAt.Add(Validity + GraceBuffer))
}

func (i *Issuer) remove(tok, shopperID string) {
	delete(i.byToken, tok)
	if i.byShopper[shopperID] == tok {
		delete(i.byShopper, shopperID)
	}
}
