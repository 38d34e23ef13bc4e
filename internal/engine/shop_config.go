package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/ShreyashF130/copit-backend/internal/crypto"
	"github.com/ShreyashF130/copit-backend/internal/repository"
)

// ShopConfigReader loads merchant payment configuration and decrypts the
// gateway credentials. Concurrent reads for the same shop are collapsed
// into one database round trip; a webhook burst or a busy shop's checkout
// traffic otherwise hammers the shops table with identical queries.
type ShopConfigReader struct {
	repo   ShopRepo
	cipher *crypto.Cipher
	group  singleflight.Group
}

// ShopRepo is the slice of the repository the reader needs.
type ShopRepo interface {
	GetShopCredentials(ctx context.Context, shopID int64) (*repository.ShopCredentials, error)
}

func NewShopConfigReader(repo ShopRepo, cipher *crypto.Cipher) *ShopConfigReader {
	return &ShopConfigReader{repo: repo, cipher: cipher}
}

// Load returns the shop's configuration with credentials decrypted.
func (r *ShopConfigReader) Load(ctx context.Context, shopID int64) (*repository.ShopCredentials, error) {
	key := fmt.Sprintf("shop:%d", shopID)
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		creds, err := r.repo.GetShopCredentials(ctx, shopID)
		if err != nil {
			return nil, err
		}
		if creds.GatewayKeySecret, err = r.cipher.Decrypt(creds.GatewayKeySecret); err != nil {
			return nil, fmt.Errorf("decrypt gateway secret: %w", err)
		}
		if creds.WebhookSecret, err = r.cipher.Decrypt(creds.WebhookSecret); err != nil {
			return nil, fmt.Errorf("decrypt webhook secret: %w", err)
		}
		if creds.ShippingPassword, err = r.cipher.Decrypt(creds.ShippingPassword); err != nil {
			return nil, fmt.Errorf("decrypt shipping password: %w", err)
		}
		return creds, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*repository.ShopCredentials), nil
}
