package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
)

// AssetRepository implements storage.AssetRepository for BadgerDB.
type AssetRepository struct {
	backend *Backend
}

var _ storage.AssetRepository = (*AssetRepository)(nil)

// NewAssetRepository creates a new AssetRepository.
func NewAssetRepository(backend *Backend) (*AssetRepository, error) {
	return &AssetRepository{backend: backend}, nil
}

func (r *AssetRepository) Close() error {
	return nil
}

// CreateAsset stores a new asset record.
func (r *AssetRepository) CreateAsset(ctx context.Context, asset *core.Asset) (*core.Asset, error) {
	if err := core.ValidateAssetID(asset.ID); err != nil {
		return nil, err
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}

	err := r.backend.Update(func(tx *badger.Txn) error {
		key := makeAssetKey(asset.ID)
		if _, err := tx.Get(key); err == nil {
			return storage.ErrDuplicateKey
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return tx.Set(key, storage.MarshalAsset(asset))
	})
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// GetAsset retrieves an asset by ID.
func (r *AssetRepository) GetAsset(ctx context.Context, id core.AssetID) (*core.Asset, error) {
	var result *core.Asset
	err := r.backend.View(func(tx *badger.Txn) error {
		item, err := tx.Get(makeAssetKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			result, err = storage.UnmarshalAsset(val)
			return err
		})
	})
	return result, err
}
