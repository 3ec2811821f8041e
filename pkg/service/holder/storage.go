package holder

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/tantan-solutions/vc-exchange-service/pkg/storage"
)

const namespace = "proof_request"

type Storage struct {
	db     storage.ServiceStorage
	expiry time.Duration
}

func NewProofRequestStorage(db storage.ServiceStorage, expiry time.Duration) (*Storage, error) {
	if db == nil {
		return nil, errors.New("bolt, redis, or memory storage is required")
	}
	if expiry <= 0 {
		return nil, errors.New("proof request expiry must be positive")
	}
	return &Storage{db: db, expiry: expiry}, nil
}

func (s *Storage) StoreProofRequest(ctx context.Context, record ProofRequestRecord) error {
	if record.ID == "" {
		return errors.New("proof request id is required")
	}
	recordBytes, err := json.Marshal(record)
	if err != nil {
		return errors.Wrapf(err, "marshalling proof request: %s", record.ID)
	}
	return s.db.WriteWithExpiry(ctx, namespace, record.ID, recordBytes, s.expiry)
}

// ClaimProofRequest flips a pending record to used. The store's conditional
// update guarantees exactly one caller wins when several race on the same
// id; losers get storage.ErrUpdateConditionFailed, missing or expired ids
// get storage.ErrKeyNotFound.
func (s *Storage) ClaimProofRequest(ctx context.Context, id string) (*ProofRequestRecord, error) {
	claimedBytes, err := s.db.Update(ctx, namespace, id, claimProofRequest{})
	if err != nil {
		return nil, err
	}
	var record ProofRequestRecord
	if err = json.Unmarshal(claimedBytes, &record); err != nil {
		return nil, errors.Wrapf(err, "unmarshalling claimed proof request: %s", id)
	}
	return &record, nil
}

type claimProofRequest struct{}

func (claimProofRequest) Validate(v []byte) error {
	var record ProofRequestRecord
	if err := json.Unmarshal(v, &record); err != nil {
		return errors.Wrap(err, "unmarshalling proof request")
	}
	if record.Status != StatusPending {
		return errors.Wrapf(storage.ErrUpdateConditionFailed, "proof request is %s", record.Status)
	}
	return nil
}

func (claimProofRequest) Update(v []byte) ([]byte, error) {
	var record ProofRequestRecord
	if err := json.Unmarshal(v, &record); err != nil {
		return nil, errors.Wrap(err, "unmarshalling proof request")
	}
	record.Status = StatusUsed
	return json.Marshal(record)
}
