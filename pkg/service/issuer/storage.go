package issuer

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/tantan-solutions/vc-exchange-service/pkg/storage"
)

const namespace = "issuance_session"

type Storage struct {
	db storage.ServiceStorage
}

func NewIssuanceStorage(db storage.ServiceStorage) (*Storage, error) {
	if db == nil {
		return nil, errors.New("bolt, redis, or memory storage is required")
	}
	return &Storage{db: db}, nil
}

func (s *Storage) StoreSession(ctx context.Context, session IssuanceSessionRecord) error {
	if session.ID == "" {
		return errors.New("session id is required")
	}
	sessionBytes, err := json.Marshal(session)
	if err != nil {
		return errors.Wrapf(err, "marshalling session: %s", session.ID)
	}
	return s.db.Write(ctx, namespace, session.ID, sessionBytes)
}

// GetSession returns nil without error when no record exists.
func (s *Storage) GetSession(ctx context.Context, id string) (*IssuanceSessionRecord, error) {
	sessionBytes, err := s.db.Read(ctx, namespace, id)
	if err != nil {
		return nil, errors.Wrapf(err, "reading session: %s", id)
	}
	if len(sessionBytes) == 0 {
		return nil, nil
	}
	var session IssuanceSessionRecord
	if err = json.Unmarshal(sessionBytes, &session); err != nil {
		return nil, errors.Wrapf(err, "unmarshalling session: %s", id)
	}
	return &session, nil
}

func (s *Storage) ListSessions(ctx context.Context) ([]IssuanceSessionRecord, error) {
	records, err := s.db.ReadAll(ctx, namespace)
	if err != nil {
		return nil, errors.Wrap(err, "reading sessions")
	}
	sessions := make([]IssuanceSessionRecord, 0, len(records))
	for id, sessionBytes := range records {
		var session IssuanceSessionRecord
		if err = json.Unmarshal(sessionBytes, &session); err != nil {
			return nil, errors.Wrapf(err, "unmarshalling session: %s", id)
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}
