package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"convoy/internal/domain/entities"
)

// SOSRepository stores alerts in sosEvents and keeps a pointer to the
// sender's active alert on users/{uid}.activeSosId. Both writes happen in one
// transaction, which also enforces the one-active-alert rule server-side.
type SOSRepository struct {
	client *firestore.Client
}

func NewSOSRepository(c *Client) *SOSRepository {
	return &SOSRepository{client: c.client}
}

func (r *SOSRepository) sosRef(id string) *firestore.DocumentRef {
	return r.client.Collection(entities.CollectionSOS).Doc(id)
}

func (r *SOSRepository) userRef(uid string) *firestore.DocumentRef {
	return r.client.Collection(usersCollection).Doc(uid)
}

// activeID reads the user's activeSosId pointer inside tx. A missing user
// document means no pointer.
func activeID(tx *firestore.Transaction, userRef *firestore.DocumentRef) (string, error) {
	snap, err := tx.Get(userRef)
	if status.Code(err) == codes.NotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var u userDoc
	if err := snap.DataTo(&u); err != nil {
		return "", err
	}
	return deref(u.ActiveSOSID), nil
}

func (r *SOSRepository) Create(ctx context.Context, sos *entities.SOSEvent) error {
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		userRef := r.userRef(sos.UID)
		current, err := activeID(tx, userRef)
		if err != nil {
			return err
		}
		if current != "" {
			snap, err := tx.Get(r.sosRef(current))
			switch {
			case status.Code(err) == codes.NotFound:
			case err != nil:
				return err
			default:
				var d sosDoc
				if err := snap.DataTo(&d); err != nil {
					return err
				}
				if d.Status == string(entities.SOSStatusActive) {
					return entities.ErrActiveSOSExists
				}
			}
		}

		if err := tx.Create(r.sosRef(sos.ID), toSOSDoc(sos)); err != nil {
			return err
		}
		return tx.Set(userRef, map[string]any{
			fieldActiveSOSID: sos.ID,
			fieldActiveSOSAt: firestore.ServerTimestamp,
		}, firestore.MergeAll)
	})
	if errors.Is(err, entities.ErrActiveSOSExists) {
		return err
	}
	if err != nil {
		return fmt.Errorf("create sos %s: %w", sos.ID, err)
	}
	return nil
}

func (r *SOSRepository) GetByID(ctx context.Context, id string) (*entities.SOSEvent, error) {
	snap, err := r.sosRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, entities.ErrSOSNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sos %s: %w", id, err)
	}
	var d sosDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode sos %s: %w", id, err)
	}
	return d.toEntity(id), nil
}

// Update rewrites the alert and clears the sender's pointer once it is no
// longer active.
func (r *SOSRepository) Update(ctx context.Context, sos *entities.SOSEvent) error {
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := r.sosRef(sos.ID)
		if _, err := tx.Get(ref); err != nil {
			if status.Code(err) == codes.NotFound {
				return entities.ErrSOSNotFound
			}
			return err
		}
		userRef := r.userRef(sos.UID)
		current, err := activeID(tx, userRef)
		if err != nil {
			return err
		}

		if err := tx.Set(ref, toSOSDoc(sos)); err != nil {
			return err
		}
		if !sos.IsActive() && current == sos.ID {
			return tx.Set(userRef, map[string]any{fieldActiveSOSID: nil}, firestore.MergeAll)
		}
		return nil
	})
	if errors.Is(err, entities.ErrSOSNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("update sos %s: %w", sos.ID, err)
	}
	return nil
}

func (r *SOSRepository) GetActiveByUID(ctx context.Context, uid string) (*entities.SOSEvent, error) {
	snap, err := r.userRef(uid).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", uid, err)
	}
	var u userDoc
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", uid, err)
	}
	if deref(u.ActiveSOSID) == "" {
		return nil, nil
	}

	sos, err := r.GetByID(ctx, *u.ActiveSOSID)
	if errors.Is(err, entities.ErrSOSNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !sos.IsActive() {
		return nil, nil
	}
	return sos, nil
}
