package mongo

import (
	"context"
	"errors"
	"fmt"

	apperrors "labslot/pkg/errors"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	labelTransientTransaction = "TransientTransactionError"
	labelUnknownCommitResult  = "UnknownTransactionCommitResult"
)

// TransactionFunc runs inside a transaction. The ctx it receives is the
// session context and must be passed to every store call in the unit of work.
type TransactionFunc func(ctx context.Context) error

type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

type mongoTransactionManager struct {
	client *mongo.Client
}

func NewTransactionManager(client *mongo.Client) TransactionManager {
	return &mongoTransactionManager{
		client: client,
	}
}

func (m *mongoTransactionManager) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	session, err := m.client.StartSession()
	if err != nil {
		return apperrors.StoreUnavailable("failed to start session", err)
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (any, error) {
		return nil, fn(sessCtx)
	})

	if err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		if IsUnavailable(err) {
			return apperrors.StoreUnavailable("transaction could not complete", err)
		}
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// IsUnavailable reports whether err means the unit of work could not finish
// in time or the server was unreachable. Such failures leave no writes behind
// and are safe to retry.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) {
		return labeled.HasErrorLabel(labelTransientTransaction) ||
			labeled.HasErrorLabel(labelUnknownCommitResult)
	}
	return false
}
