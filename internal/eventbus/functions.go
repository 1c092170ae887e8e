package eventbus

import (
	"time"

	"go.uber.org/zap"
)

// Function ids.
const (
	FnSyncUserCreation = "sync-user-from-clerk"
	FnSyncUserUpdation = "update-user-from-clerk"
	FnSyncUserDeletion = "delete-user-from-clerk"
	FnCreateUserOrder  = "create-user-order"
)

// Default order batching bounds.
const (
	DefaultOrderBatchSize    = 5
	DefaultOrderBatchTimeout = 5 * time.Second
)

// Deps holds what the functions read and write.
type Deps struct {
	Users   UserStore
	Orders  OrderStore
	Metrics Counter
	Logger  *zap.Logger

	OrderBatch Batch
}

// Functions returns the four sync functions wired to deps.
func Functions(deps Deps) []Function {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batch := deps.OrderBatch
	if batch.MaxSize <= 0 {
		batch.MaxSize = DefaultOrderBatchSize
	}
	if batch.Timeout <= 0 {
		batch.Timeout = DefaultOrderBatchTimeout
	}

	return []Function{
		{ID: FnSyncUserCreation, Trigger: UserCreated, Handler: SyncUserCreation(deps.Users)},
		{ID: FnSyncUserUpdation, Trigger: UserUpdated, Handler: SyncUserUpdation(deps.Users)},
		{ID: FnSyncUserDeletion, Trigger: UserDeleted, Handler: SyncUserDeletion(deps.Users)},
		{
			ID:           FnCreateUserOrder,
			Trigger:      OrderCreated,
			BatchHandler: CreateUserOrders(deps.Orders, deps.Metrics, logger.Named("orders")),
			Batch:        batch,
		},
	}
}
